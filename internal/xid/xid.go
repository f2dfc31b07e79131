package xid

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%s", prefix, id)
}

// DocumentNumber builds human-readable numbers like VTA-20240131-0042.
// The suffix is random; callers must handle collisions.
func DocumentNumber(prefix string, at time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	suffix := int64(0)
	if err == nil {
		suffix = n.Int64()
	} else {
		suffix = at.UnixNano() % 10000
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, at.Format("20060102"), suffix)
}
