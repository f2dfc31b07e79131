package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/store"
)

// DefaultTTL applies when a caller passes a non-positive TTL.
const DefaultTTL = 10 * time.Minute

// ErrCorruptEntry reports a stored entry that could not be used. The entry
// has already been discarded; callers treat it as a miss.
var ErrCorruptEntry = errors.New("corrupt classification cache entry")

// ClassificationCache remembers how the assistant classified a message.
type ClassificationCache interface {
	Get(ctx context.Context, key string) (*domain.Classification, bool, error)
	Set(ctx context.Context, key string, value *domain.Classification, ttl time.Duration) error
}

// MessageKey maps messages that differ only in case, accents or
// whitespace to the same key.
func MessageKey(message string) string {
	normalized := strings.Join(strings.Fields(store.Fold(message)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// validClassification rejects entries no classifier could have produced.
func validClassification(c domain.Classification) bool {
	switch c.Type {
	case domain.QueryProduct, domain.QueryVeterinary, domain.QueryMixed:
		return true
	default:
		return false
	}
}

type NoopClassificationCache struct{}

func (NoopClassificationCache) Get(_ context.Context, _ string) (*domain.Classification, bool, error) {
	return nil, false, nil
}

func (NoopClassificationCache) Set(_ context.Context, _ string, _ *domain.Classification, _ time.Duration) error {
	return nil
}
