package xid

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNewUsesPrefix(t *testing.T) {
	a := New("sale")
	b := New("sale")
	if !strings.HasPrefix(a, "sale_") {
		t.Fatalf("expected sale_ prefix, got %q", a)
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
}

func TestDocumentNumberFormat(t *testing.T) {
	at := time.Date(2024, 1, 31, 15, 4, 5, 0, time.UTC)
	got := DocumentNumber("VTA", at)
	if !regexp.MustCompile(`^VTA-20240131-\d{4}$`).MatchString(got) {
		t.Fatalf("unexpected document number %q", got)
	}
}
