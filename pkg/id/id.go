// Package id generates the identifiers used across docqa.
//
// Document and request ids are ULIDs, so they sort by creation time. Vector
// correlation keys are random UUIDs.
package id

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// DocumentPrefix prefixes every document id.
const DocumentPrefix = "doc_"

// Generator produces string identifiers.
type Generator interface {
	Generate() string
}

// ULIDGenerator generates monotonic ULIDs. It is safe for concurrent use.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewULIDGenerator creates a generator backed by crypto/rand.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Generate returns a new ULID string.
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// UUIDGenerator generates random (version 4) UUIDs.
type UUIDGenerator struct{}

// Generate returns a new UUID string.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

var defaultULID = NewULIDGenerator()

// NewDocumentID returns "doc_" followed by a ULID.
func NewDocumentID() string {
	return DocumentPrefix + defaultULID.Generate()
}

// NewRequestID returns a ULID for request correlation.
func NewRequestID() string {
	return defaultULID.Generate()
}

// NewCorrelationKey returns a UUID used as a vector primary key.
func NewCorrelationKey() string {
	return uuid.NewString()
}

// NewCorrelationKeys returns n distinct correlation keys.
func NewCorrelationKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = uuid.NewString()
	}
	return keys
}

// DocumentTime extracts the creation time encoded in a document id.
func DocumentTime(documentID string) (time.Time, error) {
	raw, ok := strings.CutPrefix(documentID, DocumentPrefix)
	if !ok {
		return time.Time{}, fmt.Errorf("document id %q lacks prefix %q", documentID, DocumentPrefix)
	}
	u, err := ulid.ParseStrict(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse document id %q: %w", documentID, err)
	}
	return ulid.Time(u.Time()), nil
}

// IsDocumentID reports whether s is a well-formed document id.
func IsDocumentID(s string) bool {
	_, err := DocumentTime(s)
	return err == nil
}
