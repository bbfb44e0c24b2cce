package ledger

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TxnIDGenerator issues lexicographically sortable transaction ids
type TxnIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewTxnIDGenerator creates a generator with monotonic entropy
func NewTxnIDGenerator() *TxnIDGenerator {
	return &TxnIDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Next returns a new ULID string
func (g *TxnIDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

var defaultTxnIDs = NewTxnIDGenerator()

// NewTxnID returns a fresh transaction id from the package generator
func NewTxnID() string {
	return defaultTxnIDs.Next()
}

// IsULID reports whether s parses as a ULID
func IsULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
