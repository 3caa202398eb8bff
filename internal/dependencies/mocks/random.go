package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/scanogram/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing.
//
// Queued results are returned first. Once a queue is drained, String falls
// back to real randomness (so code generation never spins on a repeated
// value) and UUID falls back to a deterministic counter.
type MockRandom struct {
	mu sync.Mutex

	intnResults   []int
	stringResults []string
	uuidResults   []string

	uuidCounter int
	fallback    *random.CryptoRandom
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{fallback: random.New()}
}

// Intn returns the next queued result, or 0 if none remaining
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.intnResults) == 0 {
		return 0
	}
	result := r.intnResults[0]
	r.intnResults = r.intnResults[1:]
	return result
}

// String returns the next queued result, or a random string if none remaining
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stringResults) == 0 {
		return r.fallback.String(length, alphabet)
	}
	result := r.stringResults[0]
	r.stringResults = r.stringResults[1:]
	return result
}

// UUID returns the next queued result, or "uuid-<n>" if none remaining
func (r *MockRandom) UUID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.uuidResults) == 0 {
		r.uuidCounter++
		return fmt.Sprintf("uuid-%d", r.uuidCounter)
	}
	result := r.uuidResults[0]
	r.uuidResults = r.uuidResults[1:]
	return result
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intnResults = append(r.intnResults, values...)
}

// QueueString adds values to the String result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stringResults = append(r.stringResults, values...)
}

// QueueUUID adds values to the UUID result queue
func (r *MockRandom) QueueUUID(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uuidResults = append(r.uuidResults, values...)
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intnResults = nil
	r.stringResults = nil
	r.uuidResults = nil
	r.uuidCounter = 0
}
