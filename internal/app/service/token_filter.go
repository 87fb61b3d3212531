package service

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// TokenFilter answers "definitely not issued" for tokens without a store
// lookup. It only knows tokens loaded at startup or issued by this process.
type TokenFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewTokenFilter sizes the filter for expected tokens at the given false positive rate.
func NewTokenFilter(expected uint, falsePositiveRate float64) *TokenFilter {
	if expected == 0 {
		expected = 1
	}
	return &TokenFilter{filter: bloom.NewWithEstimates(expected, falsePositiveRate)}
}

// Add records an issued token.
func (f *TokenFilter) Add(token string) {
	f.mu.Lock()
	f.filter.AddString(token)
	f.mu.Unlock()
}

// Load records a batch of issued tokens.
func (f *TokenFilter) Load(tokens []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tokens {
		f.filter.AddString(t)
	}
}

// MayContain is false only when the token was never added.
func (f *TokenFilter) MayContain(token string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(token)
}
