package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// TokenLength is the length of every issued redirect token.
	TokenLength = 10
)

var tokenBase = big.NewInt(int64(len(tokenAlphabet)))

// TokenGenerator creates opaque redirect tokens.
type TokenGenerator interface {
	NewToken(ctx context.Context) (string, error)
}

// RandomTokenGenerator draws TokenLength characters from crypto/rand.
type RandomTokenGenerator struct{}

// NewToken returns a fresh uniformly random alphanumeric token.
func (RandomTokenGenerator) NewToken(_ context.Context) (string, error) {
	var b strings.Builder
	b.Grow(TokenLength)
	for i := 0; i < TokenLength; i++ {
		idx, err := rand.Int(rand.Reader, tokenBase)
		if err != nil {
			return "", err
		}
		b.WriteByte(tokenAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// ValidToken reports whether s has the shape of an issued token.
func ValidToken(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(tokenAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
