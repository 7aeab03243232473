package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeGenerator produces fixed-length numeric verification codes from a
// cryptographically strong random source.
type CodeGenerator struct {
	length int
	max    *big.Int
}

func NewCodeGenerator(length int) *CodeGenerator {
	max := big.NewInt(10)
	max.Exp(max, big.NewInt(int64(length)), nil)
	return &CodeGenerator{
		length: length,
		max:    max,
	}
}

// Generate returns a left-zero-padded numeric string uniformly distributed
// over [0, 10^length). crypto/rand.Int performs rejection sampling, so there
// is no modulo bias.
func (g *CodeGenerator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, g.max)
	if err != nil {
		return "", fmt.Errorf("failed to read random source: %w", err)
	}
	return fmt.Sprintf("%0*d", g.length, n), nil
}
