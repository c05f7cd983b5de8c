package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	DefaultCodeLength = 6
	digits            = "0123456789"
)

// GenerateCode returns length digits drawn uniformly from 0-9.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	max := big.NewInt(int64(len(digits)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b[i] = digits[n.Int64()]
	}
	return string(b), nil
}
