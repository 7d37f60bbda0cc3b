// internal/lobby/code.go
package lobby

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/lernspiel/arena/internal/apperr"
)

// codeAlphabet excludes visually ambiguous characters (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeLength is the length of shareable lobby join codes.
const CodeLength = 6

// maxCodeAttempts bounds the sample-and-retry loop against code collisions.
const maxCodeAttempts = 10

func randomCode() (string, error) {
	buf := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// generateCode samples codes until one is unused, failing with
// CodeGenerationExhausted after the retry bound.
func generateCode(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", apperr.New(apperr.CodeGenerationExhausted,
		"could not generate a unique lobby code in %d attempts", maxCodeAttempts)
}
