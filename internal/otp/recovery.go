package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// RecoveryCodeCount is the number of single-use codes issued at enrollment.
const RecoveryCodeCount = 8

const recoveryCodeBytes = 5

func fillRandom(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// GenerateRecoveryCodes returns n fresh recovery codes in the grouped form
// shown to the user, e.g. "3f9a2-b81c0". Only their hashes are persisted.
func GenerateRecoveryCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		raw := make([]byte, recoveryCodeBytes)
		if err := fillRandom(raw); err != nil {
			return nil, err
		}
		s := hex.EncodeToString(raw)
		codes = append(codes, fmt.Sprintf("%s-%s", s[:5], s[5:]))
	}
	return codes, nil
}

// HashRecoveryCode maps a user-entered code to its stored hash. The code is
// normalized first so formatting differences do not lock users out.
func HashRecoveryCode(code string) string {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
