package license

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// CodeAlphabet excludes the visually ambiguous 0, O, 1, I and L
const CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	codeGroups   = 4
	codeGroupLen = 4
)

// KeyCodePattern matches XXXX-XXXX-XXXX-XXXX in canonical (uppercase) form
var KeyCodePattern = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}$`)

var alphabetSize = big.NewInt(int64(len(CodeAlphabet)))

// GenerateCode returns a new random activation code.
// Each symbol is drawn uniformly from CodeAlphabet using crypto/rand.
func GenerateCode() (string, error) {
	var sb strings.Builder
	sb.Grow(codeGroups*codeGroupLen + codeGroups - 1)

	for g := 0; g < codeGroups; g++ {
		if g > 0 {
			sb.WriteByte('-')
		}
		for i := 0; i < codeGroupLen; i++ {
			n, err := rand.Int(rand.Reader, alphabetSize)
			if err != nil {
				return "", fmt.Errorf("failed to read random source: %w", err)
			}
			sb.WriteByte(CodeAlphabet[n.Int64()])
		}
	}
	return sb.String(), nil
}

// NormalizeCode canonicalizes user input before lookup or storage
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether a canonical code has the wire format
func ValidCode(code string) bool {
	return KeyCodePattern.MatchString(code)
}
