package shortener

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const shortCodeLength = 6 // Length of the generated short code

// codeAlphabet is the URL-safe alphabet used for generated codes.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// customCodePattern bounds user-chosen codes: 3 to 20 URL-safe characters.
var customCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// GenerateShortCode creates a random short code from codeAlphabet.
// It does not check for collisions; that is handled by the allocator.
func GenerateShortCode() (string, error) {
	bytes := make([]byte, shortCodeLength)
	alphabetLength := big.NewInt(int64(len(codeAlphabet)))

	for i := range bytes {
		num, err := rand.Int(rand.Reader, alphabetLength)
		if err != nil {
			return "", err
		}
		bytes[i] = codeAlphabet[num.Int64()]
	}
	return string(bytes), nil
}

// ValidateCode reports whether code is acceptable as a user-chosen short code.
func ValidateCode(code string) error {
	if !customCodePattern.MatchString(code) {
		return ErrInvalidCode
	}
	return nil
}
