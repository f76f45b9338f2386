package utils

import (
	"crypto/rand"
	"math/big"
)

// RegistrationCodeLength is the number of characters in a registration code.
const RegistrationCodeLength = 10

// registrationAlphabet is upper case A-Z followed by the digits.
const registrationAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewRegistrationCode returns a random 10 character code drawn uniformly
// from registrationAlphabet using crypto/rand.
func NewRegistrationCode() (string, error) {
	buf := make([]byte, RegistrationCodeLength)
	max := big.NewInt(int64(len(registrationAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = registrationAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// ValidRegistrationCode reports whether s has the exact length and only
// contains characters from the code alphabet.
func ValidRegistrationCode(s string) bool {
	if len(s) != RegistrationCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
