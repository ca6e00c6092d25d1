package sites

import (
	"crypto/rand"
	"math/big"
)

// PasswordLength is the length of generated admin passwords.
const PasswordLength = 16

const (
	passwordAlnum   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	passwordSpecial = "!@#$%^&*()"
	passwordExtra   = "-_ []{}<>~`+=,.;:/?|"
)

var passwordChars = passwordAlnum + passwordSpecial + passwordExtra

// GeneratePassword returns a random PasswordLength-character password drawn
// from letters, digits, and punctuation.
func GeneratePassword() (string, error) {
	limit := big.NewInt(int64(len(passwordChars)))
	b := make([]byte, PasswordLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = passwordChars[n.Int64()]
	}
	return string(b), nil
}
