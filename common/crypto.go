package common

import "golang.org/x/crypto/bcrypt"

// Password2Hash hashes a plain password for storage in the options table.
func Password2Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hashed), err
}

// ValidatePasswordAndHash reports whether password matches the stored
// bcrypt hash.
func ValidatePasswordAndHash(password string, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
