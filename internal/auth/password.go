package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes an admin password for ADMIN_PASSWORD_HASH
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword reports nil when plain matches the bcrypt hash
func ComparePassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
