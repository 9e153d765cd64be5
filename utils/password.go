package utils

import (
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

var passwordCost atomic.Int64

func init() {
	passwordCost.Store(int64(bcrypt.DefaultCost))
}

// SetPasswordCost changes the bcrypt cost for new hashes. Values outside bcrypt's range are
// clamped. Existing hashes keep verifying at their own cost.
func SetPasswordCost(cost int) {
	cost = min(max(cost, bcrypt.MinCost), bcrypt.MaxCost)
	passwordCost.Store(int64(cost))
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), int(passwordCost.Load()))
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
