package user

import (
	"fmt"
	"os"
	"strconv"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/apperr"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 20

	DefaultBcryptCost = 12

	PasswordPolicy = "password must be 8-20 characters long and include at least one uppercase letter, one lowercase letter, one number, and one special character"
)

// CheckPasswordPolicy enforces length 8-20 with at least one ASCII upper,
// lower, digit and one symbol (anything that is not an ASCII letter or digit).
func CheckPasswordPolicy(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return apperr.New(apperr.ErrWeakCredential, PasswordPolicy)
	}
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	if !(upper && lower && digit && symbol) {
		return apperr.New(apperr.ErrWeakCredential, PasswordPolicy)
	}
	return nil
}

// BcryptCostFromEnv reads BCRYPT_COST, bounded to 4..14.
func BcryptCostFromEnv() (int, error) {
	v := os.Getenv("BCRYPT_COST")
	if v == "" {
		return DefaultBcryptCost, nil
	}
	cost, err := strconv.Atoi(v)
	if err != nil || cost < bcrypt.MinCost || cost > 14 {
		return 0, fmt.Errorf("invalid BCRYPT_COST %q: want %d..14", v, bcrypt.MinCost)
	}
	return cost, nil
}
