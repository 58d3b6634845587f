package security

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrPINMismatch is returned when a PIN does not match its stored hash.
var ErrPINMismatch = errors.New("pin does not match")

// HashPIN returns the bcrypt hash stored in place of the PIN.
func HashPIN(pin string) (string, error) {
	if pin == "" {
		return "", errors.New("pin must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash pin: %w", err)
	}
	return string(hash), nil
}

// VerifyPIN compares a PIN with its stored hash in constant time.
func VerifyPIN(hash, pin string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPINMismatch
	}
	return fmt.Errorf("failed to verify pin: %w", err)
}

var (
	unknownOnce sync.Once
	unknownHash []byte
)

// VerifyUnknown spends one bcrypt comparison against a fixed hash and always
// reports a mismatch. Callers use it when the account does not exist, so an
// unknown username costs as much as a wrong PIN.
func VerifyUnknown(pin string) error {
	unknownOnce.Do(func() {
		unknownHash, _ = bcrypt.GenerateFromPassword([]byte("no account has this pin"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(unknownHash, []byte(pin))
	return ErrPINMismatch
}
