package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Stored hashes are self-describing ("iterations:saltHex:hashHex") so the
// iteration count can be raised over time without invalidating old hashes.
const (
	hashIterations = 120000
	hashSaltLength = 16
	hashKeyLength  = 64
)

func HashPassword(password string) (string, error) {
	salt := make([]byte, hashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := pbkdf2.Key([]byte(password), salt, hashIterations, hashKeyLength, sha512.New)
	return fmt.Sprintf("%d:%s:%s", hashIterations, hex.EncodeToString(salt), hex.EncodeToString(key)), nil
}

// VerifyPassword re-derives the key using the parameters embedded in the
// stored hash and compares in constant time. Malformed stored values fail
// closed rather than erroring.
func VerifyPassword(password string, stored string) bool {
	parts := strings.Split(stored, ":")
	if len(parts) != 3 {
		return false
	}
	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations < 1 {
		return false
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil || len(salt) == 0 {
		return false
	}
	expected, err := hex.DecodeString(parts[2])
	if err != nil || len(expected) == 0 {
		return false
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, len(expected), sha512.New)
	return subtle.ConstantTimeCompare(key, expected) == 1
}
