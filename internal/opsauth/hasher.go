// Package opsauth gates the /admin/* ops routes in internal/opsapi: an
// argon2id-hashed operator password, a JWT session token, a Redis-backed
// revocation list for logout, and a login-attempt rate limiter.
package opsauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// HashParams are the argon2id cost parameters baked into every hash this
// package produces. Existing hashes remain verifiable even if these change,
// since the cost parameters travel with the encoded hash.
type HashParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var defaultHashParams = HashParams{
	Memory:      64 * 1024,
	Iterations:  1,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPassword returns an encoded argon2id hash in the standard
// $argon2id$v=19$m=...,t=...,p=...$salt$hash form.
func HashPassword(password string) (string, error) {
	salt := make([]byte, defaultHashParams.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("opsauth: generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, defaultHashParams.Iterations,
		defaultHashParams.Memory, defaultHashParams.Parallelism, defaultHashParams.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, defaultHashParams.Memory, defaultHashParams.Iterations,
		defaultHashParams.Parallelism, b64Salt, b64Hash), nil
}

// CheckPassword reports whether password matches encodedHash, in constant
// time with respect to the candidate hash comparison.
func CheckPassword(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, errors.New("opsauth: invalid hash format")
	}
	if parts[1] != "argon2id" {
		return false, errors.New("opsauth: unsupported hash variant")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, err
	}
	if version != argon2.Version {
		return false, errors.New("opsauth: incompatible argon2 version")
	}

	var p HashParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return false, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, err
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, err
	}
	p.KeyLength = uint32(len(decodedHash))

	candidate := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(decodedHash, candidate) == 1, nil
}
