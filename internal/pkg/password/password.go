// Package password hashes customer passwords with scrypt in the 96-byte
// scrypt-kdf envelope (magic, params, salt, checksum, HMAC), base64-encoded.
// The emailpass login provider verifies against this exact layout, so the
// cost parameters and framing here must not drift.
package password

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	logN    = 15
	costR   = 8
	costP   = 1
	saltLen = 32
	hashLen = 96
)

var magic = []byte("scrypt")

var ErrMalformedHash = errors.New("malformed password hash")

// Hash derives an scrypt hash of password with logN=15, r=8, p=1 and returns
// it base64-encoded.
func Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	buf, err := pack(password, salt)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Verify reports whether password matches an encoded hash produced by Hash
// (or by any scrypt-kdf compatible producer).
func Verify(password, encoded string) (bool, error) {
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if len(buf) != hashLen || !hmac.Equal(buf[:6], magic) {
		return false, ErrMalformedHash
	}
	n := 1 << buf[7]
	r := int(binary.BigEndian.Uint32(buf[8:12]))
	p := int(binary.BigEndian.Uint32(buf[12:16]))
	salt := buf[16:48]

	checksum := sha256.Sum256(buf[:48])
	if subtle.ConstantTimeCompare(checksum[:16], buf[48:64]) != 1 {
		return false, ErrMalformedHash
	}

	dk, err := scrypt.Key([]byte(password), salt, n, r, p, 64)
	if err != nil {
		return false, err
	}
	mac := hmac.New(sha256.New, dk[32:64])
	mac.Write(buf[:64])
	return hmac.Equal(mac.Sum(nil), buf[64:96]), nil
}

func pack(password string, salt []byte) ([]byte, error) {
	buf := make([]byte, hashLen)
	copy(buf[0:6], magic)
	buf[6] = 0
	buf[7] = logN
	binary.BigEndian.PutUint32(buf[8:12], costR)
	binary.BigEndian.PutUint32(buf[12:16], costP)
	copy(buf[16:48], salt)

	checksum := sha256.Sum256(buf[:48])
	copy(buf[48:64], checksum[:16])

	dk, err := scrypt.Key([]byte(password), salt, 1<<logN, costR, costP, 64)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	mac := hmac.New(sha256.New, dk[32:64])
	mac.Write(buf[:64])
	copy(buf[64:96], mac.Sum(nil))
	return buf, nil
}
