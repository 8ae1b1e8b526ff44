package store

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

const accessCodeLen = 8

// newAccessCode returns 8 lowercase base32 chars (~40 bits).
func newAccessCode() (string, error) {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return strings.ToLower(enc.EncodeToString(b[:]))[:accessCodeLen], nil
}
