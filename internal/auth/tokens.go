package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

const (
	SessionTTL   = 7 * 24 * time.Hour
	MagicLinkTTL = 15 * time.Minute
	ResetTTL     = time.Hour
)

// NewToken returns a 64-char hex token from 32 crypto-random bytes.
func NewToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return hex.EncodeToString(b)
}
