package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const accessTokenBytes = 64

// newAccessToken mints an opaque bearer credential: 64 random bytes,
// hex-encoded. The token is generated once per user and matched
// byte-for-byte against the store on every request.
func newAccessToken() (string, error) {
	buf := make([]byte, accessTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mint access token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
