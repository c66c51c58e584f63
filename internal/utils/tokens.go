package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// NewRefreshToken — opaque hex-токен из nBytes случайных байт.
// Меньше 32 байт (256 бит) не выдаём.
func NewRefreshToken(nBytes int) (string, error) {
	if nBytes < 32 {
		nBytes = 32
	}
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
