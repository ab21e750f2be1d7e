package services

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
)

func GenerateServerSeed() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate server seed: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

func HashServerSeed(seed string) string {
	hash := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(hash[:])
}

// CrashPointFromSeed derives the crash point of a round from HMAC-SHA256(serverSeed,
// roundID). The first 52 bits give a uniform float r, and the point is
// floor(100*(1-edge)/(1-r))/100 clamped to [1, ceiling].
func CrashPointFromSeed(serverSeed, roundID string, houseEdge, ceiling float64) float64 {
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(roundID))
	hash := hex.EncodeToString(h.Sum(nil))

	n, _ := strconv.ParseUint(hash[:13], 16, 64)
	r := float64(n) / math.Pow(2, 52)

	crashPoint := math.Floor(100*(1-houseEdge)/(1-r)) / 100.0

	if crashPoint < 1.0 {
		crashPoint = 1.0
	}
	if crashPoint > ceiling {
		crashPoint = ceiling
	}

	return crashPoint
}
