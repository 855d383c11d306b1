package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewLocalID produces a client-side identifier for objects created before the
// server has assigned one: timestamp plus a short random suffix, unique enough
// for a single editing session.
func NewLocalID(prefix string) string {
	n, _ := rand.Int(rand.Reader, big.NewInt(1<<44))
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), n.Text(36))
}
