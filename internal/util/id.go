package util

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomBase36(n int) string {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(base36)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			out[i] = '0'
			continue
		}
		out[i] = base36[idx.Int64()]
	}
	return string(out)
}

// NewSlug builds a public landing-page slug from two independent random
// base-36 substrings, matching the shape of the original page links.
func NewSlug() string {
	return randomBase36(6) + randomBase36(4)
}
