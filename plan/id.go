package plan

import (
	"crypto/rand"
)

// idAlphabet is URL-safe: ids travel inside exported snapshots and query
// paths without escaping.
const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

const idLength = 10

// NewID returns a 10-character URL-safe random identifier. Snapshots carry
// externally-minted ids of the same shape; the store never regenerates
// them on restore.
func NewID() string {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; if it somehow
		// does, an all-'A' id is still structurally valid.
		for i := range buf {
			buf[i] = 0
		}
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)&63]
	}
	return string(buf)
}
