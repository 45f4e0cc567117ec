package cassette

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// RequestSummary is the normalized request shape a fingerprint is computed
// over. Wall-clock time, random ids, and retry counters must never appear
// here; reordering prior values must invalidate the fingerprint.
type RequestSummary struct {
	Stage    string   `yaml:"stage"`
	Step     string   `yaml:"step"`
	Model    string   `yaml:"model"`
	Prior    []string `yaml:"prior,omitempty"`
	Feedback []string `yaml:"feedback,omitempty"`
}

// Fingerprint returns a stable hex digest of the request. Fields are hashed
// order-sensitively with length framing so that ("ab","c") and ("a","bc")
// cannot collide.
func Fingerprint(req RequestSummary) string {
	h := blake3.New()
	writeField(h, req.Stage)
	writeField(h, req.Step)
	writeField(h, req.Model)
	writeList(h, req.Prior)
	writeList(h, req.Feedback)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

func writeField(h *blake3.Hasher, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = h.Write(n[:])
	_, _ = h.Write([]byte(s))
}

func writeList(h *blake3.Hasher, items []string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(items)))
	_, _ = h.Write(n[:])
	for _, it := range items {
		writeField(h, it)
	}
}
