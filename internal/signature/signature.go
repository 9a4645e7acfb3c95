// Package signature fingerprints rendered messages so unchanged content
// never triggers an edit.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
)

const imageMarker = "\n[image]"

// Compute hashes the rendered content together with the image reference.
// An absent image is the empty string.
func Compute(content, imageURL string) string {
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte(imageMarker))
	h.Write([]byte(imageURL))
	return hex.EncodeToString(h.Sum(nil))
}
