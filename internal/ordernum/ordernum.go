// Package ordernum generates human-readable order numbers. Numbers embed a
// timestamp plus a random suffix; uniqueness is ultimately enforced by the
// store's unique constraint, with the caller retrying on collision.
package ordernum

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// New returns an order number of the form PREFIX-YYYYMMDD-HHMMSS-XXXXXX,
// where XXXXXX is a random hex suffix.
func New(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "POS"
	}
	now := time.Now().UTC()
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%s-%06d", prefix, now.Format("20060102-150405"), now.Nanosecond()%1000000)
	}
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102-150405"), strings.ToUpper(hex.EncodeToString(buf)))
}
