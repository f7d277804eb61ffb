// Package runid mints identifiers for probe runs. The identifier doubles
// as the local part of the throwaway signup email, so every database row
// a run creates is traceable back to it by name alone.
package runid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const prefix = "canary"

// New returns an identifier of the form canary-<unix>-<4 hex chars>.
// The timestamp keeps ids sortable; the random suffix keeps two runs
// started within the same second from colliding.
func New(now time.Time) (string, error) {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.Unix(), hex.EncodeToString(buf)), nil
}

// Email composes the signup address for a run id.
func Email(id, domain string) string {
	return fmt.Sprintf("%s@%s", id, domain)
}
