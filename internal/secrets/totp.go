package secrets

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// The product does not send a live TOTP value. It derives the code once
// at the start of a fixed validity window and emails that, so any code
// derived inside the same window matches.
const codeValidity = 15 * time.Minute

// WindowStart buckets now down to the start of its validity window.
func WindowStart(now time.Time) time.Time {
	unix := now.Unix()
	period := int64(codeValidity / time.Second)
	return time.Unix(unix-unix%period, 0).UTC()
}

// Code derives the one-time code for the current validity window from a
// decrypted base32 TOTP secret.
func Code(secret string, now time.Time) (string, error) {
	code, err := totp.GenerateCode(strings.TrimSpace(secret), WindowStart(now))
	if err != nil {
		return "", fmt.Errorf("derive otp code: %w", err)
	}
	return code, nil
}
