// Package secrets recovers the one-time code a signup run needs without
// touching a mailbox. The product stores each user's TOTP secret
// Fernet-encrypted and base64-wrapped; the probe decrypts it with the
// shared key and derives the same code the product emailed.
package secrets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/fernet/fernet-go"
)

// Vault decrypts secrets sealed with the product's Fernet key.
type Vault struct {
	keys []*fernet.Key
}

func NewVault(encodedKey string) (*Vault, error) {
	key, err := fernet.DecodeKey(strings.TrimSpace(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("decode fernet key: %w", err)
	}
	return &Vault{keys: []*fernet.Key{key}}, nil
}

// Decrypt unwraps a stored secret. Values are stored as
// base64url(fernet-token), so the outer layer is stripped before the
// token is verified. A zero TTL skips token expiry, matching how the
// product reads these values back.
func (v *Vault) Decrypt(stored string) (string, error) {
	if v == nil {
		return "", errors.New("vault not initialized")
	}
	trimmed := strings.TrimSpace(stored)
	if trimmed == "" {
		return "", errors.New("stored secret is empty")
	}

	token, err := base64.URLEncoding.DecodeString(trimmed)
	if err != nil {
		token, err = base64.RawURLEncoding.DecodeString(trimmed)
		if err != nil {
			return "", fmt.Errorf("decode secret: %w", err)
		}
	}

	msg := fernet.VerifyAndDecrypt(token, 0, v.keys)
	if msg == nil {
		return "", errors.New("secret token rejected by fernet key")
	}
	return string(msg), nil
}
