package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Strob0t/CredForge/internal/domain"
)

// ErrMissingSecret is returned when a client submits HiddenValue for a field
// that has no stored value to fall back to.
var ErrMissingSecret = fmt.Errorf("%w: hidden value submitted without a stored secret", domain.ErrValidation)

// ErrMaskedSecret is returned when a secret field holds a masked display
// value that does not mask the stored secret.
var ErrMaskedSecret = fmt.Errorf("%w: masked value submitted as a secret", domain.ErrValidation)

// Encrypter turns a tenant's plaintext secret into a storable token.
type Encrypter interface {
	EncryptToken(ctx context.Context, tenantID, plaintext string) (string, error)
}

// Decrypter reverses Encrypter. DecryptTokens decrypts several tokens with a
// single private-key fetch.
type Decrypter interface {
	DecryptToken(ctx context.Context, tenantID, token string) (string, error)
	DecryptTokens(ctx context.Context, tenantID string, tokens []string) ([]string, error)
}

// Mask renders a secret for display: first four + "****" + last four, or
// "****" + last four when the value has eight characters or fewer. Values
// shorter than four characters are left-padded with '*' so that masking a
// masked value is a no-op.
func Mask(v string) string {
	r := []rune(v)
	if len(r) < 4 {
		return "****" + strings.Repeat("*", 4-len(r)) + string(r)
	}
	if len(r) <= 8 {
		return "****" + string(r[len(r)-4:])
	}
	return string(r[:4]) + "****" + string(r[len(r)-4:])
}

// IsMasked reports whether v has the shape Mask produces.
func IsMasked(v string) bool {
	r := []rune(v)
	switch len(r) {
	case 8:
		return string(r[:4]) == "****"
	case 12:
		return string(r[4:8]) == "****"
	}
	return false
}

// Redact returns a deep copy of c with every secret string field masked.
func Redact(c Credentials, secretVars []string) Credentials {
	out := c.Clone()
	for _, k := range secretVars {
		if v, ok := out.String(k); ok {
			out[k] = Mask(v)
		}
	}
	return out
}

// Restore returns a copy of incoming where every secret field equal to
// HiddenValue is replaced by the decrypted value of the same field in
// stored (whose secret fields hold encrypted tokens). Non-sentinel values
// pass through untouched.
func Restore(ctx context.Context, incoming, stored Credentials, secretVars []string, dec Decrypter, tenantID string) (Credentials, error) {
	out := incoming.Clone()
	if out == nil {
		out = Credentials{}
	}

	var fields, tokens []string
	for _, k := range secretVars {
		if v, ok := out[k].(string); !ok || v != HiddenValue {
			continue
		}
		token, ok := stored.String(k)
		if !ok {
			return nil, fmt.Errorf("field %q: %w", k, ErrMissingSecret)
		}
		fields = append(fields, k)
		tokens = append(tokens, token)
	}
	if len(tokens) == 0 {
		return out, nil
	}

	plain, err := dec.DecryptTokens(ctx, tenantID, tokens)
	if err != nil {
		return nil, fmt.Errorf("restore hidden fields: %w", err)
	}
	for i, k := range fields {
		out[k] = plain[i]
	}
	return out, nil
}

// RestoreMasked returns a copy of incoming where every secret field holding
// the masked form of its stored value is replaced by that value. A masked
// field with no stored value, or one that masks something else, fails with
// ErrMaskedSecret.
func RestoreMasked(ctx context.Context, incoming, stored Credentials, secretVars []string, dec Decrypter, tenantID string) (Credentials, error) {
	out := incoming.Clone()
	if out == nil {
		out = Credentials{}
	}

	var fields, masked, tokens []string
	for _, k := range secretVars {
		v, ok := out[k].(string)
		if !ok || !IsMasked(v) {
			continue
		}
		token, ok := stored.String(k)
		if !ok {
			return nil, fmt.Errorf("field %q: %w", k, ErrMaskedSecret)
		}
		fields = append(fields, k)
		masked = append(masked, v)
		tokens = append(tokens, token)
	}
	if len(tokens) == 0 {
		return out, nil
	}

	plain, err := dec.DecryptTokens(ctx, tenantID, tokens)
	if err != nil {
		return nil, fmt.Errorf("restore masked fields: %w", err)
	}
	for i, k := range fields {
		if Mask(plain[i]) != masked[i] {
			return nil, fmt.Errorf("field %q: %w", k, ErrMaskedSecret)
		}
		out[k] = plain[i]
	}
	return out, nil
}

// EncryptSecrets returns a copy of c where each secret string field is
// replaced by its encrypted token. Each field is encrypted on its own so a
// single hidden field can later be restored without touching the others.
func EncryptSecrets(ctx context.Context, c Credentials, secretVars []string, enc Encrypter, tenantID string) (Credentials, error) {
	out := c.Clone()
	for _, k := range secretVars {
		v, ok := out.String(k)
		if !ok {
			continue
		}
		if v == HiddenValue {
			return nil, fmt.Errorf("field %q: %w", k, ErrMissingSecret)
		}
		if IsMasked(v) {
			return nil, fmt.Errorf("field %q: %w", k, ErrMaskedSecret)
		}
		token, err := enc.EncryptToken(ctx, tenantID, v)
		if err != nil {
			return nil, fmt.Errorf("encrypt field %q: %w", k, err)
		}
		out[k] = token
	}
	return out, nil
}

// DecryptSecrets reverses EncryptSecrets.
func DecryptSecrets(ctx context.Context, c Credentials, secretVars []string, dec Decrypter, tenantID string) (Credentials, error) {
	out := c.Clone()
	if out == nil {
		return nil, nil
	}
	var fields, tokens []string
	for _, k := range secretVars {
		if token, ok := out.String(k); ok {
			fields = append(fields, k)
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return out, nil
	}
	plain, err := dec.DecryptTokens(ctx, tenantID, tokens)
	if err != nil {
		return nil, err
	}
	if len(plain) != len(fields) {
		return nil, errors.New("decrypt: token count mismatch")
	}
	for i, k := range fields {
		out[k] = plain[i]
	}
	return out, nil
}
