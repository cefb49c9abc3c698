// Package credential holds provider credential maps and the rules for
// masking, restoring and field-level encryption of their secret values.
package credential

import (
	"encoding/json"
	"fmt"

	"github.com/tiendc/go-deepcopy"
)

// HiddenValue is returned to clients in place of a stored secret. Receiving it
// back on a write means "keep the stored value for this field".
const HiddenValue = "[__HIDDEN__]"

// Credentials is a provider credential form as submitted by a client or as
// stored (with secret fields encrypted).
type Credentials map[string]any

// Clone returns a deep copy. Nested maps and slices are copied too, so a
// redacted or spliced copy never aliases the original.
func (c Credentials) Clone() Credentials {
	if c == nil {
		return nil
	}
	var out Credentials
	if err := deepcopy.Copy(&out, c); err != nil {
		// deepcopy only fails on unsupported kinds (chan, func); JSON-shaped
		// maps never hit that, so fall back to a JSON round trip.
		out = make(Credentials, len(c))
		if b, mErr := json.Marshal(c); mErr == nil {
			_ = json.Unmarshal(b, &out)
		}
	}
	return out
}

// String returns the value of key when it is a non-empty string.
func (c Credentials) String(key string) (string, bool) {
	v, ok := c[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Marshal encodes credentials for the encrypted_config column.
func Marshal(c Credentials) ([]byte, error) {
	if c == nil {
		c = Credentials{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}
	return b, nil
}

// Unmarshal decodes the encrypted_config column. An empty column yields an
// empty map.
func Unmarshal(b []byte) (Credentials, error) {
	c := Credentials{}
	if len(b) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return c, nil
}
