// Package tenant defines the tenant domain model for multi-tenancy.
package tenant

import "time"

// Tenant represents an isolated tenant in the system. EncryptPublicKey is the
// PEM public half of the tenant keypair; the private half never lives on the
// tenant row.
type Tenant struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Enabled          bool      `json:"enabled"`
	EncryptPublicKey string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasKeyPair reports whether a public key has been provisioned.
func (t *Tenant) HasKeyPair() bool {
	return t.EncryptPublicKey != ""
}
