// Package keystore defines the port for tenant RSA keypairs.
package keystore

import (
	"context"
	"errors"
)

// ErrKeyNotFound means the tenant has no provisioned key. It is a hard error:
// credentials are never stored or read without a keypair.
var ErrKeyNotFound = errors.New("tenant key not found")

// KeyStore resolves a tenant's PEM-encoded keys. Private keys come from a
// separate store than the tenant record and must not be cached by callers.
type KeyStore interface {
	PublicKey(ctx context.Context, tenantID string) (string, error)
	PrivateKey(ctx context.Context, tenantID string) (string, error)
}

// PrivateKeyWriter persists a private key for a tenant (provisioning only).
type PrivateKeyWriter interface {
	WritePrivateKey(ctx context.Context, tenantID, pem string) error
}
