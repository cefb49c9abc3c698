package service

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/Strob0t/CredForge/internal/crypto"
	"github.com/Strob0t/CredForge/internal/domain/credential"
	"github.com/Strob0t/CredForge/internal/port/keystore"
)

// Encrypter encrypts and decrypts single secret values for a tenant. Tokens
// are base64 (standard encoding) of a hybrid blob.
type Encrypter struct {
	keys keystore.KeyStore
}

var (
	_ credential.Encrypter = (*Encrypter)(nil)
	_ credential.Decrypter = (*Encrypter)(nil)
)

// NewEncrypter creates an Encrypter backed by keys.
func NewEncrypter(keys keystore.KeyStore) *Encrypter {
	return &Encrypter{keys: keys}
}

// EncryptToken encrypts plaintext with the tenant's public key.
func (e *Encrypter) EncryptToken(ctx context.Context, tenantID, plaintext string) (string, error) {
	pub, err := e.keys.PublicKey(ctx, tenantID)
	if err != nil {
		return "", err
	}
	blob, err := crypto.Encrypt([]byte(plaintext), pub)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptToken decrypts a single token.
func (e *Encrypter) DecryptToken(ctx context.Context, tenantID, token string) (string, error) {
	out, err := e.DecryptTokens(ctx, tenantID, []string{token})
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// DecryptTokens decrypts tokens in order. The private key is fetched once
// per call and dropped when the call returns.
func (e *Encrypter) DecryptTokens(ctx context.Context, tenantID string, tokens []string) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	priv, err := e.keys.PrivateKey(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(tokens))
	for i, token := range tokens {
		blob, err := base64.StdEncoding.DecodeString(token)
		if err != nil {
			return nil, fmt.Errorf("%w: token is not base64", crypto.ErrCryptoFormat)
		}
		plain, err := crypto.Decrypt(blob, priv)
		if err != nil {
			return nil, err
		}
		out[i] = string(plain)
	}
	return out, nil
}
