// Package crypto implements the tenant credential codec: RSA-OAEP key wrapping
// of a per-message AES-128-GCM key ("hybrid" blobs), the legacy pure RSA-OAEP
// format, and a symmetric sealer for values that leave the process (cache).
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // OAEP label hash; SHA-1 keeps legacy blobs readable
	"fmt"
	"io"
)

// HybridPrefix tags blobs written in the hybrid format. Buffers without it are
// treated as legacy RSA-OAEP ciphertext.
const HybridPrefix = "HYBRID:"

const (
	aesKeySize = 16 // AES-128
	nonceSize  = 12 // standard GCM nonce length
	tagSize    = 16
)

// Encrypt encrypts plaintext for the holder of the private key matching
// publicKeyPEM. The result layout is
//
//	"HYBRID:" || RSA-OAEP(aesKey) || nonce || tag || ciphertext
//
// where the wrapped key is exactly the RSA modulus size.
func Encrypt(plaintext []byte, publicKeyPEM string) ([]byte, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("rand key: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand nonce: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	// Seal appends the tag after the ciphertext; the wire format wants it first.
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	wrapped, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}
	if err := checkWrappedKey(wrapped, pub); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(HybridPrefix)+len(wrapped)+nonceSize+tagSize+len(ct))
	out = append(out, HybridPrefix...)
	out = append(out, wrapped...)
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return out, nil
}

// Decrypt reverses Encrypt. Buffers that do not carry HybridPrefix are
// decrypted as legacy RSA-OAEP ciphertext of the whole plaintext.
func Decrypt(blob []byte, privateKeyPEM string) ([]byte, error) {
	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	if !bytes.HasPrefix(blob, []byte(HybridPrefix)) {
		return decryptLegacy(blob, priv)
	}

	body := blob[len(HybridPrefix):]
	keyLen := priv.Size()
	if len(body) < keyLen+nonceSize+tagSize {
		return nil, fmt.Errorf("%w: hybrid blob is %d bytes, header needs %d",
			ErrCryptoFormat, len(blob), len(HybridPrefix)+keyLen+nonceSize+tagSize)
	}

	wrapped := body[:keyLen]
	nonce := body[keyLen : keyLen+nonceSize]
	tag := body[keyLen+nonceSize : keyLen+nonceSize+tagSize]
	ct := body[keyLen+nonceSize+tagSize:]

	key, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap key: %v", ErrAuthenticationFailed, err)
	}
	if len(key) != aesKeySize {
		return nil, fmt.Errorf("%w: unwrapped key is %d bytes", ErrCryptoFormat, len(key))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}

// EncryptLegacy produces a pre-hybrid blob: RSA-OAEP over the whole plaintext.
// New data is never written this way; it exists for migration tooling and to
// exercise the legacy read path.
func EncryptLegacy(plaintext []byte, publicKeyPEM string) ([]byte, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	out, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: legacy encrypt: %v", ErrCryptoFormat, err)
	}
	return out, nil
}

func decryptLegacy(blob []byte, priv *rsa.PrivateKey) ([]byte, error) {
	if len(blob) != priv.Size() {
		return nil, fmt.Errorf("%w: legacy blob is %d bytes, want %d", ErrCryptoFormat, len(blob), priv.Size())
	}
	plaintext, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, priv, blob, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: legacy decrypt: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}

// checkWrappedKey enforces that the wrapped AES key occupies exactly the
// modulus size; the decoder slices by that length.
func checkWrappedKey(wrapped []byte, pub *rsa.PublicKey) error {
	if len(wrapped) != pub.Size() {
		return fmt.Errorf("%w: wrapped key is %d bytes, want %d", ErrCryptoFormat, len(wrapped), pub.Size())
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
