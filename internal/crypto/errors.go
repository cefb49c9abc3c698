package crypto

import "errors"

var (
	// ErrCryptoFormat marks malformed input: bad PEM, truncated buffers, wrong
	// segment sizes. It is never worth retrying.
	ErrCryptoFormat = errors.New("crypto: malformed input")

	// ErrAuthenticationFailed is returned when the GCM tag or the RSA-OAEP
	// padding does not verify. It signals tampering or the wrong private key.
	ErrAuthenticationFailed = errors.New("crypto: authentication failed")
)
