package secretconn

import "errors"

var (
	// ErrInvalidKey is returned when the Diffie-Hellman exchange yields an
	// all-zero shared secret, which indicates a low-order point and a
	// potential man-in-the-middle attack.
	ErrInvalidKey = errors.New("invalid ephemeral key: low-order points found (potential MitM attack)")

	// ErrCrypto is returned when frame authentication, signature
	// verification, or message decoding fails. Any ErrCrypto is terminal
	// for the connection.
	ErrCrypto = errors.New("crypto failure")

	// ErrProtocolMisuse is returned when handshake transitions are invoked
	// out of order, e.g. GotKey called twice.
	ErrProtocolMisuse = errors.New("handshake protocol misuse")

	// ErrFraming is returned when a decrypted frame declares a chunk length
	// larger than DataMaxSize.
	ErrFraming = errors.New("chunk exceeds maximum frame payload")
)
