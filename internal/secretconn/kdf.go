package secretconn

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// kdfInfo is the context string for HKDF key derivation.
const kdfInfo = "TENDERMINT_SECRET_CONNECTION_KEY_AND_CHALLENGE_GEN"

// sessionSecrets holds the two symmetric session keys and the challenge
// derived from a Diffie-Hellman shared secret.
type sessionSecrets struct {
	recvSecret [KeySize]byte
	sendSecret [KeySize]byte
	challenge  [KeySize]byte
}

// deriveSecrets derives 96 bytes from the shared secret using HKDF-SHA256
// with an empty salt, split as k0 || k1 || challenge. The peer whose
// ephemeral public key sorts lexicographically lower receives with k0 and
// sends with k1; the other peer uses the opposite assignment, so both
// ends agree on per-direction keys without a client/server role.
func deriveSecrets(sharedSecret *[KeySize]byte, localIsLower bool) (*sessionSecrets, error) {
	reader := hkdf.New(sha256.New, sharedSecret[:], nil, []byte(kdfInfo))

	var out [3 * KeySize]byte
	if _, err := io.ReadFull(reader, out[:]); err != nil {
		return nil, fmt.Errorf("derive session secrets: %w", err)
	}
	defer zeroBytes(out[:])

	s := &sessionSecrets{}
	if localIsLower {
		copy(s.recvSecret[:], out[0:KeySize])
		copy(s.sendSecret[:], out[KeySize:2*KeySize])
	} else {
		copy(s.sendSecret[:], out[0:KeySize])
		copy(s.recvSecret[:], out[KeySize:2*KeySize])
	}
	copy(s.challenge[:], out[2*KeySize:])

	return s, nil
}

// zero clears the derived key material.
func (s *sessionSecrets) zero() {
	zeroKey(&s.recvSecret)
	zeroKey(&s.sendSecret)
	zeroKey(&s.challenge)
}

// zeroBytes zeroes out a byte slice to prevent sensitive data from
// lingering in memory.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// zeroKey zeroes out a key array.
func zeroKey(k *[KeySize]byte) {
	for i := range k {
		k[i] = 0
	}
}
