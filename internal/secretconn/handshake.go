package secretconn

import (
	"bytes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// handshakeStep tracks the handshake state machine. The transitions are
// strictly NewHandshake -> GotKey -> GotSignature; anything else is
// ErrProtocolMisuse.
type handshakeStep int

const (
	stepAwaitingEphKey handshakeStep = iota
	stepAwaitingAuthSig
	stepDone
)

// Handshake establishes a secret connection between two peers. It holds
// the ephemeral key until the Diffie-Hellman exchange consumes it, then
// the derived ciphers and local signature until the peer authenticates.
type Handshake struct {
	version Version
	step    handshakeStep

	localPriv    ed25519.PrivateKey
	localEphPub  [KeySize]byte
	localEphPriv *[KeySize]byte

	scMAC        [KeySize]byte
	kdfChallenge [KeySize]byte

	sendCipher cipher.AEAD
	recvCipher cipher.AEAD

	localSignature []byte
}

// NewHandshake generates a fresh ephemeral keypair and returns the
// handshake in the AwaitingEphKey state together with the local
// ephemeral public key for the caller to transmit.
func NewHandshake(localPriv ed25519.PrivateKey, version Version) (*Handshake, [KeySize]byte, error) {
	ephPriv, ephPub, err := generateEphemeralKeypair()
	if err != nil {
		return nil, [KeySize]byte{}, err
	}

	h := &Handshake{
		version:      version,
		step:         stepAwaitingEphKey,
		localPriv:    localPriv,
		localEphPub:  ephPub,
		localEphPriv: &ephPriv,
	}
	return h, ephPub, nil
}

// GotKey consumes the local ephemeral private key to perform the
// Diffie-Hellman agreement with the peer's ephemeral public key, derives
// the session ciphers and the challenge, and signs the challenge with
// the long-term identity key. Transitions to AwaitingAuthSig.
func (h *Handshake) GotKey(remoteEphPub [KeySize]byte) error {
	if h.localEphPriv == nil || h.step != stepAwaitingEphKey {
		return fmt.Errorf("%w: ephemeral key already consumed", ErrProtocolMisuse)
	}
	ephPriv := h.localEphPriv
	h.localEphPriv = nil

	shared := computeSharedSecret(ephPriv, &remoteEphPub)
	zeroKey(ephPriv)
	defer zeroKey(&shared)

	// Reject all-zero outputs from X25519, i.e. low-order points. The
	// comparison is constant time.
	var zero [KeySize]byte
	if subtle.ConstantTimeCompare(shared[:], zero[:]) == 1 {
		return ErrInvalidKey
	}

	lower, upper := sort32(h.localEphPub, remoteEphPub)
	localIsLower := bytes.Compare(remoteEphPub[:], h.localEphPub[:]) > 0

	tr := newTranscript()
	tr.appendMessage(labelEphLowerPublicKey, lower[:])
	tr.appendMessage(labelEphUpperPublicKey, upper[:])
	tr.appendMessage(labelDHSecret, shared[:])
	copy(h.scMAC[:], tr.challengeBytes(labelSecretConnectionMAC, KeySize))

	secrets, err := deriveSecrets(&shared, localIsLower)
	if err != nil {
		return err
	}
	defer secrets.zero()
	h.kdfChallenge = secrets.challenge

	challenge := h.challengeInput()
	h.localSignature = ed25519.Sign(h.localPriv, challenge)

	if h.sendCipher, err = chacha20poly1305.New(secrets.sendSecret[:]); err != nil {
		return fmt.Errorf("%w: create send cipher: %v", ErrCrypto, err)
	}
	if h.recvCipher, err = chacha20poly1305.New(secrets.recvSecret[:]); err != nil {
		return fmt.Errorf("%w: create recv cipher: %v", ErrCrypto, err)
	}

	h.step = stepAwaitingAuthSig
	return nil
}

// GotSignature verifies the peer's signature over the session challenge
// and returns the peer's long-term public key. Only Ed25519 keys are
// accepted. Transitions to Done.
func (h *Handshake) GotSignature(msg AuthSigMessage) (ed25519.PublicKey, error) {
	if h.step != stepAwaitingAuthSig {
		return nil, fmt.Errorf("%w: signature received before key exchange", ErrProtocolMisuse)
	}

	if msg.PubKey == nil {
		return nil, fmt.Errorf("%w: missing public key", ErrCrypto)
	}
	if msg.PubKey.Type != KeyTypeEd25519 {
		return nil, fmt.Errorf("%w: unsupported public key type", ErrCrypto)
	}
	if len(msg.PubKey.Bytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key is %d bytes, want %d", ErrCrypto, len(msg.PubKey.Bytes), ed25519.PublicKeySize)
	}
	if len(msg.Sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: signature is %d bytes, want %d", ErrCrypto, len(msg.Sig), ed25519.SignatureSize)
	}

	remotePub := ed25519.PublicKey(msg.PubKey.Bytes)
	if !ed25519.Verify(remotePub, h.challengeInput(), msg.Sig) {
		return nil, fmt.Errorf("%w: challenge signature verification failed", ErrCrypto)
	}

	h.step = stepDone
	return remotePub, nil
}

// challengeInput returns the bytes both peers sign: the transcript MAC
// under the transcript protocol, the raw KDF challenge otherwise.
func (h *Handshake) challengeInput() []byte {
	if h.version.HasTranscript() {
		return h.scMAC[:]
	}
	return h.kdfChallenge[:]
}

// generateEphemeralKeypair generates a fresh X25519 keypair. The private
// scalar is clamped per the X25519 spec and must be zeroed after the
// shared secret is computed.
func generateEphemeralKeypair() (privateKey, publicKey [KeySize]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, privateKey[:]); err != nil {
		return privateKey, publicKey, fmt.Errorf("generate ephemeral key: %w", err)
	}

	privateKey[0] &= 248
	privateKey[31] &= 127
	privateKey[31] |= 64

	curve25519.ScalarBaseMult(&publicKey, &privateKey)

	return privateKey, publicKey, nil
}

// computeSharedSecret performs the X25519 Diffie-Hellman agreement. The
// caller is responsible for rejecting an all-zero result.
func computeSharedSecret(privateKey, remotePublicKey *[KeySize]byte) [KeySize]byte {
	var shared [KeySize]byte
	curve25519.ScalarMult(&shared, privateKey, remotePublicKey)
	return shared
}

// sort32 returns the pair ordered lexicographically (lower, upper).
func sort32(first, second [KeySize]byte) ([KeySize]byte, [KeySize]byte) {
	if bytes.Compare(second[:], first[:]) > 0 {
		return first, second
	}
	return second, first
}
