// Package identity provides long-term node identity management. A node's
// identity is an Ed25519 keypair that lives for the process lifetime and
// is used once per connection to sign the session challenge.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// PeerIDSize is the size of a PeerID in bytes: the full Ed25519
	// public key.
	PeerIDSize = ed25519.PublicKeySize

	// keyFileName is the name of the file storing the identity seed.
	keyFileName = "identity_key"
)

var (
	// ErrInvalidIDLength is returned when the ID length is incorrect.
	ErrInvalidIDLength = errors.New("invalid peer ID length: expected 32 bytes")

	// ErrInvalidHexString is returned when the hex string is malformed.
	ErrInvalidHexString = errors.New("invalid hex string for peer ID")

	// ZeroID represents an uninitialized peer ID.
	ZeroID = PeerID{}
)

// PeerID names a peer: the raw bytes of its long-term Ed25519 public key.
type PeerID [PeerIDSize]byte

// FromPublicKey derives the PeerID of an Ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) PeerID {
	var id PeerID
	copy(id[:], pub)
	return id
}

// ParsePeerID parses a PeerID from a hex string.
func ParsePeerID(s string) (PeerID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")

	if len(s) != PeerIDSize*2 {
		return ZeroID, fmt.Errorf("%w: got %d hex chars, expected %d", ErrInvalidIDLength, len(s), PeerIDSize*2)
	}

	bytes, err := hex.DecodeString(s)
	if err != nil {
		return ZeroID, fmt.Errorf("%w: %v", ErrInvalidHexString, err)
	}

	var id PeerID
	copy(id[:], bytes)
	return id, nil
}

// String returns the full hex representation of the PeerID.
func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}

// ShortString returns a shortened hex representation (first 8 chars).
func (id PeerID) ShortString() string {
	return hex.EncodeToString(id[:4])
}

// PublicKey returns the PeerID as an Ed25519 public key.
func (id PeerID) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(id[:])
}

// IsZero returns true if the PeerID is uninitialized.
func (id PeerID) IsZero() bool {
	return id == ZeroID
}

// MarshalText implements encoding.TextMarshaler.
func (id PeerID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *PeerID) UnmarshalText(text []byte) error {
	parsed, err := ParsePeerID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Keypair is a node's long-term signing identity.
type Keypair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Generate creates a fresh identity keypair.
func Generate() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity keypair: %w", err)
	}
	return &Keypair{PublicKey: pub, PrivateKey: priv}, nil
}

// FromSeed derives the identity keypair from a 32-byte seed.
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity seed is %d bytes, expected %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Keypair{
		PublicKey:  priv.Public().(ed25519.PublicKey),
		PrivateKey: priv,
	}, nil
}

// ID returns the PeerID of this identity.
func (kp *Keypair) ID() PeerID {
	return FromPublicKey(kp.PublicKey)
}

// Store persists the identity seed to the data directory. The seed is
// written atomically with owner-only permissions.
func (kp *Keypair) Store(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	filePath := filepath.Join(dataDir, keyFileName)
	seed := hex.EncodeToString(kp.PrivateKey.Seed())

	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, []byte(seed+"\n"), 0600); err != nil {
		return fmt.Errorf("write identity key: %w", err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("persist identity key: %w", err)
	}

	return nil
}

// Load reads an identity from the data directory.
func Load(dataDir string) (*Keypair, error) {
	filePath := filepath.Join(dataDir, keyFileName)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("identity key not found at %s", filePath)
		}
		return nil, fmt.Errorf("read identity key: %w", err)
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode identity key: %w", err)
	}

	return FromSeed(seed)
}

// LoadOrCreate loads an existing identity from the data directory, or
// creates and persists a new one if none exists. The second return value
// reports whether a new identity was created.
func LoadOrCreate(dataDir string) (*Keypair, bool, error) {
	kp, err := Load(dataDir)
	if err == nil {
		return kp, false, nil
	}
	if !strings.Contains(err.Error(), "not found") {
		return nil, false, err
	}

	kp, err = Generate()
	if err != nil {
		return nil, false, err
	}
	if err := kp.Store(dataDir); err != nil {
		return nil, false, err
	}
	return kp, true, nil
}

// Exists checks if an identity key file exists in the data directory.
func Exists(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, keyFileName))
	return err == nil
}
