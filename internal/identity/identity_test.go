package identity

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	kp1, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	kp2, err := Generate()
	if err != nil {
		t.Fatalf("Generate() second call error = %v", err)
	}

	if kp1.ID() == kp2.ID() {
		t.Error("two generated identities are identical")
	}
	if kp1.ID().IsZero() {
		t.Error("generated identity has zero ID")
	}
}

func TestFromSeedDeterministic(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}

	kp1, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("FromSeed() error = %v", err)
	}
	kp2, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("FromSeed() error = %v", err)
	}

	if kp1.ID() != kp2.ID() {
		t.Error("same seed produced different identities")
	}
}

func TestFromSeedBadLength(t *testing.T) {
	if _, err := FromSeed(make([]byte, 16)); err == nil {
		t.Error("FromSeed with short seed should fail")
	}
}

func TestParsePeerID(t *testing.T) {
	kp, _ := Generate()
	id := kp.ID()

	parsed, err := ParsePeerID(id.String())
	if err != nil {
		t.Fatalf("ParsePeerID() error = %v", err)
	}
	if parsed != id {
		t.Error("parsed ID does not match original")
	}

	// 0x prefix and surrounding whitespace are tolerated
	parsed, err = ParsePeerID("  0x" + id.String() + "\n")
	if err != nil {
		t.Fatalf("ParsePeerID() with prefix error = %v", err)
	}
	if parsed != id {
		t.Error("parsed prefixed ID does not match original")
	}

	if _, err := ParsePeerID("abcd"); err == nil {
		t.Error("ParsePeerID with short string should fail")
	}
	if _, err := ParsePeerID(strings.Repeat("zz", 32)); err == nil {
		t.Error("ParsePeerID with non-hex string should fail")
	}
}

func TestShortString(t *testing.T) {
	kp, _ := Generate()
	short := kp.ID().ShortString()
	if len(short) != 8 {
		t.Errorf("ShortString() length = %d, want 8", len(short))
	}
	if !strings.HasPrefix(kp.ID().String(), short) {
		t.Error("ShortString() is not a prefix of String()")
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if err := kp.Store(dir); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !Exists(dir) {
		t.Fatal("Exists() = false after Store")
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ID() != kp.ID() {
		t.Error("loaded identity does not match stored identity")
	}
}

func TestLoadOrCreate(t *testing.T) {
	dir := t.TempDir()

	kp1, created, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if !created {
		t.Error("first LoadOrCreate should create")
	}

	kp2, created, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("second LoadOrCreate() error = %v", err)
	}
	if created {
		t.Error("second LoadOrCreate should load")
	}
	if kp1.ID() != kp2.ID() {
		t.Error("LoadOrCreate returned a different identity")
	}
}

func TestPeerIDTextMarshalling(t *testing.T) {
	kp, _ := Generate()
	id := kp.ID()

	text, err := id.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}

	var decoded PeerID
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if decoded != id {
		t.Error("text round trip changed the ID")
	}
}
