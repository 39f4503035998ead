package secretconn

import (
	"bytes"
	"testing"
)

func TestDeriveSecretsComplementaryRoles(t *testing.T) {
	var shared [KeySize]byte
	for i := range shared {
		shared[i] = byte(i + 1)
	}

	lower, err := deriveSecrets(&shared, true)
	if err != nil {
		t.Fatalf("deriveSecrets(lower) error = %v", err)
	}
	upper, err := deriveSecrets(&shared, false)
	if err != nil {
		t.Fatalf("deriveSecrets(upper) error = %v", err)
	}

	// The lower peer's send key is the upper peer's recv key and vice
	// versa, so both ends agree on per-direction keys.
	if lower.sendSecret != upper.recvSecret {
		t.Error("lower send secret does not match upper recv secret")
	}
	if lower.recvSecret != upper.sendSecret {
		t.Error("lower recv secret does not match upper send secret")
	}
	if lower.challenge != upper.challenge {
		t.Error("challenges differ between roles")
	}

	if lower.sendSecret == lower.recvSecret {
		t.Error("send and recv secrets are identical")
	}
	var zero [KeySize]byte
	if lower.sendSecret == zero || lower.recvSecret == zero || lower.challenge == zero {
		t.Error("derived secret is zero")
	}
}

func TestDeriveSecretsDeterministic(t *testing.T) {
	var shared [KeySize]byte
	shared[0] = 0x42

	a, _ := deriveSecrets(&shared, true)
	b, _ := deriveSecrets(&shared, true)

	if a.sendSecret != b.sendSecret || a.recvSecret != b.recvSecret || a.challenge != b.challenge {
		t.Error("derivation is not deterministic")
	}

	shared[0] = 0x43
	c, _ := deriveSecrets(&shared, true)
	if a.sendSecret == c.sendSecret {
		t.Error("different shared secrets derived the same send key")
	}
}

func TestTranscriptDeterministic(t *testing.T) {
	lower := bytes.Repeat([]byte{0x01}, KeySize)
	upper := bytes.Repeat([]byte{0x02}, KeySize)
	shared := bytes.Repeat([]byte{0x03}, KeySize)

	mac := func(lo, hi, dh []byte) []byte {
		tr := newTranscript()
		tr.appendMessage(labelEphLowerPublicKey, lo)
		tr.appendMessage(labelEphUpperPublicKey, hi)
		tr.appendMessage(labelDHSecret, dh)
		return tr.challengeBytes(labelSecretConnectionMAC, 32)
	}

	a := mac(lower, upper, shared)
	b := mac(lower, upper, shared)
	if !bytes.Equal(a, b) {
		t.Error("transcript MAC is not deterministic")
	}
	if len(a) != 32 {
		t.Fatalf("transcript MAC length = %d, want 32", len(a))
	}

	// Swapping the absorbed key order must change the MAC.
	c := mac(upper, lower, shared)
	if bytes.Equal(a, c) {
		t.Error("transcript MAC ignores message order")
	}
}

func TestZeroHelpers(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	zeroBytes(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d = %d, want 0", i, v)
		}
	}

	var k [KeySize]byte
	k[7] = 0xFF
	zeroKey(&k)
	if k != ([KeySize]byte{}) {
		t.Error("key was not zeroed")
	}
}
