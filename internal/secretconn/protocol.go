package secretconn

import (
	"crypto/ed25519"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Version selects the wire encoding of the handshake messages and the
// challenge input that peers sign. Only the two known variants exist;
// there is deliberately no open extensibility here.
type Version int

const (
	// V0_33 is the pre-transcript protocol: raw ephemeral key encoding
	// and the KDF challenge as signature input.
	V0_33 Version = iota

	// V0_34 is the transcript protocol: protobuf ephemeral key encoding
	// and the transcript MAC as signature input.
	V0_34
)

// authSigMsgResponseLen is the exact wire size of an encoded
// AuthSigMessage for an Ed25519 key under either version:
// 32-byte key + 64-byte signature + framing overhead.
const authSigMsgResponseLen = 103

// legacyEd25519PubKeyPrefix is the registered-type prefix carried before
// Ed25519 public keys in the pre-protobuf auth-sig encoding.
var legacyEd25519PubKeyPrefix = [4]byte{0x16, 0x24, 0xDE, 0x64}

// String returns the Tendermint release the variant corresponds to.
func (v Version) String() string {
	switch v {
	case V0_33:
		return "v0.33"
	case V0_34:
		return "v0.34"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// ParseVersion parses a protocol version name as used in configuration
// files ("v0.33" or "v0.34").
func ParseVersion(s string) (Version, error) {
	switch s {
	case "v0.33", "0.33":
		return V0_33, nil
	case "v0.34", "0.34":
		return V0_34, nil
	default:
		return 0, fmt.Errorf("unknown protocol version %q", s)
	}
}

// HasTranscript reports whether the signed challenge is the transcript
// MAC (true) or the raw KDF challenge (false).
func (v Version) HasTranscript() bool {
	return v == V0_34
}

// AuthSigMsgResponseLen returns the number of bytes to read from the
// encrypted channel for the peer's AuthSigMessage.
func (v Version) AuthSigMsgResponseLen() int {
	return authSigMsgResponseLen
}

// EncodeInitialHandshake encodes the local ephemeral public key as the
// first message sent on the raw transport: one length byte followed by
// the version-specific key encoding.
func (v Version) EncodeInitialHandshake(ephPub *[KeySize]byte) []byte {
	if v.HasTranscript() {
		// Minimal protobuf: field 1, length-delimited 32 bytes.
		body := protowire.AppendTag(nil, 1, protowire.BytesType)
		body = protowire.AppendBytes(body, ephPub[:])
		out := make([]byte, 0, 1+len(body))
		out = append(out, byte(len(body)))
		return append(out, body...)
	}

	out := make([]byte, 0, 1+KeySize)
	out = append(out, byte(KeySize))
	return append(out, ephPub[:]...)
}

// DecodeInitialHandshake decodes the peer's ephemeral public key from the
// message body received after the length byte.
func (v Version) DecodeInitialHandshake(buf []byte) ([KeySize]byte, error) {
	var ephPub [KeySize]byte

	if !v.HasTranscript() {
		if len(buf) != KeySize {
			return ephPub, fmt.Errorf("%w: ephemeral key message is %d bytes, want %d", ErrCrypto, len(buf), KeySize)
		}
		copy(ephPub[:], buf)
		return ephPub, nil
	}

	num, typ, n := protowire.ConsumeTag(buf)
	if n < 0 || num != 1 || typ != protowire.BytesType {
		return ephPub, fmt.Errorf("%w: malformed ephemeral key message", ErrCrypto)
	}
	key, m := protowire.ConsumeBytes(buf[n:])
	if m < 0 || n+m != len(buf) || len(key) != KeySize {
		return ephPub, fmt.Errorf("%w: malformed ephemeral key message", ErrCrypto)
	}
	copy(ephPub[:], key)
	return ephPub, nil
}

// KeyType identifies the variant carried in a PublicKey sum type.
type KeyType uint8

const (
	KeyTypeEd25519 KeyType = iota + 1
	KeyTypeSecp256k1
)

// PublicKey is the sum type carried in an AuthSigMessage. Only Ed25519
// keys are accepted by the handshake; the Secp256k1 variant exists so
// that a peer offering one is rejected explicitly rather than as a
// parse error.
type PublicKey struct {
	Type  KeyType
	Bytes []byte
}

// AuthSigMessage carries the peer's long-term public key and its
// signature over the session challenge. It is exchanged through the
// already-encrypted channel.
type AuthSigMessage struct {
	PubKey *PublicKey
	Sig    []byte
}

// EncodeAuthSignature encodes the local identity key and challenge
// signature for transmission over the encrypted channel. The result is
// always exactly AuthSigMsgResponseLen bytes.
func (v Version) EncodeAuthSignature(pub ed25519.PublicKey, sig []byte) []byte {
	if v.HasTranscript() {
		pk := protowire.AppendTag(nil, 1, protowire.BytesType)
		pk = protowire.AppendBytes(pk, pub)

		body := protowire.AppendTag(nil, 1, protowire.BytesType)
		body = protowire.AppendBytes(body, pk)
		body = protowire.AppendTag(body, 2, protowire.BytesType)
		body = protowire.AppendBytes(body, sig)

		out := protowire.AppendVarint(nil, uint64(len(body)))
		return append(out, body...)
	}

	out := make([]byte, 0, authSigMsgResponseLen)
	out = append(out, byte(len(legacyEd25519PubKeyPrefix)+1+ed25519.PublicKeySize+1+ed25519.SignatureSize))
	out = append(out, legacyEd25519PubKeyPrefix[:]...)
	out = append(out, byte(ed25519.PublicKeySize))
	out = append(out, pub...)
	out = append(out, byte(ed25519.SignatureSize))
	return append(out, sig...)
}

// DecodeAuthSignature decodes a peer's AuthSigMessage from the exact
// AuthSigMsgResponseLen bytes read off the encrypted channel.
func (v Version) DecodeAuthSignature(buf []byte) (AuthSigMessage, error) {
	if v.HasTranscript() {
		return decodeAuthSigProto(buf)
	}
	return decodeAuthSigLegacy(buf)
}

func decodeAuthSigProto(buf []byte) (AuthSigMessage, error) {
	var msg AuthSigMessage

	size, n := protowire.ConsumeVarint(buf)
	if n < 0 || uint64(len(buf[n:])) < size {
		return msg, fmt.Errorf("%w: truncated auth signature message", ErrCrypto)
	}
	body := buf[n : n+int(size)]

	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return msg, fmt.Errorf("%w: malformed auth signature message", ErrCrypto)
		}
		body = body[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			val, m := protowire.ConsumeBytes(body)
			if m < 0 {
				return msg, fmt.Errorf("%w: malformed public key field", ErrCrypto)
			}
			pk, err := decodePublicKeyProto(val)
			if err != nil {
				return msg, err
			}
			msg.PubKey = pk
			body = body[m:]
		case num == 2 && typ == protowire.BytesType:
			val, m := protowire.ConsumeBytes(body)
			if m < 0 {
				return msg, fmt.Errorf("%w: malformed signature field", ErrCrypto)
			}
			msg.Sig = append([]byte(nil), val...)
			body = body[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, body)
			if m < 0 {
				return msg, fmt.Errorf("%w: malformed auth signature message", ErrCrypto)
			}
			body = body[m:]
		}
	}

	return msg, nil
}

func decodePublicKeyProto(buf []byte) (*PublicKey, error) {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 || typ != protowire.BytesType {
			return nil, fmt.Errorf("%w: malformed public key sum", ErrCrypto)
		}
		val, m := protowire.ConsumeBytes(buf[n:])
		if m < 0 {
			return nil, fmt.Errorf("%w: malformed public key sum", ErrCrypto)
		}
		buf = buf[n+m:]

		switch num {
		case 1:
			return &PublicKey{Type: KeyTypeEd25519, Bytes: append([]byte(nil), val...)}, nil
		case 2:
			return &PublicKey{Type: KeyTypeSecp256k1, Bytes: append([]byte(nil), val...)}, nil
		}
	}
	// Empty sum: treated as an absent key by the handshake.
	return nil, nil
}

func decodeAuthSigLegacy(buf []byte) (AuthSigMessage, error) {
	var msg AuthSigMessage

	const want = len(legacyEd25519PubKeyPrefix) + 1 + ed25519.PublicKeySize + 1 + ed25519.SignatureSize
	if len(buf) < 1+want || int(buf[0]) != want {
		return msg, fmt.Errorf("%w: truncated auth signature message", ErrCrypto)
	}
	body := buf[1 : 1+want]

	var prefix [4]byte
	copy(prefix[:], body[:4])
	if prefix != legacyEd25519PubKeyPrefix {
		return msg, fmt.Errorf("%w: unsupported public key type prefix %x", ErrCrypto, prefix)
	}
	body = body[4:]

	if body[0] != ed25519.PublicKeySize {
		return msg, fmt.Errorf("%w: malformed public key field", ErrCrypto)
	}
	key := append([]byte(nil), body[1:1+ed25519.PublicKeySize]...)
	body = body[1+ed25519.PublicKeySize:]

	if body[0] != ed25519.SignatureSize {
		return msg, fmt.Errorf("%w: malformed signature field", ErrCrypto)
	}
	msg.PubKey = &PublicKey{Type: KeyTypeEd25519, Bytes: key}
	msg.Sig = append([]byte(nil), body[1:1+ed25519.SignatureSize]...)

	return msg, nil
}
