// Package secretconn implements an authenticated, encrypted framing
// layer over an arbitrary reliable byte stream. Two peers, each holding
// a long-term Ed25519 identity, exchange fresh X25519 ephemeral keys,
// derive per-direction ChaCha20-Poly1305 session keys, authenticate each
// other by signing a challenge bound to the key exchange, and from then
// on exchange fixed-size sealed frames carrying up to 1 KiB of payload
// each.
package secretconn

import (
	"crypto/cipher"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// KeySize is the size of X25519 and ChaCha20-Poly1305 keys in bytes.
	KeySize = 32

	// TagSize is the size of Poly1305 authentication tags in bytes.
	TagSize = 16

	// DataLenSize is the size of the chunk length prefix in bytes.
	DataLenSize = 4

	// DataMaxSize is the maximum payload carried by a single frame.
	DataMaxSize = 1024

	// TotalFrameSize is the plaintext frame size: length prefix plus
	// maximum chunk, always fully transmitted regardless of chunk size.
	TotalFrameSize = DataLenSize + DataMaxSize

	// sealedFrameSize is the on-wire size of one sealed frame.
	sealedFrameSize = TotalFrameSize + TagSize
)

// SecretConnection is an encrypted connection between two peers. It owns
// the underlying transport exclusively.
//
// A SecretConnection is not safe for use by multiple concurrent readers
// or multiple concurrent writers. One reader and one writer may operate
// concurrently: the receive state (recvCipher, recvNonce, recvBuffer)
// and send state (sendCipher, sendNonce) are fully disjoint, provided
// the transport itself permits concurrent Read and Write.
type SecretConnection struct {
	conn    io.ReadWriter
	version Version

	recvCipher cipher.AEAD
	recvNonce  Nonce
	recvBuffer []byte

	sendCipher cipher.AEAD
	sendNonce  Nonce

	remotePubKey ed25519.PublicKey
}

// New performs the handshake over conn and returns an established
// SecretConnection. Any error is terminal: the transport is left in an
// unusable state and should be closed by the caller.
func New(conn io.ReadWriter, localPriv ed25519.PrivateKey, version Version) (*SecretConnection, error) {
	h, localEphPub, err := NewHandshake(localPriv, version)
	if err != nil {
		return nil, err
	}

	// Exchange ephemeral public keys in the clear. The local key is
	// written before blocking on the peer's to avoid deadlock.
	remoteEphPub, err := shareEphPubKey(conn, &localEphPub, version)
	if err != nil {
		return nil, err
	}

	if err := h.GotKey(remoteEphPub); err != nil {
		return nil, err
	}

	sc := &SecretConnection{
		conn:       conn,
		version:    version,
		recvCipher: h.recvCipher,
		sendCipher: h.sendCipher,
	}

	// The authentication message travels through the encrypted channel
	// as ordinary payload.
	localPub, ok := localPriv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected identity key type", ErrCrypto)
	}
	authSigMsg, err := shareAuthSignature(sc, localPub, h.localSignature)
	if err != nil {
		return nil, err
	}

	remotePub, err := h.GotSignature(authSigMsg)
	if err != nil {
		return nil, err
	}
	sc.remotePubKey = remotePub

	return sc, nil
}

// RemotePubKey returns the authenticated long-term public key of the
// remote peer. It is always set: New does not return a SecretConnection
// before the handshake completes.
func (sc *SecretConnection) RemotePubKey() ed25519.PublicKey {
	return sc.remotePubKey
}

// Version returns the protocol version this connection was established
// with.
func (sc *SecretConnection) Version() Version {
	return sc.version
}

// FramesSent returns the number of frames sealed so far.
func (sc *SecretConnection) FramesSent() uint64 {
	return sc.sendNonce.Value()
}

// FramesReceived returns the number of frames opened so far.
func (sc *SecretConnection) FramesReceived() uint64 {
	return sc.recvNonce.Value()
}

// Write splits data into chunks of up to DataMaxSize bytes and seals one
// frame per chunk. A non-empty write of DataMaxSize bytes or less
// produces exactly one frame; an empty write sends nothing. Returns the number of payload bytes written; on transport
// error the connection is no longer usable.
func (sc *SecretConnection) Write(data []byte) (int, error) {
	var n int
	rest := data
	for len(rest) > 0 {
		chunk := rest
		if len(chunk) > DataMaxSize {
			chunk = rest[:DataMaxSize]
		}
		rest = rest[len(chunk):]

		var frame [TotalFrameSize]byte
		binary.LittleEndian.PutUint32(frame[:DataLenSize], uint32(len(chunk)))
		copy(frame[DataLenSize:], chunk)

		sealed := make([]byte, 0, sealedFrameSize)
		sealed = sc.sendCipher.Seal(sealed, sc.sendNonce.Bytes(), frame[:], nil)
		sc.sendNonce.Increment()

		if _, err := sc.conn.Write(sealed); err != nil {
			return n, fmt.Errorf("write sealed frame: %w", err)
		}
		n += len(chunk)
	}
	return n, nil
}

// Read delivers decrypted payload into data. Leftover bytes from a
// previously opened frame are drained before another frame is read from
// the transport. A frame authentication failure is terminal.
func (sc *SecretConnection) Read(data []byte) (int, error) {
	if len(sc.recvBuffer) > 0 {
		n := copy(data, sc.recvBuffer)
		sc.recvBuffer = sc.recvBuffer[n:]
		return n, nil
	}

	sealed := make([]byte, sealedFrameSize)
	if _, err := io.ReadFull(sc.conn, sealed); err != nil {
		return 0, fmt.Errorf("read sealed frame: %w", err)
	}

	frame, err := sc.recvCipher.Open(sealed[:0], sc.recvNonce.Bytes(), sealed, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: frame authentication failed", ErrCrypto)
	}
	sc.recvNonce.Increment()

	chunkLength := binary.LittleEndian.Uint32(frame[:DataLenSize])
	if chunkLength > DataMaxSize {
		return 0, fmt.Errorf("%w: %d > %d", ErrFraming, chunkLength, DataMaxSize)
	}

	chunk := frame[DataLenSize : DataLenSize+int(chunkLength)]
	n := copy(data, chunk)
	sc.recvBuffer = chunk[n:]
	return n, nil
}

// Flush passes through to the transport if it supports flushing.
func (sc *SecretConnection) Flush() error {
	if f, ok := sc.conn.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close closes the underlying transport if it supports closing. Closing
// is the only termination mechanism; a partially sent frame leaves the
// peer unable to open the next frame.
func (sc *SecretConnection) Close() error {
	if c, ok := sc.conn.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// shareEphPubKey writes the local ephemeral public key and reads the
// peer's: one length byte, then exactly that many bytes, decoded per the
// protocol version.
func shareEphPubKey(conn io.ReadWriter, localEphPub *[KeySize]byte, version Version) ([KeySize]byte, error) {
	var remoteEphPub [KeySize]byte

	if _, err := conn.Write(version.EncodeInitialHandshake(localEphPub)); err != nil {
		return remoteEphPub, fmt.Errorf("write ephemeral key: %w", err)
	}

	var lengthByte [1]byte
	if _, err := io.ReadFull(conn, lengthByte[:]); err != nil {
		return remoteEphPub, fmt.Errorf("read ephemeral key: %w", err)
	}
	buf := make([]byte, int(lengthByte[0]))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return remoteEphPub, fmt.Errorf("read ephemeral key: %w", err)
	}

	return version.DecodeInitialHandshake(buf)
}

// shareAuthSignature exchanges AuthSigMessages through the encrypted
// channel: write ours, then read the peer's fixed-size response.
func shareAuthSignature(sc *SecretConnection, pub ed25519.PublicKey, sig []byte) (AuthSigMessage, error) {
	if _, err := sc.Write(sc.version.EncodeAuthSignature(pub, sig)); err != nil {
		return AuthSigMessage{}, fmt.Errorf("write auth signature: %w", err)
	}

	buf := make([]byte, sc.version.AuthSigMsgResponseLen())
	if _, err := io.ReadFull(sc, buf); err != nil {
		return AuthSigMessage{}, fmt.Errorf("read auth signature: %w", err)
	}

	return sc.version.DecodeAuthSignature(buf)
}
