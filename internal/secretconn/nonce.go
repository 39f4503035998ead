package secretconn

import "encoding/binary"

// NonceSize is the size of ChaCha20-Poly1305 nonces in bytes.
const NonceSize = 12

// Nonce is a 96-bit counter nonce: a 4-byte zero prefix followed by a
// 64-bit little-endian counter. Each direction of a connection owns one
// nonce, and the counter only ever advances, so a (key, nonce) pair is
// never reused within a session.
type Nonce struct {
	buf     [NonceSize]byte
	counter uint64
}

// Bytes returns the current 12-byte nonce value. The returned slice is
// valid until the next call to Bytes or Increment.
func (n *Nonce) Bytes() []byte {
	binary.LittleEndian.PutUint64(n.buf[4:], n.counter)
	return n.buf[:]
}

// Increment advances the counter by one. Call after each sealed or
// opened frame.
func (n *Nonce) Increment() {
	n.counter++
}

// Value returns the current counter, i.e. the number of frames processed
// in this direction so far.
func (n *Nonce) Value() uint64 {
	return n.counter
}
