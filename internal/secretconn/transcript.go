package secretconn

import "github.com/gtank/merlin"

// Transcript labels. The transcript binds both ephemeral public keys and
// the shared secret into the signed challenge; the resulting bytes must
// be identical on both peers for a given key exchange.
const (
	transcriptAppLabel = "TENDERMINT_SECRET_CONNECTION_TRANSCRIPT_HASH"

	labelEphLowerPublicKey   = "EPHEMERAL_LOWER_PUBLIC_KEY"
	labelEphUpperPublicKey   = "EPHEMERAL_UPPER_PUBLIC_KEY"
	labelDHSecret            = "DH_SECRET"
	labelSecretConnectionMAC = "SECRET_CONNECTION_MAC"
)

// transcript is a thin wrapper over a merlin (STROBE-128) transcript,
// domain-separated with the secret connection application label.
type transcript struct {
	inner *merlin.Transcript
}

func newTranscript() *transcript {
	return &transcript{inner: merlin.NewTranscript(transcriptAppLabel)}
}

func (t *transcript) appendMessage(label string, message []byte) {
	t.inner.AppendMessage([]byte(label), message)
}

func (t *transcript) challengeBytes(label string, n int) []byte {
	return t.inner.ExtractBytes([]byte(label), n)
}
