// Package secure implements CPPS, the authenticated-encryption envelope
// around CPP frames, together with the session-key and RSA-OAEP key-exchange
// primitives used during admission.
//
// Envelope wire format:
//
//	[TotalLength (4 bytes, big-endian)][Nonce (16 bytes)][Tag (16 bytes)][Ciphertext]
//
// TotalLength = 32 + len(Ciphertext). Decrypting Ciphertext under
// (key, Nonce) and verifying Tag yields a plaintext CPP frame.
package secure

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"github.com/ReemKish/chat-program/pkg/protocol"
)

const (
	// NonceSize is the per-message nonce length.
	NonceSize = 16

	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16

	// KeySize is the AES-256 session key length.
	KeySize = 32

	// maxEnvelopeSize bounds a single envelope: a maximal frame plus the
	// frame header and the envelope overhead.
	maxEnvelopeSize = protocol.MaxFrameSize + 5 + NonceSize + TagSize
)

var (
	ErrAuthFailed      = errors.New("envelope authentication failed")
	ErrInvalidKeySize  = errors.New("invalid session key size")
	ErrEnvelopeTooBig  = errors.New("envelope exceeds maximum size")
	ErrShortEnvelope   = errors.New("envelope shorter than nonce and tag")
)

// newAEAD builds the AES-256-GCM cipher with the envelope's 16-byte nonce.
func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, NonceSize)
}

// Wrap encodes the payload as a CPP frame and seals it into an envelope
// under key. A fresh random nonce is generated per message; nonce reuse
// under the same key breaks confidentiality.
func Wrap(key []byte, p protocol.Payload) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := protocol.EncodeToBytes(p)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	// Seal appends the tag to the ciphertext; the wire format carries the
	// tag before the ciphertext, so split them apart.
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	buf := new(bytes.Buffer)
	if err := protocol.WriteUint32(buf, uint32(NonceSize+TagSize+len(ciphertext))); err != nil {
		return nil, err
	}
	buf.Write(nonce)
	buf.Write(tag)
	buf.Write(ciphertext)
	return buf.Bytes(), nil
}

// WrapTo seals the payload and writes the envelope to w.
func WrapTo(w io.Writer, key []byte, p protocol.Payload) error {
	env, err := Wrap(key, p)
	if err != nil {
		return err
	}
	_, err = w.Write(env)
	return err
}

// Unwrap reads one envelope from r, verifies its tag and returns the decoded
// payload. Authentication is checked before any byte of the plaintext is
// interpreted; a failed check yields ErrAuthFailed and leaves the stream
// positioned at the next envelope, so a single corrupted message does not
// bring down the session.
//
// A stream that closes cleanly before the length prefix completes yields
// io.EOF ("peer disconnected").
func Unwrap(key []byte, r io.Reader) (protocol.Payload, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	total, err := protocol.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if total > maxEnvelopeSize {
		return nil, ErrEnvelopeTooBig
	}
	if total < NonceSize+TagSize {
		return nil, ErrShortEnvelope
	}

	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	nonce := body[:NonceSize]
	tag := body[NonceSize : NonceSize+TagSize]
	ciphertext := body[NonceSize+TagSize:]

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	return protocol.DecodeFromBytes(plaintext)
}
