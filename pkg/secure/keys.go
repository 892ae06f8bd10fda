package secure

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// IdentityBits is the RSA modulus size for client identities.
	IdentityBits = 2048

	// hkdfSalt domain-separates the session-key derivation.
	hkdfSalt = "chat-program-session-v1"
)

var (
	ErrNotRSAKey        = errors.New("public key is not an RSA key")
	ErrInvalidPEM       = errors.New("invalid PEM public key")
	ErrKeyUnwrapFailed  = errors.New("session key unwrap failed")
)

// NewSessionKey generates the process-wide symmetric session key: a random
// 32-byte master secret expanded through HKDF-SHA256. The server mints one
// key at startup and distributes it to every admitted client, wrapped under
// that client's public key. Compromise of any one client's private key
// therefore compromises the shared key for all members; that is a documented
// property of the protocol, preserved for compatibility.
func NewSessionKey() ([]byte, error) {
	secret := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("failed to generate master secret: %w", err)
	}

	kdf := hkdf.New(sha256.New, secret, []byte(hkdfSalt), []byte("session"))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("session key derivation failed: %w", err)
	}
	return key, nil
}

// GenerateIdentity creates a client RSA key pair for the admission handshake.
func GenerateIdentity() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, IdentityBits)
}

// MarshalPublicKey exports an RSA public key to PEM (PKIX), the textual form
// sent during admission.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKey parses a PEM (PKIX) RSA public key received during admission.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, ErrNotRSAKey
	}
	return pub, nil
}

// WrapSessionKey encrypts the session key under a client's public key with
// RSA-OAEP(SHA-256) for delivery in the admission BYTES frame.
func WrapSessionKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
}

// UnwrapSessionKey decrypts a wrapped session key with the client's private
// key.
func UnwrapSessionKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, ErrKeyUnwrapFailed
	}
	if len(key) != KeySize {
		return nil, ErrKeyUnwrapFailed
	}
	return key, nil
}
