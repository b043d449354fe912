package store

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"expandd/internal/security"
)

var (
	ErrWrongPassphrase = errors.New("store: wrong passphrase")
	ErrSealed          = errors.New("store: sealed data but no passphrase configured")
	ErrCorrupt         = errors.New("store: sealed data is corrupt")
)

const (
	saltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// verifierPlaintext is sealed once per database so a wrong passphrase is
// detected at open rather than on the first sensitive snippet.
var verifierPlaintext = []byte("expandd sealed store v1")

// Sealer encrypts sensitive text with XChaCha20-Poly1305 under a key
// derived from a passphrase with Argon2id.
type Sealer struct {
	salt []byte
	aead cipher.AEAD
}

// NewSealer derives the sealing key. A nil salt generates a fresh one.
func NewSealer(passphrase string, salt []byte) (*Sealer, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("store: empty passphrase")
	}
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("store: generate salt: %w", err)
		}
	}
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	security.Wipe(key)
	if err != nil {
		return nil, fmt.Errorf("store: init cipher: %w", err)
	}
	return &Sealer{salt: salt, aead: aead}, nil
}

// Salt returns the key-derivation salt to store next to the data.
func (s *Sealer) Salt() []byte { return append([]byte(nil), s.salt...) }

// Seal encrypts plaintext; aad binds the ciphertext to its row.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("store: generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts data produced by Seal with the same aad.
func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, ErrCorrupt
	}
	plain, err := s.aead.Open(nil, sealed[:n], sealed[n:], aad)
	if err != nil {
		return nil, ErrCorrupt
	}
	return plain, nil
}

func (s *Sealer) verifier() ([]byte, error) {
	return s.Seal(verifierPlaintext, []byte("verifier"))
}

func (s *Sealer) checkVerifier(v []byte) error {
	plain, err := s.Open(v, []byte("verifier"))
	if err != nil || string(plain) != string(verifierPlaintext) {
		return ErrWrongPassphrase
	}
	return nil
}
