package session

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var ErrInvalidCookie = errors.New("invalid session cookie")

const keyInfo = "pcstyle-auth session cookie v1"

// Sealer encrypts and authenticates cookie payloads with XChaCha20-Poly1305
// under a key derived from the configured cookie password.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(password string) (*Sealer, error) {
	if len(password) < 32 {
		return nil, fmt.Errorf("cookie password must be at least 32 characters")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(password), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive cookie key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(d Data) (string, error) {
	plaintext, err := json.Marshal(d)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *Sealer) Unseal(value string) (Data, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(raw) < s.aead.NonceSize() {
		return Data{}, ErrInvalidCookie
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Data{}, ErrInvalidCookie
	}

	var d Data
	if err := json.Unmarshal(plaintext, &d); err != nil {
		return Data{}, ErrInvalidCookie
	}
	return d, nil
}
