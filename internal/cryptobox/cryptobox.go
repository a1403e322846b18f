// Package cryptobox provides authenticated symmetric encryption for
// every patient-linked record carebridge persists.
//
// Blobs are AES-256-GCM. Each blob carries a key-version tag so records
// written under an older key stay readable after a future rotation; the
// per-version key is derived from the process master key with
// HKDF-SHA256. Decryption failures are surfaced as
// ErrTamperedOrWrongKey and never masked; garbage is never returned.
package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrTamperedOrWrongKey indicates GCM authentication failed:
	// the ciphertext was modified or the process key does not match.
	ErrTamperedOrWrongKey = errors.New("ciphertext authentication failed")

	// ErrMalformedBlob indicates a blob too short or otherwise not in
	// the version||nonce||ciphertext layout.
	ErrMalformedBlob = errors.New("malformed encrypted blob")

	// ErrUnknownKeyVersion indicates a blob written under a key
	// version this process cannot derive.
	ErrUnknownKeyVersion = errors.New("unknown key version")
)

// KeySize is the required master key length in bytes (AES-256).
const KeySize = 32

// Blob is an authenticated ciphertext container. The key version rides
// outside the ciphertext but inside the encoded form, so old records
// survive key rotation.
type Blob struct {
	KeyVersion uint8
	Nonce      []byte
	Ciphertext []byte
}

// Box encrypts and decrypts blobs under a single process-wide master
// key loaded once at startup. The zero value is unusable; construct
// with New. Box is safe for concurrent use: all fields are read-only
// after construction.
type Box struct {
	aeads   map[uint8]cipher.AEAD
	version uint8
}

// New creates a Box that encrypts under keyVersion and can decrypt any
// version in 1..keyVersion. masterKey must be KeySize bytes.
func New(masterKey []byte, keyVersion uint8) (*Box, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	if keyVersion == 0 {
		return nil, errors.New("key version must be at least 1")
	}

	aeads := make(map[uint8]cipher.AEAD, keyVersion)
	for v := uint8(1); v <= keyVersion; v++ {
		aead, err := deriveAEAD(masterKey, v)
		if err != nil {
			return nil, err
		}
		aeads[v] = aead
	}

	return &Box{aeads: aeads, version: keyVersion}, nil
}

// Encrypt seals plaintext under the current key version with a fresh
// random nonce.
func (b *Box) Encrypt(plaintext []byte) (Blob, error) {
	aead := b.aeads[b.version]

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Blob{}, fmt.Errorf("generating nonce: %w", err)
	}

	return Blob{
		KeyVersion: b.version,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Decrypt opens a blob. Returns ErrUnknownKeyVersion for versions this
// box cannot derive and ErrTamperedOrWrongKey when authentication
// fails.
func (b *Box) Decrypt(blob Blob) ([]byte, error) {
	aead, ok := b.aeads[blob.KeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKeyVersion, blob.KeyVersion)
	}
	if len(blob.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce length %d", ErrMalformedBlob, len(blob.Nonce))
	}

	plaintext, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		return nil, ErrTamperedOrWrongKey
	}
	return plaintext, nil
}

// Encode serializes a blob as base64(version || nonce || ciphertext)
// for storage in a text column.
func (blob Blob) Encode() string {
	out := make([]byte, 0, 1+len(blob.Nonce)+len(blob.Ciphertext))
	out = append(out, blob.KeyVersion)
	out = append(out, blob.Nonce...)
	out = append(out, blob.Ciphertext...)
	return base64.StdEncoding.EncodeToString(out)
}

// Decode parses the Encode form. The nonce size is fixed by GCM, so
// the layout is unambiguous.
func Decode(encoded string) (Blob, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Blob{}, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}

	const nonceSize = 12 // cipher.NewGCM standard nonce size
	if len(raw) < 1+nonceSize+1 {
		return Blob{}, fmt.Errorf("%w: %d bytes", ErrMalformedBlob, len(raw))
	}

	return Blob{
		KeyVersion: raw[0],
		Nonce:      raw[1 : 1+nonceSize],
		Ciphertext: raw[1+nonceSize:],
	}, nil
}

// EncryptString is a convenience for text payloads: encrypt and encode
// in one step.
func (b *Box) EncryptString(plaintext string) (string, error) {
	blob, err := b.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return blob.Encode(), nil
}

// DecryptString decodes and decrypts a stored text column value.
func (b *Box) DecryptString(encoded string) (string, error) {
	blob, err := Decode(encoded)
	if err != nil {
		return "", err
	}
	plaintext, err := b.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// deriveAEAD derives the AES-GCM cipher for one key version.
func deriveAEAD(masterKey []byte, version uint8) (cipher.AEAD, error) {
	info := fmt.Sprintf("carebridge data key v%d", version)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("deriving key v%d: %w", version, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aead, nil
}
