// Package cryptox implements the password key derivation and the vault blob
// cipher. The server never calls DeriveKey with a real password; key
// derivation happens on clients, the server only stores the public KDF
// parameters so every device of an account derives the same key.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// EncryptionTypeArgon2id is the only key derivation scheme currently issued
// at registration. The field exists on accounts and revisions so a future
// scheme can roll out per account without a flag day.
const EncryptionTypeArgon2id = "argon2id"

// SaltSize is the per-account KDF salt length in bytes.
const SaltSize = 16

// KDFParams are the public argon2id parameters stored alongside an account.
// They are not secret; they only have to be available before the vault can
// be decrypted, which is why the latest revision's copy is authoritative.
type KDFParams struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memoryKiB"`
	Threads   uint8  `json:"threads"`
	KeyLen    uint32 `json:"keyLen"`
}

// DefaultKDFParams returns the parameters issued to newly registered accounts.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 1, MemoryKiB: 64 * 1024, Threads: 4, KeyLen: 32}
}

// Encode serializes the parameters to the JSON form persisted server-side.
func (p KDFParams) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodeKDFParams parses the persisted JSON form of KDF parameters.
func DecodeKDFParams(data []byte) (KDFParams, error) {
	var p KDFParams
	if err := json.Unmarshal(data, &p); err != nil {
		return KDFParams{}, fmt.Errorf("decoding kdf params: %w", err)
	}
	if p.KeyLen == 0 {
		return KDFParams{}, errors.New("kdf params: zero key length")
	}
	return p, nil
}

// DeriveKey turns a master password and salt into a fixed-length symmetric
// key using argon2id with the given public parameters. Pure function.
func DeriveKey(password, salt []byte, params KDFParams) []byte {
	return argon2.IDKey(password, salt, params.Time, params.MemoryKiB, params.Threads, params.KeyLen)
}

const nonceSize = 12

// EncryptBlob encrypts plaintext with AES-GCM under key and returns a single
// opaque blob with the random nonce prepended. The key must be a valid AES
// key length; registration issues 32-byte keys (AES-256).
func EncryptBlob(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptBlob reverses EncryptBlob. It fails if the blob is truncated, the
// key is wrong, or the ciphertext was tampered with.
func DecryptBlob(blob, key []byte) ([]byte, error) {
	if len(blob) < nonceSize {
		return nil, errors.New("blob too short")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
}
