package cookie

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the length of a derived key; A256GCM needs 32 bytes.
	KeySize = 32

	keyInfo = "linkdash session cookie v1"
)

// ErrNoKeys is returned when a key set is built from an empty secret list.
var ErrNoKeys = errors.New("cookie key set requires at least one secret")

// KeySet is an ordered, immutable list of cookie keys, newest first.
// The newest key encrypts; every key is tried on decryption.
type KeySet struct {
	keys [][]byte
}

// NewKeySet derives one key per secret. secrets must be ordered newest first.
func NewKeySet(secrets []string) (*KeySet, error) {
	if len(secrets) == 0 {
		return nil, ErrNoKeys
	}
	keys := make([][]byte, 0, len(secrets))
	for i, secret := range secrets {
		if strings.TrimSpace(secret) == "" {
			return nil, fmt.Errorf("cookie secret %d is empty", i)
		}
		key, err := deriveKey(secret)
		if err != nil {
			return nil, fmt.Errorf("derive cookie key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return &KeySet{keys: keys}, nil
}

// Len returns the number of keys in the set.
func (ks *KeySet) Len() int {
	return len(ks.keys)
}

func (ks *KeySet) newest() []byte {
	return ks.keys[0]
}

func deriveKey(secret string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
