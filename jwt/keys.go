package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// KeySet is the key material a Manager is built from.
type KeySet struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Config converts the key set into a Manager configuration.
func (k KeySet) Config() Config {
	cfg := Config{
		SigningMethod: k.SigningMethod,
		PrivateKey:    cloneBytes(k.PrivateKey),
		PublicKey:     cloneBytes(k.PublicKey),
		KeyID:         k.KeyID,
	}
	if len(k.VerifyKeys) > 0 {
		cfg.VerifyKeys = make(map[string][]byte, len(k.VerifyKeys))
		for kid, key := range k.VerifyKeys {
			cfg.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return cfg
}

// KeyProvider supplies key material at startup.
type KeyProvider interface {
	Keys() (KeySet, error)
}

// StaticKeys is a KeyProvider over in-memory key material.
type StaticKeys KeySet

// Keys implements KeyProvider.
func (s StaticKeys) Keys() (KeySet, error) {
	if len(s.PrivateKey) == 0 && len(s.PublicKey) == 0 && len(s.VerifyKeys) == 0 {
		return KeySet{}, fmt.Errorf("%w: no key material", ErrInvalidConfig)
	}
	return KeySet(s), nil
}

// FileKeys loads keys from disk. For hs256 PrivateKeyPath holds the raw
// secret; trailing newlines are stripped. For ed25519 the files hold PEM
// (PKCS#8 private, PKIX public). VerifyKeyPaths maps kid to a file path.
type FileKeys struct {
	SigningMethod  SigningMethod
	PrivateKeyPath string
	PublicKeyPath  string
	KeyID          string
	VerifyKeyPaths map[string]string
}

// Keys implements KeyProvider.
func (f FileKeys) Keys() (KeySet, error) {
	set := KeySet{SigningMethod: f.SigningMethod, KeyID: f.KeyID}

	var err error
	if f.PrivateKeyPath != "" {
		if set.PrivateKey, err = f.read(f.PrivateKeyPath); err != nil {
			return KeySet{}, err
		}
	}
	if f.PublicKeyPath != "" {
		if set.PublicKey, err = f.read(f.PublicKeyPath); err != nil {
			return KeySet{}, err
		}
	}
	if len(f.VerifyKeyPaths) > 0 {
		set.VerifyKeys = make(map[string][]byte, len(f.VerifyKeyPaths))
		for kid, path := range f.VerifyKeyPaths {
			key, err := f.read(path)
			if err != nil {
				return KeySet{}, err
			}
			set.VerifyKeys[kid] = key
		}
	}
	if len(set.PrivateKey) == 0 && len(set.PublicKey) == 0 && len(set.VerifyKeys) == 0 {
		return KeySet{}, fmt.Errorf("%w: no key files configured", ErrInvalidConfig)
	}
	return set, nil
}

func (f FileKeys) read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read key file %s: %v", ErrInvalidConfig, path, err)
	}
	if f.SigningMethod == MethodHS256 {
		data = []byte(strings.TrimRight(string(data), "\r\n"))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: key file %s is empty", ErrInvalidConfig, path)
	}
	return data, nil
}

// GenerateEd25519PEM returns a fresh Ed25519 key pair encoded as PKCS#8 and
// PKIX PEM blocks.
func GenerateEd25519PEM() (privPEM, pubPEM []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, err
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}

// GenerateSecret returns n random bytes suitable as an hs256 secret.
func GenerateSecret(n int) ([]byte, error) {
	if n < 32 {
		n = 32
	}
	out := make([]byte, n)
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}
