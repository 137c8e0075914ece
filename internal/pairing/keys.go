package pairing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"sync"
)

const (
	// KeySize is the length of a raw public key or signature.
	KeySize = 64

	// DeviceKeyFile is stored in the same directory as the host key.
	DeviceKeyFile = "device_pub.pem"

	pemPrivate = "EC PRIVATE KEY"
	pemPublic  = "PUBLIC KEY"
)

// ErrNotPaired is returned by Verify before a device key is known.
var ErrNotPaired = errors.New("pairing: no device public key")

// Keys holds the host key pair and the paired device public key.
type Keys struct {
	mu         sync.RWMutex
	host       *ecdsa.PrivateKey
	device     *ecdsa.PublicKey
	devicePath string
}

// LoadOrCreate reads the host key from path, generating and persisting a new
// one when the file does not exist. A previously stored device key is loaded
// as well.
func LoadOrCreate(path string) (*Keys, error) {
	host, err := loadPrivate(path)
	if errors.Is(err, fs.ErrNotExist) {
		host, err = GenerateKey()
		if err == nil {
			err = writePrivate(path, host)
		}
	}
	if err != nil {
		return nil, err
	}

	keys := &Keys{host: host, devicePath: filepath.Join(filepath.Dir(path), DeviceKeyFile)}
	device, err := loadPublic(keys.devicePath)
	switch {
	case err == nil:
		keys.device = device
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}
	return keys, nil
}

// PublicKey returns the raw host public key.
func (k *Keys) PublicKey() []byte {
	return EncodePublicKey(&k.host.PublicKey)
}

// Sign signs msg with the host key.
func (k *Keys) Sign(msg []byte) ([]byte, error) {
	return SignWith(k.host, msg)
}

// Paired reports whether a device key is known.
func (k *Keys) Paired() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.device != nil
}

// DevicePublicKey returns the raw device key, or nil before pairing.
func (k *Keys) DevicePublicKey() []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.device == nil {
		return nil
	}
	return EncodePublicKey(k.device)
}

// SetDevicePublicKey validates and persists the device key received while pairing.
func (k *Keys) SetDevicePublicKey(raw []byte) error {
	pub, err := DecodePublicKey(raw)
	if err != nil {
		return err
	}
	if err := writePublic(k.devicePath, pub); err != nil {
		return err
	}
	k.mu.Lock()
	k.device = pub
	k.mu.Unlock()
	return nil
}

// Verify checks a device signature over msg.
func (k *Keys) Verify(msg, sig []byte) (bool, error) {
	k.mu.RLock()
	device := k.device
	k.mu.RUnlock()
	if device == nil {
		return false, ErrNotPaired
	}
	return VerifyWith(device, msg, sig), nil
}

// GenerateKey creates a new P-256 key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// EncodePublicKey returns X followed by Y, each 32 bytes.
func EncodePublicKey(pub *ecdsa.PublicKey) []byte {
	raw, err := pub.Bytes()
	if err != nil || len(raw) != KeySize+1 {
		return nil
	}
	return raw[1:]
}

// DecodePublicKey parses a 64 byte X‖Y public key.
func DecodePublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	if len(raw) != KeySize {
		return nil, fmt.Errorf("pairing: public key must be %d bytes, got %d", KeySize, len(raw))
	}
	pub, err := ecdsa.ParseUncompressedPublicKey(elliptic.P256(), append([]byte{0x04}, raw...))
	if err != nil {
		return nil, fmt.Errorf("pairing: parse public key: %w", err)
	}
	return pub, nil
}

// SignWith signs the SHA-256 digest of msg and returns r‖s.
func SignWith(key *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("pairing: sign: %w", err)
	}
	sig := make([]byte, KeySize)
	r.FillBytes(sig[:KeySize/2])
	s.FillBytes(sig[KeySize/2:])
	return sig, nil
}

// VerifyWith checks an r‖s signature over msg.
func VerifyWith(pub *ecdsa.PublicKey, msg, sig []byte) bool {
	if pub == nil || len(sig) != KeySize {
		return false
	}
	digest := sha256.Sum256(msg)
	r := new(big.Int).SetBytes(sig[:KeySize/2])
	s := new(big.Int).SetBytes(sig[KeySize/2:])
	return ecdsa.Verify(pub, digest[:], r, s)
}

func loadPrivate(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemPrivate {
		return nil, fmt.Errorf("pairing: %s does not contain an %s block", path, pemPrivate)
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("pairing: parse host key: %w", err)
	}
	return key, nil
}

func writePrivate(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("pairing: encode host key: %w", err)
	}
	return writePEM(path, pemPrivate, der, 0o600)
}

func loadPublic(path string) (*ecdsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemPublic {
		return nil, fmt.Errorf("pairing: %s does not contain a %s block", path, pemPublic)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("pairing: parse device key: %w", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("pairing: %s is not an ECDSA key", path)
	}
	return pub, nil
}

func writePublic(path string, pub *ecdsa.PublicKey) error {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("pairing: encode device key: %w", err)
	}
	return writePEM(path, pemPublic, der, 0o644)
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pairing: create key directory: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("pairing: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("pairing: replace %s: %w", path, err)
	}
	return nil
}
