// Package keystore owns the node's Ed25519 identity: the keypair that
// signs claim transactions and whose public key decides name ownership.
// Keys persist as PEM files, optionally sealed with a passphrase.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/namechain-protocol/namechain/internal/chain"
	"github.com/namechain-protocol/namechain/pkg/blob"
)

// ErrDecrypt means the key file could not be unsealed: wrong passphrase or
// a corrupted file.
var ErrDecrypt = errors.New("cannot decrypt key: wrong passphrase or corrupted file")

const (
	pemTypePlain  = "PRIVATE KEY"
	pemTypeSealed = "NAMECHAIN ENCRYPTED KEY"

	// Argon2id parameters used when sealing new key files. Load honors the
	// parameters recorded in the PEM headers, so these can change without
	// breaking existing files.
	argonTime      = 1
	argonMemoryKiB = 64 * 1024
	argonThreads   = 4
	saltLength     = 16
)

// Keystore holds one Ed25519 keypair.
type Keystore struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// Generate creates a fresh keypair.
func Generate() (*Keystore, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Keystore{priv: priv, pub: pub}, nil
}

// LoadOrCreate loads the key file at path, generating and saving a new key
// when none exists yet. Any other load failure propagates: an unreadable or
// wrongly-passphrased key file must never be silently replaced.
func LoadOrCreate(path, passphrase string) (*Keystore, error) {
	k, err := Load(path, passphrase)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	k, err = Generate()
	if err != nil {
		return nil, err
	}
	if err := k.Save(path, passphrase); err != nil {
		return nil, err
	}
	return k, nil
}

// Load reads a key file written by Save.
func Load(path, passphrase string) (*Keystore, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in key file %q", path)
	}

	var der []byte
	switch block.Type {
	case pemTypePlain:
		der = block.Bytes
	case pemTypeSealed:
		der, err = unseal(block, passphrase)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unexpected PEM type %q in key file %q", block.Type, path)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key file %q does not hold an Ed25519 key", path)
	}
	return &Keystore{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Save writes the key to path as PKCS#8 PEM with 0600 permissions. A
// non-empty passphrase seals the key with ChaCha20-Poly1305 under an
// Argon2id-derived key; the KDF parameters travel in the PEM headers.
func (k *Keystore) Save(path, passphrase string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create key dir %q: %w", dir, err)
		}
	}

	der, err := x509.MarshalPKCS8PrivateKey(k.priv)
	if err != nil {
		return fmt.Errorf("encode private key: %w", err)
	}

	block := &pem.Block{Type: pemTypePlain, Bytes: der}
	if passphrase != "" {
		block, err = seal(der, passphrase)
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// Public returns the public key bytes compared against recorded claims.
func (k *Keystore) Public() blob.Bytes {
	return blob.New(k.pub)
}

// Sign returns the Ed25519 signature of msg.
func (k *Keystore) Sign(msg []byte) blob.Bytes {
	return blob.New(ed25519.Sign(k.priv, msg))
}

// SignTransaction signs t's canonical encoding taken with the signature
// field held at its zero placeholder, then attaches the signature.
func (k *Keystore) SignTransaction(t *chain.Transaction) error {
	data, err := signingBytes(t)
	if err != nil {
		return err
	}
	t.SetSignature(k.Sign(data))
	return nil
}

// VerifyTransaction checks t's signature against its embedded public key.
func VerifyTransaction(t *chain.Transaction) (bool, error) {
	if len(t.PubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("pub_key is %d bytes, want %d", len(t.PubKey), ed25519.PublicKeySize)
	}
	data, err := signingBytes(t)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(ed25519.PublicKey(t.PubKey), data, t.Signature), nil
}

func signingBytes(t *chain.Transaction) ([]byte, error) {
	unsigned := *t
	unsigned.Signature = blob.Zero(blob.SignatureLength)
	s, err := unsigned.Encode()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func seal(der []byte, passphrase string) (*pem.Block, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemoryKiB, argonThreads, chacha20poly1305.KeySize)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return &pem.Block{
		Type: pemTypeSealed,
		Headers: map[string]string{
			"KDF":            "argon2id",
			"Salt":           hex.EncodeToString(salt),
			"Nonce":          hex.EncodeToString(nonce),
			"Argon2-Time":    strconv.Itoa(argonTime),
			"Argon2-Memory":  strconv.Itoa(argonMemoryKiB),
			"Argon2-Threads": strconv.Itoa(argonThreads),
		},
		Bytes: aead.Seal(nil, nonce, der, nil),
	}, nil
}

func unseal(block *pem.Block, passphrase string) ([]byte, error) {
	if kdf := block.Headers["KDF"]; kdf != "argon2id" {
		return nil, fmt.Errorf("unsupported KDF %q", kdf)
	}
	salt, err := hex.DecodeString(block.Headers["Salt"])
	if err != nil {
		return nil, fmt.Errorf("decode salt header: %w", err)
	}
	nonce, err := hex.DecodeString(block.Headers["Nonce"])
	if err != nil {
		return nil, fmt.Errorf("decode nonce header: %w", err)
	}
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("nonce header is %d bytes, want %d", len(nonce), chacha20poly1305.NonceSizeX)
	}
	time, err := strconv.Atoi(block.Headers["Argon2-Time"])
	if err != nil {
		return nil, fmt.Errorf("decode Argon2-Time header: %w", err)
	}
	memory, err := strconv.Atoi(block.Headers["Argon2-Memory"])
	if err != nil {
		return nil, fmt.Errorf("decode Argon2-Memory header: %w", err)
	}
	threads, err := strconv.Atoi(block.Headers["Argon2-Threads"])
	if err != nil {
		return nil, fmt.Errorf("decode Argon2-Threads header: %w", err)
	}
	// argon2.IDKey panics rather than erroring on out-of-range parameters,
	// and threads must survive the uint8 conversion below.
	if time < 1 || memory < 1 || threads < 1 || threads > 255 {
		return nil, fmt.Errorf("argon2 parameters out of range: time=%d memory=%d threads=%d", time, memory, threads)
	}

	key := argon2.IDKey([]byte(passphrase), salt, uint32(time), uint32(memory), uint8(threads), chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	der, err := aead.Open(nil, nonce, block.Bytes, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return der, nil
}
