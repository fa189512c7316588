// Package crypto provides wallet key storage and EIP-191 request signing
// for EasyBet API clients and the server's signature check.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keyFileVersion   = 1
)

// keyFile is the on-disk format of an encrypted wallet key. Binary fields
// are base64 standard encoding.
type keyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address,omitempty"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource says where a wallet key comes from. RawPrivateKey wins when both
// are set.
type KeySource struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

func sealer(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

func decodeKeyHex(privateKeyHex string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("crypto: expected 32-byte key, got %d bytes", len(raw))
	}
	return raw, nil
}

// EncryptKey seals a hex private key under password (PBKDF2-SHA256 and
// AES-256-GCM) and returns the key file JSON. The wallet address is stored
// in clear so operators can tell files apart.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	raw, err := decodeKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	signer, err := NewSigner(hex.EncodeToString(raw))
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := sealer(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	return json.MarshalIndent(keyFile{
		Version:    keyFileVersion,
		Address:    signer.Address().Hex(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, raw, nil)),
	}, "", "  ")
}

// DecryptKey opens a key file produced by EncryptKey and returns the hex
// private key without a 0x prefix.
func DecryptKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto: parsing key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}

	fields := make([][]byte, 3)
	for i, s := range []string{kf.Salt, kf.Nonce, kf.Ciphertext} {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", fmt.Errorf("crypto: decoding key file: %w", err)
		}
		fields[i] = b
	}

	gcm, err := sealer(password, fields[0])
	if err != nil {
		return "", err
	}
	if len(fields[1]) != gcm.NonceSize() {
		return "", fmt.Errorf("crypto: bad nonce length %d", len(fields[1]))
	}
	plain, err := gcm.Open(nil, fields[1], fields[2], nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plain), nil
}

// LoadSigner resolves a wallet key from src and returns a Signer for it.
func LoadSigner(src KeySource) (*Signer, error) {
	switch {
	case src.RawPrivateKey != "":
		raw, err := decodeKeyHex(src.RawPrivateKey)
		if err != nil {
			return nil, err
		}
		return NewSigner(hex.EncodeToString(raw))
	case src.EncryptedKeyPath != "":
		data, err := os.ReadFile(src.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading key file: %w", err)
		}
		keyHex, err := DecryptKey(data, src.KeyPassword)
		if err != nil {
			return nil, err
		}
		return NewSigner(keyHex)
	}
	return nil, errors.New("crypto: no private key source configured")
}
