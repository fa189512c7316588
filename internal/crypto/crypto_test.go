package crypto

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

func newTestSigner(t *testing.T) (*Signer, string) {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(ethcrypto.FromECDSA(pk))
	s, err := NewSigner("0x" + keyHex)
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(pk.PublicKey), s.Address())
	return s, keyHex
}

func TestRequestMessageLayout(t *testing.T) {
	msg := RequestMessage("post", "/api/token/claim", 1700000000, nil)
	// sha256 of the empty body.
	want := "easybet\nPOST\n/api/token/claim\n1700000000\n" +
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	assert.Equal(t, want, string(msg))
}

func TestSignAndRecover(t *testing.T) {
	s, _ := newTestSigner(t)
	body := []byte(`{"to":"0x01","amount":"5"}`)

	sig, err := s.SignRequest("POST", "/api/token/transfer", 1700000000, body)
	require.NoError(t, err)

	got, err := RecoverRequestSigner("POST", "/api/token/transfer", 1700000000, body, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	// Any change to the signed material yields a different address.
	other, err := RecoverRequestSigner("POST", "/api/token/transfer", 1700000001, body, sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other)
}

func TestRecoverRejectsMalformedSignature(t *testing.T) {
	_, err := RecoverRequestSigner("GET", "/", 1, nil, "0xzz")
	assert.ErrorIs(t, err, domain.ErrBadSignature)

	_, err = RecoverRequestSigner("GET", "/", 1, nil, "0x0102")
	assert.ErrorIs(t, err, domain.ErrBadSignature)
}

func TestHeaders(t *testing.T) {
	s, _ := newTestSigner(t)
	at := time.Unix(1700000000, 0)
	h, err := s.Headers("GET", "/api/admin/audit", nil, at)
	require.NoError(t, err)
	assert.Equal(t, s.Address().Hex(), h[HeaderAddress])
	assert.Equal(t, "1700000000", h[HeaderTimestamp])

	got, err := RecoverRequestSigner("GET", "/api/admin/audit", 1700000000, nil, h[HeaderSignature])
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)
}

func TestKeyFileRoundTrip(t *testing.T) {
	s, keyHex := newTestSigner(t)

	data, err := EncryptKey(keyHex, "hunter2")
	require.NoError(t, err)
	assert.Contains(t, string(data), s.Address().Hex())

	got, err := DecryptKey(data, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)

	_, err = DecryptKey(data, "wrong")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	loaded, err := LoadSigner(KeySource{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, s.Address(), loaded.Address())
}

func TestLoadSigner(t *testing.T) {
	s, keyHex := newTestSigner(t)

	loaded, err := LoadSigner(KeySource{RawPrivateKey: keyHex})
	require.NoError(t, err)
	assert.Equal(t, s.Address(), loaded.Address())

	_, err = LoadSigner(KeySource{})
	assert.Error(t, err)

	_, err = EncryptKey(keyHex, "")
	assert.Error(t, err)
	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err)
}
