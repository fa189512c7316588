package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// Request authentication headers.
const (
	HeaderAddress   = "X-EasyBet-Address"
	HeaderTimestamp = "X-EasyBet-Timestamp"
	HeaderSignature = "X-EasyBet-Signature"
)

// RequestMessage builds the text a wallet signs to authenticate one API call:
//
//	easybet\n{METHOD}\n{PATH}\n{TIMESTAMP}\n{hex(sha256(body))}
func RequestMessage(method, path string, unixTS int64, body []byte) []byte {
	sum := sha256.Sum256(body)
	var b strings.Builder
	b.WriteString("easybet\n")
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(unixTS, 10))
	b.WriteByte('\n')
	b.WriteString(hex.EncodeToString(sum[:]))
	return []byte(b.String())
}

// Signer signs API requests with a secp256k1 wallet key using EIP-191
// personal_sign, the same scheme browser wallets expose.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// Address returns the identity the signer authenticates as.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignRequest returns the 0x-prefixed 65-byte signature over the request
// message, with v in {27,28}.
func (s *Signer) SignRequest(method, path string, unixTS int64, body []byte) (string, error) {
	digest := accounts.TextHash(RequestMessage(method, path, unixTS, body))
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// Headers returns the three authentication headers for a request made at t.
func (s *Signer) Headers(method, path string, body []byte, t time.Time) (map[string]string, error) {
	ts := t.Unix()
	sig, err := s.SignRequest(method, path, ts, body)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		HeaderAddress:   s.address.Hex(),
		HeaderTimestamp: strconv.FormatInt(ts, 10),
		HeaderSignature: sig,
	}, nil
}

// RecoverRequestSigner returns the address that produced sigHex over the
// request message. Both v encodings ({0,1} and {27,28}) are accepted.
func RecoverRequestSigner(method, path string, unixTS int64, body []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: signature is not hex", domain.ErrBadSignature)
	}
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature must be %d bytes", domain.ErrBadSignature, ethcrypto.SignatureLength)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	digest := accounts.TextHash(RequestMessage(method, path, unixTS, body))
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", domain.ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
