package memory

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/flipchat-iap/iap"
)

var errInvalidSignature = errors.New("transaction signature is invalid")

// signedTransaction is the memory storefront's stand-in for a JWS: a JSON
// payload plus a base58 encoded ed25519 signature over it.
type signedTransaction struct {
	payload   []byte
	signature string
}

func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

func mustGenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		panic(fmt.Sprintf("failed to generate key pair: %v", err))
	}
	return pub, priv
}

func signTransaction(owner ed25519.PrivateKey, tx *iap.StoreTransaction, tamper bool) (*signedTransaction, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}

	signature := ed25519.Sign(owner, payload)
	if tamper {
		signature[0] ^= 0xff
	}

	return &signedTransaction{
		payload:   payload,
		signature: base58.Encode(signature),
	}, nil
}

// verifyTransaction classifies a signed transaction. The decoded payload is
// attached to Unverified results whenever it parses, so callers can report
// which product it claims to be for.
func verifyTransaction(publicKey ed25519.PublicKey, signed *signedTransaction) iap.VerificationResult {
	var tx iap.StoreTransaction
	if err := json.Unmarshal(signed.payload, &tx); err != nil {
		return iap.Unverified{Err: errors.Wrap(err, "error decoding transaction payload")}
	}

	signature, err := base58.Decode(signed.signature)
	if err != nil {
		return iap.Unverified{Transaction: &tx, Err: errors.Wrap(err, "error decoding signature")}
	}

	if !ed25519.Verify(publicKey, signed.payload, signature) {
		return iap.Unverified{Transaction: &tx, Err: errInvalidSignature}
	}

	return iap.Verified{Transaction: &tx}
}
