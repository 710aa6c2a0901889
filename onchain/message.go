package onchain

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
)

// SignMessage signs the sha256 of msg with the account key and returns the
// base64 encoded DER signature.
func (e *PaymentEngine) SignMessage(msg string) (string, error) {
	return SignMessage(e.account, msg)
}

// VerifyMessage reports whether sig is a signature of msg by the account.
func (e *PaymentEngine) VerifyMessage(msg, sig string) bool {
	return VerifyMessage(e.account, msg, sig)
}

func SignMessage(account Account, msg string) (string, error) {
	hash := sha256.Sum256([]byte(msg))
	sig, err := account.Sign(hash[:])
	if err != nil {
		return "", errors.Wrap(err, "sign message")
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyMessage returns false for signatures that are not valid base64 or
// DER.
func VerifyMessage(account Account, msg, sig string) bool {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil || len(raw) == 0 {
		return false
	}
	hash := sha256.Sum256([]byte(msg))
	return account.Verify(hash[:], raw)
}
