package electrum

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/pkg/errors"
)

// ScriptHash is the electrum index key of an output script: the sha256 of the
// script in reversed byte order, lower case hex.
func ScriptHash(pkScript []byte) string {
	hash := sha256.Sum256(pkScript)
	reversedHash := make([]byte, len(hash))
	for i, b := range hash {
		reversedHash[len(hash)-1-i] = b
	}
	return hex.EncodeToString(reversedHash)
}

// AddressScriptHash decodes address for params and returns the script hash of
// its output script.
func AddressScriptHash(address string, params *chaincfg.Params) (string, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidAddress, "%s: %v", address, err)
	}
	if !addr.IsForNet(params) {
		return "", errors.Wrapf(ErrInvalidAddress, "%s is not a %s address", address, params.Name)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidAddress, "%s: %v", address, err)
	}
	return ScriptHash(pkScript), nil
}

// GetScriptHash returns the script hash for address on the client's network.
// It does no I/O.
func (c *Client) GetScriptHash(address string) (string, error) {
	return AddressScriptHash(address, c.params)
}
