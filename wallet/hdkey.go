package wallet

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
)

// KeyProvider derives child key material from a seed.
type KeyProvider interface {
	DeriveChild(seed []byte, path DerivationPath) (*Key, error)
}

// HDKeyProvider derives BIP32 keys with hdkeychain.
type HDKeyProvider struct {
	params *chaincfg.Params
}

var _ KeyProvider = (*HDKeyProvider)(nil)

func NewHDKeyProvider(params *chaincfg.Params) *HDKeyProvider {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &HDKeyProvider{params: params}
}

func (p *HDKeyProvider) DeriveChild(seed []byte, path DerivationPath) (*Key, error) {
	master, err := hdkeychain.NewMaster(seed, p.params)
	if err != nil {
		return nil, errors.Wrap(err, "create master key")
	}
	masterPub, err := master.ECPubKey()
	if err != nil {
		return nil, errors.Wrap(err, "master public key")
	}
	fingerprint := btcutil.Hash160(masterPub.SerializeCompressed())[:4]

	child := master
	for _, idx := range path {
		child, err = child.Derive(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "derive %s", path)
		}
	}
	privKey, err := child.ECPrivKey()
	if err != nil {
		return nil, errors.Wrap(err, "child private key")
	}
	wif, err := btcutil.NewWIF(privKey, p.params, true)
	if err != nil {
		return nil, errors.Wrap(err, "encode wif")
	}
	return &Key{
		path:        path,
		privKey:     privKey,
		wif:         wif,
		fingerprint: hex.EncodeToString(fingerprint),
	}, nil
}

// Key is derived key material. Fingerprint is the fingerprint of the master
// key the key was derived from.
type Key struct {
	path        DerivationPath
	privKey     *btcec.PrivateKey
	wif         *btcutil.WIF
	fingerprint string
}

func (k *Key) Path() DerivationPath {
	return k.path
}

// PublicKey returns the compressed public key.
func (k *Key) PublicKey() []byte {
	return k.privKey.PubKey().SerializeCompressed()
}

func (k *Key) PublicKeyHex() string {
	return hex.EncodeToString(k.PublicKey())
}

func (k *Key) PrivateKeyWIF() string {
	return k.wif.String()
}

func (k *Key) Fingerprint() string {
	return k.fingerprint
}

// Sign returns a DER encoded ECDSA signature over a 32 byte hash.
func (k *Key) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, errors.Errorf("expected 32 byte hash, got %d", len(hash))
	}
	return ecdsa.Sign(k.privKey, hash).Serialize(), nil
}

// Verify reports whether sig is a valid DER signature of hash by this key.
// Malformed signatures yield false.
func (k *Key) Verify(hash, sig []byte) bool {
	signature, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return signature.Verify(hash, k.privKey.PubKey())
}
