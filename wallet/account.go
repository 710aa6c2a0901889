package wallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
)

// Account is a single receive address of a BIP84 wallet together with the
// key that controls it.
type Account struct {
	index   uint32
	address string
	key     *Key
}

func (a *Account) Index() uint32 {
	return a.index
}

func (a *Account) Address() string {
	return a.address
}

func (a *Account) Path() string {
	return a.key.Path().String()
}

func (a *Account) Key() *Key {
	return a.key
}

func (a *Account) PublicKey() []byte {
	return a.key.PublicKey()
}

func (a *Account) Sign(hash []byte) ([]byte, error) {
	return a.key.Sign(hash)
}

func (a *Account) Verify(hash, sig []byte) bool {
	return a.key.Verify(hash, sig)
}

// AccountDeriver hands out accounts m/84'/coin'/0'/0/index of one seed.
type AccountDeriver struct {
	seed     []byte
	params   *chaincfg.Params
	provider KeyProvider
	coinType uint32
}

func NewAccountDeriver(mnemonic, passphrase string, params *chaincfg.Params) (*AccountDeriver, error) {
	seed, err := SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	coinType := uint32(CoinTypeTestnet)
	if params.Net == chaincfg.MainNetParams.Net {
		coinType = CoinTypeBitcoin
	}
	return &AccountDeriver{
		seed:     seed,
		params:   params,
		provider: NewHDKeyProvider(params),
		coinType: coinType,
	}, nil
}

func (d *AccountDeriver) WithKeyProvider(provider KeyProvider) *AccountDeriver {
	d.provider = provider
	return d
}

func (d *AccountDeriver) Params() *chaincfg.Params {
	return d.params
}

// Account derives the account at index. The result is deterministic for a
// given seed and index.
func (d *AccountDeriver) Account(index uint32) (*Account, error) {
	path := BIP84Path(d.coinType, 0, ChangeExternal, index)
	key, err := d.provider.DeriveChild(d.seed, path)
	if err != nil {
		return nil, err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(key.PublicKey()), d.params)
	if err != nil {
		return nil, errors.Wrapf(err, "address for %s", path)
	}
	return &Account{
		index:   index,
		address: addr.EncodeAddress(),
		key:     key,
	}, nil
}
