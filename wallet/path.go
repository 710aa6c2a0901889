package wallet

import (
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/pkg/errors"
)

const (
	// PurposeBIP84 is the hardened purpose field of native segwit accounts.
	PurposeBIP84 = hdkeychain.HardenedKeyStart + 84

	CoinTypeBitcoin = 0
	CoinTypeTestnet = 1

	ChangeExternal = 0
	ChangeInternal = 1
)

// DerivationPath is a sequence of child indices below the master key.
// Hardened indices have hdkeychain.HardenedKeyStart added.
type DerivationPath []uint32

// BIP84Path returns m/84'/coinType'/account'/change/index.
func BIP84Path(coinType, account, change, index uint32) DerivationPath {
	return DerivationPath{
		PurposeBIP84,
		hdkeychain.HardenedKeyStart + coinType,
		hdkeychain.HardenedKeyStart + account,
		change,
		index,
	}
}

// ParsePath parses paths like m/84'/0'/0'/0/0. Both ' and h mark hardened
// indices.
func ParsePath(path string) (DerivationPath, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, errors.Wrapf(ErrInvalidPath, "%q must start with m", path)
	}
	out := make(DerivationPath, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h")
		if hardened {
			part = part[:len(part)-1]
		}
		idx, err := strconv.ParseUint(part, 10, 32)
		if err != nil || idx >= hdkeychain.HardenedKeyStart {
			return nil, errors.Wrapf(ErrInvalidPath, "%q: bad index %q", path, part)
		}
		if hardened {
			idx += hdkeychain.HardenedKeyStart
		}
		out = append(out, uint32(idx))
	}
	return out, nil
}

func (p DerivationPath) String() string {
	var sb strings.Builder
	sb.WriteString("m")
	for _, idx := range p {
		sb.WriteString("/")
		if idx >= hdkeychain.HardenedKeyStart {
			sb.WriteString(strconv.FormatUint(uint64(idx-hdkeychain.HardenedKeyStart), 10))
			sb.WriteString("'")
			continue
		}
		sb.WriteString(strconv.FormatUint(uint64(idx), 10))
	}
	return sb.String()
}
