// Package config assembles the wallet configuration from defaults, an
// optional TOML file and the environment.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/elementsproject/electrumpay/electrum"
	"github.com/elementsproject/electrumpay/log"
	"github.com/elementsproject/electrumpay/onchain"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

const (
	DefaultConfigFileName = "electrumpay.conf"
	MnemonicEnv           = "ELECTRUMPAY_MNEMONIC"

	defaultTimeoutSeconds = 30
	maxFeeTargetBlocks    = 1008
)

type ElectrumConf struct {
	Endpoint       string `toml:"endpoint"`
	TLSSkipVerify  bool   `toml:"tls_skip_verify"`
	TimeoutSeconds uint   `toml:"timeout_seconds"`
}

type WalletConf struct {
	Mnemonic        string `toml:"mnemonic"`
	Passphrase      string `toml:"passphrase"`
	AccountIndex    uint32 `toml:"account_index"`
	FeeTargetBlocks uint32 `toml:"fee_target_blocks"`
	ReserveOutputs  bool   `toml:"reserve_outputs"`
}

type LogConf struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

type MetricsConf struct {
	TextFile string `toml:"textfile"`
}

type Config struct {
	Network  Network
	Electrum *ElectrumConf
	Wallet   *WalletConf
	Log      *LogConf
	Metrics  *MetricsConf
}

func (c Config) String() string {
	wcopy := *c.Wallet
	if wcopy.Mnemonic != "" {
		wcopy.Mnemonic = "*****"
	}
	if wcopy.Passphrase != "" {
		wcopy.Passphrase = "*****"
	}
	c.Wallet = &wcopy
	b, _ := json.Marshal(c)
	return string(b)
}

// RequestTimeout returns the electrum request timeout. Zero disables it.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Electrum.TimeoutSeconds) * time.Second
}

// DefaultConfig sets the network and the defaults that do not depend on it.
func DefaultConfig(network Network) Processor {
	return func(c *Config) (*Config, error) {
		c.Network = network
		c.Electrum.TimeoutSeconds = defaultTimeoutSeconds
		c.Wallet.FeeTargetBlocks = onchain.DefaultFeeTargetBlocks
		c.Log.Level = "info"
		return c, nil
	}
}

// ReadFromFile reads a toml config file. A missing file leaves the config
// unchanged. Only keys present in the file override earlier values.
func ReadFromFile(path string) Processor {
	return func(c *Config) (*Config, error) {
		if path == "" {
			return c, nil
		}
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			log.Debugf("no config file at %s", path)
			return c, nil
		}
		if err != nil {
			return nil, err
		}

		var fileConf struct {
			Network  *string
			Electrum *struct {
				Endpoint       *string `toml:"endpoint"`
				TLSSkipVerify  *bool   `toml:"tls_skip_verify"`
				TimeoutSeconds *uint   `toml:"timeout_seconds"`
			}
			Wallet *struct {
				Mnemonic        *string `toml:"mnemonic"`
				Passphrase      *string `toml:"passphrase"`
				AccountIndex    *uint32 `toml:"account_index"`
				FeeTargetBlocks *uint32 `toml:"fee_target_blocks"`
				ReserveOutputs  *bool   `toml:"reserve_outputs"`
			}
			Log *struct {
				Level *string `toml:"level"`
				JSON  *bool   `toml:"json"`
			}
			Metrics *struct {
				TextFile *string `toml:"textfile"`
			}
		}
		if err := toml.Unmarshal(data, &fileConf); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}

		if fileConf.Network != nil {
			n, err := NewNetwork(*fileConf.Network)
			if err != nil {
				return nil, err
			}
			c.Network = n
		}
		if e := fileConf.Electrum; e != nil {
			setString(&c.Electrum.Endpoint, e.Endpoint)
			setBool(&c.Electrum.TLSSkipVerify, e.TLSSkipVerify)
			if e.TimeoutSeconds != nil {
				c.Electrum.TimeoutSeconds = *e.TimeoutSeconds
			}
		}
		if w := fileConf.Wallet; w != nil {
			setString(&c.Wallet.Mnemonic, w.Mnemonic)
			setString(&c.Wallet.Passphrase, w.Passphrase)
			setUint32(&c.Wallet.AccountIndex, w.AccountIndex)
			setUint32(&c.Wallet.FeeTargetBlocks, w.FeeTargetBlocks)
			setBool(&c.Wallet.ReserveOutputs, w.ReserveOutputs)
		}
		if l := fileConf.Log; l != nil {
			setString(&c.Log.Level, l.Level)
			setBool(&c.Log.JSON, l.JSON)
		}
		if m := fileConf.Metrics; m != nil {
			setString(&c.Metrics.TextFile, m.TextFile)
		}
		return c, nil
	}
}

// MnemonicFromEnv takes the mnemonic from the environment if none is set.
func MnemonicFromEnv() Processor {
	return func(c *Config) (*Config, error) {
		if c.Wallet.Mnemonic == "" {
			c.Wallet.Mnemonic = os.Getenv(MnemonicEnv)
		}
		return c, nil
	}
}

// ElectrumFallback sets the network's default server if no endpoint is set.
func ElectrumFallback() Processor {
	return func(c *Config) (*Config, error) {
		if c.Electrum.Endpoint == "" {
			c.Electrum.Endpoint = c.Network.DefaultElectrumEndpoint()
		}
		return c, nil
	}
}

// CheckConfig validates the assembled config.
func CheckConfig() Processor {
	return func(c *Config) (*Config, error) {
		if err := Validate(
			c.Network,
			endpoint(c.Electrum.Endpoint),
			feeTarget(c.Wallet.FeeTargetBlocks),
			logLevel(c.Log.Level),
		); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// GetConfig runs the default pipeline: defaults for network, the config file
// at path, the environment, fallbacks and validation. extra processors run
// before validation.
func GetConfig(network Network, path string, extra ...Processor) (*Config, error) {
	pl := &Pipeline{processors: []Processor{}}
	pl = pl.
		Add(DefaultConfig(network)).
		Add(ReadFromFile(path)).
		Add(MnemonicFromEnv())
	for _, pr := range extra {
		pl = pl.Add(pr)
	}
	pl = pl.
		Add(ElectrumFallback()).
		Add(CheckConfig())

	return pl.Run()
}

type Processor func(*Config) (*Config, error)

type Pipeline struct {
	processors []Processor
}

func (p *Pipeline) Add(pr Processor) *Pipeline {
	p.processors = append(p.processors, pr)
	return p
}

func (p *Pipeline) Run() (*Config, error) {
	var err error
	c := &Config{
		Electrum: &ElectrumConf{},
		Wallet:   &WalletConf{},
		Log:      &LogConf{},
		Metrics:  &MetricsConf{},
	}
	for _, pr := range p.processors {
		c, err = pr(c)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

type endpoint string

func (endpoint) key() string { return "electrum.endpoint" }

func (e endpoint) validate() error {
	if e == "" {
		return errors.New("electrum endpoint must be set")
	}
	_, err := electrum.ParseEndpoint(string(e))
	return err
}

type feeTarget uint32

func (feeTarget) key() string { return "wallet.fee_target_blocks" }

func (f feeTarget) validate() error {
	if f == 0 || f > maxFeeTargetBlocks {
		return errors.Errorf("fee target must be between 1 and %d blocks, got %d", maxFeeTargetBlocks, f)
	}
	return nil
}

type logLevel string

func (logLevel) key() string { return "log.level" }

func (l logLevel) validate() error {
	switch l {
	case "", "debug", "info", "error":
		return nil
	default:
		return errors.Errorf("expected log level debug, info or error, got %s", string(l))
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setUint32(dst *uint32, v *uint32) {
	if v != nil {
		*dst = *v
	}
}
