package main

import (
	"crypto/tls"

	"github.com/elementsproject/electrumpay/config"
	"github.com/elementsproject/electrumpay/electrum"
	"github.com/elementsproject/electrumpay/log"
	"github.com/elementsproject/electrumpay/metrics"
	"github.com/elementsproject/electrumpay/onchain"
	"github.com/elementsproject/electrumpay/txbuilder"
	"github.com/elementsproject/electrumpay/wallet"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
)

// session holds everything one command needs.
type session struct {
	cfg      *config.Config
	registry *prometheus.Registry
	client   *electrum.Client
}

func getConfig(ctx *cli.Context) (*config.Config, error) {
	network, err := config.NewNetwork(ctx.GlobalString("network"))
	if err != nil {
		return nil, err
	}
	return config.GetConfig(network, ctx.GlobalString("config"), flagOverrides(ctx))
}

// flagOverrides applies the global flags the user set on top of the file.
func flagOverrides(ctx *cli.Context) config.Processor {
	return func(c *config.Config) (*config.Config, error) {
		if ctx.GlobalIsSet("network") {
			n, err := config.NewNetwork(ctx.GlobalString("network"))
			if err != nil {
				return nil, err
			}
			c.Network = n
		}
		if ctx.GlobalIsSet("electrum") {
			c.Electrum.Endpoint = ctx.GlobalString("electrum")
		}
		if ctx.GlobalIsSet("tls-skip-verify") {
			c.Electrum.TLSSkipVerify = ctx.GlobalBool("tls-skip-verify")
		}
		if ctx.GlobalIsSet("account") {
			c.Wallet.AccountIndex = uint32(ctx.GlobalUint("account"))
		}
		if ctx.GlobalIsSet("reserve-outputs") {
			c.Wallet.ReserveOutputs = ctx.GlobalBool("reserve-outputs")
		}
		if ctx.GlobalIsSet("log-level") {
			c.Log.Level = ctx.GlobalString("log-level")
		}
		if ctx.GlobalIsSet("log-json") {
			c.Log.JSON = ctx.GlobalBool("log-json")
		}
		if ctx.GlobalIsSet("metrics-file") {
			c.Metrics.TextFile = ctx.GlobalString("metrics-file")
		}
		return c, nil
	}
}

// newSession reads the config, installs the logger and creates a
// disconnected electrum client. cleanup closes the client, flushes the
// logger and writes the metrics file.
func newSession(ctx *cli.Context) (*session, func(), error) {
	cfg, err := getConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	logger, err := log.NewZapLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return nil, nil, err
	}
	log.SetLogger(logger)
	log.Debugf("using config %s", cfg)

	registry := prometheus.NewRegistry()
	client, err := electrum.NewClient(cfg.Electrum.Endpoint, cfg.Network.Params())
	if err != nil {
		return nil, nil, err
	}
	client.WithTimeout(cfg.RequestTimeout()).
		WithMetrics(metrics.NewElectrum(registry))
	if cfg.Electrum.TLSSkipVerify {
		client.WithTLSConfig(&tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, //nolint:gosec
		})
	}

	cleanup := func() {
		client.Disconnect()
		if cfg.Metrics.TextFile != "" {
			if err := prometheus.WriteToTextfile(cfg.Metrics.TextFile, registry); err != nil {
				log.Errorf("writing metrics to %s: %v", cfg.Metrics.TextFile, err)
			}
		}
		_ = logger.Sync()
	}
	return &session{cfg: cfg, registry: registry, client: client}, cleanup, nil
}

func (s *session) deriver() (*wallet.AccountDeriver, error) {
	if s.cfg.Wallet.Mnemonic == "" {
		return nil, errors.Errorf("no mnemonic configured, set [wallet] mnemonic or %s", config.MnemonicEnv)
	}
	return wallet.NewAccountDeriver(s.cfg.Wallet.Mnemonic, s.cfg.Wallet.Passphrase, s.cfg.Network.Params())
}

func (s *session) account() (*wallet.Account, error) {
	d, err := s.deriver()
	if err != nil {
		return nil, err
	}
	return d.Account(s.cfg.Wallet.AccountIndex)
}

func (s *session) paymentEngine() (*onchain.PaymentEngine, error) {
	account, err := s.account()
	if err != nil {
		return nil, err
	}
	params := s.cfg.Network.Params()
	return onchain.NewPaymentEngine(s.client, txbuilder.NewPSBTCodec(params), account, params).
		WithFeeTargetBlocks(s.cfg.Wallet.FeeTargetBlocks).
		WithOutputReservation(s.cfg.Wallet.ReserveOutputs).
		WithMetrics(metrics.NewPayments(s.registry)), nil
}

// queryAddress returns the --address flag or the account address.
func (s *session) queryAddress(ctx *cli.Context) (string, error) {
	if addr := ctx.String(queryAddressFlag.Name); addr != "" {
		return addr, nil
	}
	account, err := s.account()
	if err != nil {
		return "", err
	}
	return account.Address(), nil
}
