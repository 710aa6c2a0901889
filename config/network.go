package config

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
)

type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkSignet  Network = "signet"
	NetworkRegtest Network = "regtest"
)

func NewNetwork(network string) (Network, error) {
	switch network {
	case "mainnet", "bitcoin":
		return NetworkMainnet, nil
	case "testnet", "testnet3":
		return NetworkTestnet, nil
	case "signet":
		return NetworkSignet, nil
	case "regtest":
		return NetworkRegtest, nil
	default:
		return "", fmt.Errorf("expected mainnet, testnet, signet or regtest, got %s", network)
	}
}

func (n Network) String() string {
	return string(n)
}

func (Network) key() string { return "network" }

func (n Network) validate() error {
	switch n {
	case NetworkMainnet, NetworkTestnet, NetworkSignet, NetworkRegtest:
		return nil
	default:
		return errors.Errorf("invalid network %q", string(n))
	}
}

// Params returns the chain parameters of the network.
func (n Network) Params() *chaincfg.Params {
	switch n {
	case NetworkTestnet:
		return &chaincfg.TestNet3Params
	case NetworkSignet:
		return &chaincfg.SigNetParams
	case NetworkRegtest:
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// DefaultElectrumEndpoint returns a public server for the network, or a local
// one for regtest.
func (n Network) DefaultElectrumEndpoint() string {
	switch n {
	case NetworkTestnet:
		return "ssl://electrum.blockstream.info:60002"
	case NetworkSignet:
		return "ssl://mempool.space:60602"
	case NetworkRegtest:
		return "tcp://localhost:50001"
	default:
		return "ssl://electrum.blockstream.info:50002"
	}
}
