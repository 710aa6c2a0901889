package main

import (
	"context"
	"time"

	"github.com/elementsproject/electrumpay/onchain"
	"github.com/elementsproject/electrumpay/version"
	"github.com/elementsproject/electrumpay/wallet"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func validateMnemonic(ctx *cli.Context) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}
	printRespJSON(map[string]bool{
		"valid": wallet.ValidateMnemonic(cfg.Wallet.Mnemonic),
	})
	return nil
}

type accountResp struct {
	Index       uint32 `json:"index"`
	Path        string `json:"path"`
	Address     string `json:"address"`
	PublicKey   string `json:"public_key"`
	Fingerprint string `json:"fingerprint"`
	PrivateKey  string `json:"private_key,omitempty"`
}

func derive(ctx *cli.Context) error {
	s, cleanup, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	d, err := s.deriver()
	if err != nil {
		return err
	}
	index := s.cfg.Wallet.AccountIndex
	if ctx.IsSet(indexFlag.Name) {
		index = uint32(ctx.Uint(indexFlag.Name))
	}
	account, err := d.Account(index)
	if err != nil {
		return err
	}
	resp := &accountResp{
		Index:       account.Index(),
		Path:        account.Path(),
		Address:     account.Address(),
		PublicKey:   account.Key().PublicKeyHex(),
		Fingerprint: account.Key().Fingerprint(),
	}
	if ctx.Bool(showPrivateFlag.Name) {
		resp.PrivateKey = account.Key().PrivateKeyWIF()
	}
	printRespJSON(resp)
	return nil
}

func serverVersion(ctx *cli.Context) error {
	s, cleanup, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := s.client.ServerVersion(context.Background(), version.UserAgent(), version.ElectrumProtocol)
	if err != nil {
		return err
	}
	if len(res) != 2 {
		return errors.Errorf("unexpected server.version answer %v", res)
	}
	supported, err := version.SupportsProtocol(res[1])
	if err != nil {
		return err
	}
	printRespJSON(map[string]interface{}{
		"server":    res[0],
		"protocol":  res[1],
		"supported": supported,
	})
	return nil
}

func getBalance(ctx *cli.Context) error {
	s, cleanup, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	address, err := s.queryAddress(ctx)
	if err != nil {
		return err
	}
	res, err := s.client.GetBalance(context.Background(), address)
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

func getHistory(ctx *cli.Context) error {
	s, cleanup, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	address, err := s.queryAddress(ctx)
	if err != nil {
		return err
	}
	res, err := s.client.GetHistory(context.Background(), address)
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

func listUnspent(ctx *cli.Context) error {
	s, cleanup, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	address, err := s.queryAddress(ctx)
	if err != nil {
		return err
	}
	res, err := s.client.ListUnspent(context.Background(), address)
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

func estimateFee(ctx *cli.Context) error {
	s, cleanup, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	blocks := uint32(ctx.Uint(blocksFlag.Name))
	rate, err := onchain.NewElectrumEstimator(s.client).EstimateFeeRate(context.Background(), blocks)
	if err != nil {
		return err
	}
	printRespJSON(map[string]interface{}{
		"blocks":        blocks,
		"sat_per_kvb":   uint64(rate),
		"sat_per_vbyte": rate.SatPerVByte(),
	})
	return nil
}

type sendResp struct {
	TxID        string `json:"txid"`
	RawHex      string `json:"raw_hex"`
	Fee         uint64 `json:"fee"`
	VirtualSize int64  `json:"vsize"`
	Change      uint64 `json:"change"`
}

func sendToAddress(ctx *cli.Context) error {
	s, cleanup, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := s.paymentEngine()
	if err != nil {
		return err
	}
	recipient := ctx.String(addressFlag.Name)
	amount := ctx.Uint64(satAmountFlag.Name)

	res, err := sendWithRetry(context.Background(), func(ctx context.Context) (*onchain.TransactionResult, error) {
		return engine.SendTransaction(ctx, recipient, amount)
	}, ctx.Uint64(retriesFlag.Name), time.Second)
	if err != nil {
		return err
	}
	printRespJSON(&sendResp{
		TxID:        res.TxID,
		RawHex:      res.RawHex,
		Fee:         res.Fee,
		VirtualSize: res.VirtualSize,
		Change:      res.Change,
	})
	return nil
}

func signMessage(ctx *cli.Context) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}
	account, err := (&session{cfg: cfg}).account()
	if err != nil {
		return err
	}
	sig, err := onchain.SignMessage(account, ctx.String(messageFlag.Name))
	if err != nil {
		return err
	}
	printRespJSON(map[string]string{
		"address":   account.Address(),
		"signature": sig,
	})
	return nil
}

func verifyMessage(ctx *cli.Context) error {
	cfg, err := getConfig(ctx)
	if err != nil {
		return err
	}
	account, err := (&session{cfg: cfg}).account()
	if err != nil {
		return err
	}
	printRespJSON(map[string]bool{
		"valid": onchain.VerifyMessage(account, ctx.String(messageFlag.Name), ctx.String(signatureFlag.Name)),
	})
	return nil
}
