package main

import (
	"encoding/json"
	"fmt"
	log2 "log"
	"os"

	"github.com/elementsproject/electrumpay/config"
	"github.com/elementsproject/electrumpay/version"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "electrumpay"
	app.Usage = "Electrum backed bitcoin wallet"
	app.Version = version.GetCurrentVersion()
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "network",
			Value: string(config.NetworkMainnet),
			Usage: "mainnet, testnet, signet or regtest",
		},
		cli.StringFlag{
			Name:  "config",
			Value: config.DefaultConfigFileName,
			Usage: "path to the toml config file",
		},
		cli.StringFlag{
			Name:  "electrum",
			Usage: "electrum server, tcp://host:port or ssl://host:port",
		},
		cli.BoolFlag{
			Name:  "tls-skip-verify",
			Usage: "accept any certificate of an ssl electrum server",
		},
		cli.UintFlag{
			Name:  "account",
			Usage: "account index below m/84'/coin'/0'/0",
		},
		cli.BoolFlag{
			Name:  "reserve-outputs",
			Usage: "keep concurrent payments from selecting the same outputs",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info or error",
		},
		cli.BoolFlag{
			Name:  "log-json",
			Usage: "log json lines",
		},
		cli.StringFlag{
			Name:  "metrics-file",
			Usage: "write prometheus metrics to this file on exit",
		},
	}
	app.Commands = []cli.Command{
		validateMnemonicCommand, deriveCommand, serverVersionCommand,
		balanceCommand, historyCommand, listUnspentCommand, estimateFeeCommand,
		sendCommand, signMessageCommand, verifyMessageCommand,
	}
	err := app.Run(os.Args)
	if err != nil {
		log2.Fatal(err)
	}
}

var (
	satAmountFlag = cli.Uint64Flag{
		Name:     "sat_amt",
		Usage:    "Amount of sats to send",
		Required: true,
	}
	addressFlag = cli.StringFlag{
		Name:     "address",
		Usage:    "recipient address",
		Required: true,
	}
	queryAddressFlag = cli.StringFlag{
		Name:  "address",
		Usage: "address to query, defaults to the account address",
	}
	indexFlag = cli.UintFlag{
		Name:  "index",
		Usage: "account index, defaults to --account",
	}
	showPrivateFlag = cli.BoolFlag{
		Name:  "show-private",
		Usage: "print the WIF private key",
	}
	blocksFlag = cli.UintFlag{
		Name:  "blocks",
		Value: 1,
		Usage: "confirmation target in blocks",
	}
	retriesFlag = cli.Uint64Flag{
		Name:  "retries",
		Usage: "retry rejected broadcasts up to this many times",
	}
	messageFlag = cli.StringFlag{
		Name:     "message",
		Required: true,
	}
	signatureFlag = cli.StringFlag{
		Name:     "signature",
		Usage:    "base64 signature",
		Required: true,
	}

	validateMnemonicCommand = cli.Command{
		Name:   "validate-mnemonic",
		Usage:  "checks the configured seed phrase",
		Action: validateMnemonic,
	}
	deriveCommand = cli.Command{
		Name:  "derive",
		Usage: "derives the account at an index",
		Flags: []cli.Flag{
			indexFlag,
			showPrivateFlag,
		},
		Action: derive,
	}
	serverVersionCommand = cli.Command{
		Name:   "server-version",
		Usage:  "negotiates the protocol version with the electrum server",
		Action: serverVersion,
	}
	balanceCommand = cli.Command{
		Name:   "getbalance",
		Usage:  "gets the confirmed and unconfirmed balance",
		Flags:  []cli.Flag{queryAddressFlag},
		Action: getBalance,
	}
	historyCommand = cli.Command{
		Name:   "gethistory",
		Usage:  "lists the transactions of an address",
		Flags:  []cli.Flag{queryAddressFlag},
		Action: getHistory,
	}
	listUnspentCommand = cli.Command{
		Name:   "listunspent",
		Usage:  "lists the unspent outputs of an address",
		Flags:  []cli.Flag{queryAddressFlag},
		Action: listUnspent,
	}
	estimateFeeCommand = cli.Command{
		Name:   "estimatefee",
		Usage:  "gets the fee rate estimate of the server",
		Flags:  []cli.Flag{blocksFlag},
		Action: estimateFee,
	}
	sendCommand = cli.Command{
		Name:  "sendtoaddress",
		Usage: "sends the sat amount to an address",
		Flags: []cli.Flag{
			addressFlag,
			satAmountFlag,
			retriesFlag,
		},
		Action: sendToAddress,
	}
	signMessageCommand = cli.Command{
		Name:   "signmessage",
		Usage:  "signs a message with the account key",
		Flags:  []cli.Flag{messageFlag},
		Action: signMessage,
	}
	verifyMessageCommand = cli.Command{
		Name:  "verifymessage",
		Usage: "verifies a message signature of the account key",
		Flags: []cli.Flag{
			messageFlag,
			signatureFlag,
		},
		Action: verifyMessage,
	}
)

func printRespJSON(resp interface{}) {
	jsonBytes, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Println("unable to decode response: ", err)
		return
	}
	fmt.Println(string(jsonBytes))
}
