// Command wallet manages a Peridot key and talks to a running node.
//
// Subcommands:
//
//	wallet new --file wallet.key            generate a key from a fresh mnemonic
//	wallet address --file wallet.key        print the key's pk hash
//	wallet balance --file wallet.key        sum spendable outputs at the node
//	wallet send --file wallet.key --to PKH --amount N [--fee F]
package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/peridot-net/peridot-chain/internal/wallet"
	"github.com/peridot-net/peridot-chain/pkg/crypto"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "new":
		err = cmdNew(os.Args[2:])
	case "address":
		err = cmdAddress(os.Args[2:])
	case "balance":
		err = cmdBalance(os.Args[2:])
	case "send":
		err = cmdSend(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "wallet:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: wallet <new|address|balance|send> [flags]")
}

// commonFlags returns a FlagSet with the flags every subcommand shares.
func commonFlags(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	file := fs.String("file", "wallet.key", "Wallet key file path")
	api := fs.String("api", "127.0.0.1:7000", "Node API address")
	return fs, file, api
}

func readPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return pass, nil
}

func cmdNew(args []string) error {
	fs, file, _ := commonFlags("new")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*file); err == nil {
		return fmt.Errorf("%s already exists", *file)
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return err
	}
	pass, err := readPassphrase("Passphrase for the key file: ")
	if err != nil {
		return err
	}

	key, err := wallet.KeyFromMnemonic(mnemonic, "")
	if err != nil {
		return err
	}
	if err := wallet.SaveKey(key, *file, pass); err != nil {
		return err
	}

	fmt.Println("Recovery mnemonic (write it down, it is shown once):")
	fmt.Println()
	fmt.Println("  " + mnemonic)
	fmt.Println()
	fmt.Println("Address:", key.PubKeyHash())
	return nil
}

func loadKey(file string) (*crypto.KeyPair, error) {
	pass, err := readPassphrase("Passphrase: ")
	if err != nil {
		return nil, err
	}
	return wallet.LoadKey(file, pass)
}

func cmdAddress(args []string) error {
	fs, file, _ := commonFlags("address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := loadKey(*file)
	if err != nil {
		return err
	}
	fmt.Println(key.PubKeyHash())
	return nil
}

func cmdBalance(args []string) error {
	fs, file, apiAddr := commonFlags("balance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := loadKey(*file)
	if err != nil {
		return err
	}

	client := wallet.NewClient(*apiAddr)
	balance, err := client.Balance(key.PubKeyHash())
	if err != nil {
		return err
	}
	fmt.Println(balance)
	return nil
}

func cmdSend(args []string) error {
	fs, file, apiAddr := commonFlags("send")
	to := fs.String("to", "", "Recipient pk hash (hex)")
	amount := fs.Uint64("amount", 0, "Amount to send")
	fee := fs.Uint("fee", 0, "Transaction fee")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *to == "" || *amount == 0 {
		return fmt.Errorf("send requires --to and --amount")
	}
	recipient, err := types.HexToHash(*to)
	if err != nil {
		return fmt.Errorf("bad recipient: %w", err)
	}

	key, err := loadKey(*file)
	if err != nil {
		return err
	}

	client := wallet.NewClient(*apiAddr)
	entries, err := client.UTXOByPK(key.PubKeyHash())
	if err != nil {
		return err
	}
	stx, err := wallet.BuildSpend(key, entries, recipient, *amount, uint32(*fee))
	if err != nil {
		return err
	}
	if err := client.SubmitTx(stx); err != nil {
		return err
	}
	fmt.Println("submitted", stx.TxHash())
	return nil
}
