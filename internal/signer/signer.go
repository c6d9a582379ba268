// Package signer loads the deployer account key and produces transaction options.
package signer

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/term"
)

// ErrNoKey is returned when no private key is configured or entered.
var ErrNoKey = errors.New("no deployer private key")

// Signer holds the deployer key
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// FromHex creates a Signer from a hex-encoded private key, with or without 0x
func FromHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrNoKey
	}

	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Address returns the deployer address
func (s *Signer) Address() common.Address {
	return s.address
}

// TransactOpts returns keyed transaction options bound to ctx and chainID
func (s *Signer) TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("create transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Prompter asks the operator for a secret
type Prompter interface {
	Prompt(label string) (string, error)
}

// Load reads the key from envVar, falling back to prompt when it is unset.
// A nil prompt disables the fallback.
func Load(envVar string, prompt Prompter) (*Signer, error) {
	key := ""
	if envVar != "" {
		key = os.Getenv(envVar)
	}

	if key == "" && prompt != nil {
		label := "Enter deployer private key: "
		if envVar != "" {
			label = fmt.Sprintf("%s is not set. Enter deployer private key: ", envVar)
		}
		entered, err := prompt.Prompt(label)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoKey, err)
		}
		key = entered
	}

	if strings.TrimSpace(key) == "" {
		if envVar != "" {
			return nil, fmt.Errorf("%w: set %s", ErrNoKey, envVar)
		}
		return nil, ErrNoKey
	}
	return FromHex(key)
}

// TerminalPrompter prompts on Out and reads from In without echo when In is a terminal
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalPrompter prompts on stderr and reads stdin
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// Prompt implements Prompter
func (p *TerminalPrompter) Prompt(label string) (string, error) {
	fmt.Fprint(p.Out, label)

	fd := int(p.In.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(p.Out) // New line after hidden input
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	// Non-terminal, read one line
	reader := bufio.NewReader(p.In)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
