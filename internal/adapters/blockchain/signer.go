package blockchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/usbwallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ledgerScanDepth bounds the derivation paths tried when locating an account
const ledgerScanDepth = 10

// txSigner signs transactions for one address
type txSigner interface {
	Address() common.Address
	Sign(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type keySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newKeySigner(hexKey string) (*keySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &keySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *keySigner) Address() common.Address { return s.addr }

func (s *keySigner) Sign(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts.Signer(s.addr, tx)
}

// ledgerSigner signs on a Ledger device. The device shows every transaction
// for confirmation, so a user rejection surfaces as a signing error.
type ledgerSigner struct {
	wallet  accounts.Wallet
	account accounts.Account
}

func (s *ledgerSigner) Address() common.Address { return s.account.Address }

func (s *ledgerSigner) Sign(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return s.wallet.SignTx(s.account, tx, chainID)
}

func (s *ledgerSigner) Close() error {
	return s.wallet.Close()
}

// openLedgerSigner finds addr on a connected Ledger. A configured derivation
// path is used as is; otherwise the default and Ledger Live layouts are
// scanned.
func openLedgerSigner(addr common.Address, derivationPath string) (*ledgerSigner, error) {
	hub, err := usbwallet.NewLedgerHub()
	if err != nil {
		return nil, fmt.Errorf("failed to start Ledger hub: %w", err)
	}
	wallets := hub.Wallets()
	if len(wallets) == 0 {
		return nil, fmt.Errorf("no Ledger device connected")
	}

	var paths []accounts.DerivationPath
	if derivationPath != "" {
		p, err := accounts.ParseDerivationPath(derivationPath)
		if err != nil {
			return nil, fmt.Errorf("invalid derivation path %q: %w", derivationPath, err)
		}
		paths = append(paths, p)
	} else {
		for _, next := range []func() accounts.DerivationPath{
			accounts.DefaultIterator(accounts.DefaultBaseDerivationPath),
			accounts.LedgerLiveIterator(accounts.DefaultBaseDerivationPath),
		} {
			for i := 0; i < ledgerScanDepth; i++ {
				paths = append(paths, next())
			}
		}
	}

	for _, wallet := range wallets {
		if err := wallet.Open(""); err != nil {
			continue
		}
		for _, p := range paths {
			account, err := wallet.Derive(p, false)
			if err != nil || account.Address != addr {
				continue
			}
			if account, err = wallet.Derive(p, true); err != nil {
				_ = wallet.Close()
				return nil, err
			}
			return &ledgerSigner{wallet: wallet, account: account}, nil
		}
		_ = wallet.Close()
	}
	return nil, fmt.Errorf("account %s not found on the connected Ledger", addr.Hex())
}
