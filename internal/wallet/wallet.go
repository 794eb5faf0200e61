// Package wallet unlocks the orchestrator's keystore once at startup and
// hands out transaction options for it. The decrypted key never leaves this
// package and is zeroed on Close.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	xerrors "OrchKeeper/internal/errors"
	"OrchKeeper/internal/web3"

	"github.com/99designs/keyring"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// ErrClosed is returned once the key has been released.
var ErrClosed = errors.New("wallet is closed")

// KeyringSource locates a passphrase stored in the OS keyring.
type KeyringSource struct {
	Service string
	Key     string
	// Backends restricts the keyring implementations that may be used,
	// e.g. "secret-service", "keychain", "file". Empty means any.
	Backends []string
	// FileDir and FilePassword configure the encrypted-file backend.
	FileDir      string
	FilePassword string
}

// Config describes where the key material lives.
type Config struct {
	KeystorePath   string
	PassphraseFile string
	Keyring        *KeyringSource
	// Expected, when set, must match the address stored in the keystore.
	Expected common.Address
	ChainID  *big.Int
}

// Wallet is a web3.Signer backed by a decrypted V3 keystore.
type Wallet struct {
	mu      sync.Mutex
	address common.Address
	key     *ecdsa.PrivateKey
	chainID *big.Int
}

// Open reads the passphrase, decrypts the keystore and verifies the address.
// Every failure is a fatal KEY_MATERIAL error.
func Open(cfg Config) (*Wallet, error) {
	if strings.TrimSpace(cfg.KeystorePath) == "" {
		return nil, xerrors.New(xerrors.CodeKeyMaterial, "keystore path is not configured")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeKeyMaterial, "chain id is required to sign transactions")
	}

	passphrase, err := readPassphrase(cfg)
	if err != nil {
		return nil, err
	}

	keyJSON, err := os.ReadFile(cfg.KeystorePath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeKeyMaterial, err, "read keystore file")
	}
	key, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeKeyMaterial, err, "decrypt keystore")
	}

	if cfg.Expected != (common.Address{}) && cfg.Expected != key.Address {
		key.PrivateKey.D.SetUint64(0)
		return nil, xerrors.New(xerrors.CodeKeyMaterial,
			fmt.Sprintf("keystore holds %s, configured orchestrator is %s", key.Address.Hex(), cfg.Expected.Hex()))
	}

	return &Wallet{
		address: key.Address,
		key:     key.PrivateKey,
		chainID: new(big.Int).Set(cfg.ChainID),
	}, nil
}

func readPassphrase(cfg Config) (string, error) {
	if cfg.Keyring != nil && cfg.Keyring.Service != "" {
		return readKeyringPassphrase(*cfg.Keyring)
	}
	if strings.TrimSpace(cfg.PassphraseFile) == "" {
		return "", xerrors.New(xerrors.CodeKeyMaterial, "passphrase file is not configured")
	}
	raw, err := os.ReadFile(cfg.PassphraseFile)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeKeyMaterial, err, "read passphrase file")
	}
	return strings.TrimRight(string(raw), " \t\r\n"), nil
}

func readKeyringPassphrase(src KeyringSource) (string, error) {
	kcfg := keyring.Config{
		ServiceName: src.Service,
		FileDir:     src.FileDir,
	}
	if src.FilePassword != "" {
		kcfg.FilePasswordFunc = keyring.FixedStringPrompt(src.FilePassword)
	}
	for _, name := range src.Backends {
		kcfg.AllowedBackends = append(kcfg.AllowedBackends, keyring.BackendType(name))
	}
	ring, err := keyring.Open(kcfg)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeKeyMaterial, err, "open keyring")
	}
	item, err := ring.Get(src.Key)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeKeyMaterial, err, fmt.Sprintf("read keyring item %q", src.Key))
	}
	return strings.TrimRight(string(item.Data), " \t\r\n"), nil
}

// Address returns the account the wallet signs for.
func (w *Wallet) Address() common.Address {
	return w.address
}

// TransactOpts returns options bound to ctx for a single transaction.
func (w *Wallet) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key == nil {
		return nil, xerrors.Wrap(xerrors.CodeKeyMaterial, ErrClosed, "")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, w.chainID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeKeyMaterial, err, "build transactor")
	}
	opts.Context = ctx
	return opts, nil
}

// Close zeroes the private key. Further signing attempts fail.
func (w *Wallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key != nil {
		w.key.D.SetUint64(0)
		w.key = nil
	}
}

var _ web3.Signer = (*Wallet)(nil)
