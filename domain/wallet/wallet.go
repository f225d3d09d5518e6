// Package wallet keeps the keys and scripts of a node-local wallet and
// builds, signs and submits the transactions of the vault protocol.
package wallet

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/netparams"
	"github.com/sashabeton/bitcoinvault/domain/vault/balance"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
)

// DefaultFeeRate is the fee rate, in satoshi per 1000 virtual bytes, the
// wallet pays when it funds a transaction.
const DefaultFeeRate = btcutil.Amount(20000)

// ChainSource is what the wallet needs from the node it runs in.
type ChainSource interface {
	Params() *netparams.Params

	// WalletSnapshot returns the outputs on scripts owns accepts, as seen
	// from the tip and the mempool.
	WalletSnapshot(owns func(pkScript []byte) bool) *Snapshot

	// PrevOuts returns the outputs tx spends in input order.
	PrevOuts(tx *wire.MsgTx) ([]*wire.TxOut, error)

	// RecoverableAlert returns the alert with the given ID if a recovery
	// can still cancel it.
	RecoverableAlert(alertTxID chainhash.Hash) (*model.AlertRecord, error)

	SubmitTransaction(tx *wire.MsgTx) error
}

// Snapshot is the set of wallet outputs at a tip height.
type Snapshot struct {
	TipHeight uint32
	Outputs   []*Output
}

// Output is an unspent output on a wallet script. Height is the confirming
// height of a confirmed output.
type Output struct {
	Outpoint   wire.OutPoint
	TxOut      *wire.TxOut
	Confirmed  bool
	Height     uint32
	IsCoinbase bool

	// Spendable is false for the outputs of unmatured alerts.
	Spendable bool

	// FromWallet marks unconfirmed outputs of transactions that spend
	// wallet outputs.
	FromWallet bool
}

type ownedScript struct {
	kind        balance.AddressKind
	key         *btcec.PrivateKey
	template    *vaultscript.Template
	addressType vaultscript.AddressType
	label       string
}

// Wallet is a set of keys and the scripts they control. It is safe for
// concurrent use.
type Wallet struct {
	params     *netparams.Params
	source     ChainSource
	accountant *balance.Accountant
	feeRate    btcutil.Amount

	mtx     sync.Mutex
	keys    map[string]*btcec.PrivateKey
	scripts map[string]*ownedScript
}

// New returns an empty wallet on top of source.
func New(source ChainSource) *Wallet {
	params := source.Params()
	return &Wallet{
		params:     params,
		source:     source,
		accountant: balance.NewAccountant(params.CoinbaseMaturity),
		feeRate:    DefaultFeeRate,
		keys:       make(map[string]*btcec.PrivateKey),
		scripts:    make(map[string]*ownedScript),
	}
}

// SetFeeRate sets the fee rate in satoshi per 1000 virtual bytes.
func (w *Wallet) SetFeeRate(feeRate btcutil.Amount) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.feeRate = feeRate
}

func (w *Wallet) addKey(key *btcec.PrivateKey) {
	w.keys[string(key.PubKey().SerializeCompressed())] = key
}

func (w *Wallet) keyFor(pubKey *btcec.PublicKey) (*btcec.PrivateKey, bool) {
	key, ok := w.keys[string(pubKey.SerializeCompressed())]
	return key, ok
}

func (w *Wallet) owns(pkScript []byte) bool {
	_, ok := w.scripts[string(pkScript)]
	return ok
}

// GetNewAddress generates a key and returns its pay-to-witness-pubkey-hash
// address.
func (w *Wallet) GetNewAddress(label string) (btcutil.Address, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generating key")
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.addRegularKey(key, label)
}

func (w *Wallet) addRegularKey(key *btcec.PrivateKey, label string) (btcutil.Address, error) {
	address, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), w.params.Net)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	pkScript, err := txscript.PayToAddrScript(address)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	w.addKey(key)
	w.scripts[string(pkScript)] = &ownedScript{kind: balance.AddressRegular, key: key, label: label}
	log.Debugf("Added regular address %s", address)
	return address, nil
}

// ImportPrivKey adds the key encoded in wif and watches its
// pay-to-witness-pubkey-hash address.
func (w *Wallet) ImportPrivKey(wif string, label string) (btcutil.Address, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, errors.Wrap(err, "decoding private key")
	}
	if !decoded.IsForNet(w.params.Net) {
		return nil, errors.Errorf("private key is not for %s", w.params.Name)
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.addRegularKey(decoded.PrivKey, label)
}

// NewVaultAlertAddress generates an owner key and returns the address of
// its alert template with recoveryKey.
func (w *Wallet) NewVaultAlertAddress(recoveryKey *btcec.PublicKey, addressType vaultscript.AddressType,
	label string) (btcutil.Address, *vaultscript.Template, error) {

	owner, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, errors.Wrap(err, "generating key")
	}
	template := vaultscript.NewAlertTemplate(owner.PubKey(), recoveryKey)
	return w.addVaultTemplate(owner, template, addressType, balance.AddressAlert, label)
}

// NewVaultInstantAddress generates an owner key and returns the address of
// its instant template with instantKey and recoveryKey.
func (w *Wallet) NewVaultInstantAddress(instantKey, recoveryKey *btcec.PublicKey,
	addressType vaultscript.AddressType, label string) (btcutil.Address, *vaultscript.Template, error) {

	owner, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, errors.Wrap(err, "generating key")
	}
	template := vaultscript.NewInstantTemplate(owner.PubKey(), instantKey, recoveryKey)
	return w.addVaultTemplate(owner, template, addressType, balance.AddressInstant, label)
}

func (w *Wallet) addVaultTemplate(owner *btcec.PrivateKey, template *vaultscript.Template,
	addressType vaultscript.AddressType, kind balance.AddressKind, label string) (
	btcutil.Address, *vaultscript.Template, error) {

	address, err := template.Address(w.params.Net, addressType)
	if err != nil {
		return nil, nil, err
	}
	pkScript, err := template.PkScript(w.params.Net, addressType)
	if err != nil {
		return nil, nil, err
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.addKey(owner)
	w.scripts[string(pkScript)] = &ownedScript{
		kind:        kind,
		key:         owner,
		template:    template,
		addressType: addressType,
		label:       label,
	}
	log.Debugf("Added %s vault address %s", template.Type, address)
	return address, template, nil
}

// ImportKey adds key to the keys the wallet signs with, without watching
// any address of it. Recovery and instant keys are imported this way.
func (w *Wallet) ImportKey(key *btcec.PrivateKey) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.addKey(key)
}

// Balance returns the balance of the given kind over outputs with at least
// minConf confirmations. label must be empty or "*".
func (w *Wallet) Balance(kind balance.Kind, minConf uint32, label string) (btcutil.Amount, error) {
	err := balance.CheckLabel(label)
	if err != nil {
		return 0, err
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()
	snapshot := w.source.WalletSnapshot(w.owns)
	outputs := make([]*balance.Output, 0, len(snapshot.Outputs))
	for _, output := range snapshot.Outputs {
		owned := w.scripts[string(output.TxOut.PkScript)]
		outputs = append(outputs, &balance.Output{
			Value:      output.TxOut.Value,
			Address:    owned.kind,
			Confirmed:  output.Confirmed,
			Height:     output.Height,
			IsCoinbase: output.IsCoinbase,
			FromWallet: output.FromWallet,
		})
	}
	return btcutil.Amount(w.accountant.Balance(outputs, kind, minConf, snapshot.TipHeight)), nil
}
