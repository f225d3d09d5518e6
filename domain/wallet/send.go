package wallet

import (
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/miningmanager/mempool"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/vault/balance"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
)

// maxFeeRounds bounds the sign and resize passes of one funding attempt.
const maxFeeRounds = 10

type coin struct {
	output *Output
	owned  *ownedScript
}

// signer sets the witnesses of a funded transaction. coins are in input
// order.
type signer func(tx *wire.MsgTx, coins []*coin) error

// SendToAddress pays amount to address from regular wallet outputs and
// returns the ID of the submitted transaction.
func (w *Wallet) SendToAddress(address btcutil.Address, amount btcutil.Amount) (chainhash.Hash, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	coins := w.spendableCoins(func(owned *ownedScript) bool {
		return owned.kind == balance.AddressRegular
	})
	return w.send(address, amount, [][]*coin{coins}, w.signRegular)
}

// SendAlertToAddress pays amount to address with an alert that spends the
// outputs of a single vault script of the wallet. The payment becomes
// final after the alert matures.
func (w *Wallet) SendAlertToAddress(address btcutil.Address, amount btcutil.Amount) (chainhash.Hash, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	coins := w.spendableCoins(func(owned *ownedScript) bool {
		return owned.template != nil
	})
	return w.send(address, amount, groupBySource(coins), w.signVaultCoins(vaultscript.OwnerRole{}, nil))
}

// SendInstantToAddress pays amount to address with an instant transaction
// that spends the outputs of a single instant script of the wallet.
// instantKey may be nil if the wallet holds the instant key itself.
func (w *Wallet) SendInstantToAddress(address btcutil.Address, amount btcutil.Amount,
	instantKey *btcec.PrivateKey) (chainhash.Hash, error) {

	w.mtx.Lock()
	defer w.mtx.Unlock()

	coins := w.spendableCoins(func(owned *ownedScript) bool {
		if owned.kind != balance.AddressInstant {
			return false
		}
		_, ok := w.instantKey(owned.template, instantKey)
		return ok
	})
	if len(coins) == 0 && w.hasInstantOutputs() {
		return chainhash.Hash{}, ruleerrors.Errorf(ruleerrors.ErrMissingKey,
			"the instant key of the wallet's instant addresses is not available")
	}
	return w.send(address, amount, groupBySource(coins), w.signVaultCoins(vaultscript.InstantRole{}, instantKey))
}

func (w *Wallet) instantKey(template *vaultscript.Template, instantKey *btcec.PrivateKey) (*btcec.PrivateKey, bool) {
	if instantKey != nil {
		return instantKey, instantKey.PubKey().IsEqual(template.InstantKey)
	}
	return w.keyFor(template.InstantKey)
}

func (w *Wallet) hasInstantOutputs() bool {
	for _, owned := range w.scripts {
		if owned.kind == balance.AddressInstant {
			return true
		}
	}
	return false
}

// spendableCoins returns the outputs on scripts accepted by filter that a
// transaction for the next block may spend. Confirmed outputs come first.
func (w *Wallet) spendableCoins(filter func(owned *ownedScript) bool) []*coin {
	snapshot := w.source.WalletSnapshot(w.owns)
	var coins []*coin
	for _, output := range snapshot.Outputs {
		owned := w.scripts[string(output.TxOut.PkScript)]
		if !filter(owned) || !output.Spendable {
			continue
		}
		if !output.Confirmed && !output.FromWallet {
			continue
		}
		if output.IsCoinbase {
			confirmations := balance.Confirmations(&balance.Output{Confirmed: output.Confirmed, Height: output.Height},
				snapshot.TipHeight)
			if confirmations <= w.params.CoinbaseMaturity {
				continue
			}
		}
		coins = append(coins, &coin{output: output, owned: owned})
	}
	sort.SliceStable(coins, func(i, j int) bool {
		a, b := coins[i].output, coins[j].output
		if a.Confirmed != b.Confirmed {
			return a.Confirmed
		}
		return a.Height < b.Height
	})
	return coins
}

// groupBySource splits coins by vault script, keeping the order of each
// script's first coin.
func groupBySource(coins []*coin) [][]*coin {
	var groups [][]*coin
	index := make(map[string]int)
	for _, c := range coins {
		script, err := c.owned.template.Script()
		if err != nil {
			continue
		}
		i, ok := index[string(script)]
		if !ok {
			i = len(groups)
			index[string(script)] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], c)
	}
	return groups
}

// send funds a payment from the first group that can cover it, signs the
// transaction and submits it.
func (w *Wallet) send(address btcutil.Address, amount btcutil.Amount, groups [][]*coin,
	sign signer) (chainhash.Hash, error) {

	if amount <= 0 {
		return chainhash.Hash{}, errors.Errorf("invalid amount %s", amount)
	}
	pkScript, err := txscript.PayToAddrScript(address)
	if err != nil {
		return chainhash.Hash{}, errors.Wrapf(err, "address %s", address)
	}
	payment := wire.NewTxOut(int64(amount), pkScript)

	var total btcutil.Amount
	for _, group := range groups {
		tx, err := w.fund(group, payment, sign)
		if errors.Is(err, ruleerrors.ErrInsufficientFunds) {
			total += sumCoins(group)
			continue
		}
		if err != nil {
			return chainhash.Hash{}, err
		}
		err = w.source.SubmitTransaction(tx)
		if err != nil {
			return chainhash.Hash{}, err
		}
		txID := tx.TxHash()
		log.Infof("Sent %s to %s in transaction %s", amount, address, txID)
		return txID, nil
	}
	return chainhash.Hash{}, ruleerrors.Errorf(ruleerrors.ErrInsufficientFunds,
		"cannot pay %s from spendable outputs totalling %s", amount, total)
}

func sumCoins(coins []*coin) btcutil.Amount {
	var sum btcutil.Amount
	for _, c := range coins {
		sum += btcutil.Amount(c.output.TxOut.Value)
	}
	return sum
}

// fund builds and signs a transaction paying payment from coins with change
// back to the script of the first coin spent. It raises the fee until it
// covers the signed virtual size at the wallet fee rate.
func (w *Wallet) fund(coins []*coin, payment *wire.TxOut, sign signer) (*wire.MsgTx, error) {
	var fee int64
	for round := 0; round < maxFeeRounds; round++ {
		selected, total := selectCoins(coins, payment.Value+fee)
		if total < payment.Value+fee {
			return nil, ruleerrors.Errorf(ruleerrors.ErrInsufficientFunds,
				"need %d, have %d", payment.Value+fee, total)
		}

		tx := wire.NewMsgTx(wire.TxVersion)
		for _, c := range selected {
			tx.AddTxIn(wire.NewTxIn(&c.output.Outpoint, nil, nil))
		}
		tx.AddTxOut(wire.NewTxOut(payment.Value, payment.PkScript))
		change := wire.NewTxOut(total-payment.Value-fee, selected[0].output.TxOut.PkScript)
		if !mempool.IsDust(change, mempool.DefaultMinRelayTxFee) {
			tx.AddTxOut(change)
		}

		err := sign(tx, selected)
		if err != nil {
			return nil, err
		}
		required := int64(w.feeRate) * mempool.GetTxVirtualSize(tx) / 1000
		if total-totalOut(tx) >= required {
			return tx, nil
		}
		fee = required
	}
	return nil, errors.Errorf("fee did not converge after %d rounds", maxFeeRounds)
}

func selectCoins(coins []*coin, target int64) ([]*coin, int64) {
	var total int64
	for i, c := range coins {
		total += c.output.TxOut.Value
		if total >= target {
			return coins[:i+1], total
		}
	}
	return coins, total
}

func totalOut(tx *wire.MsgTx) int64 {
	var total int64
	for _, txOut := range tx.TxOut {
		total += txOut.Value
	}
	return total
}

func prevOutsOf(coins []*coin) []*wire.TxOut {
	prevOuts := make([]*wire.TxOut, len(coins))
	for i, c := range coins {
		prevOuts[i] = c.output.TxOut
	}
	return prevOuts
}

func (w *Wallet) signRegular(tx *wire.MsgTx, coins []*coin) error {
	sigHashes, _ := NewSigHashes(tx, prevOutsOf(coins))
	for i, c := range coins {
		err := SignP2WPKHInput(tx, sigHashes, i, c.output.TxOut, c.owned.key)
		if err != nil {
			return err
		}
	}
	return nil
}

// signVaultCoins returns a signer taking the branch of role on every input.
// The instant branch also signs with instantKey, or the wallet's own instant
// key when it is nil.
func (w *Wallet) signVaultCoins(role vaultscript.Role, instantKey *btcec.PrivateKey) signer {
	return func(tx *wire.MsgTx, coins []*coin) error {
		sigHashes, _ := NewSigHashes(tx, prevOutsOf(coins))
		for i, c := range coins {
			keys := []*btcec.PrivateKey{c.owned.key}
			if _, ok := role.(vaultscript.InstantRole); ok {
				key, ok := w.instantKey(c.owned.template, instantKey)
				if !ok {
					return ruleerrors.Errorf(ruleerrors.ErrMissingKey, "no instant key for input %d", i)
				}
				keys = append(keys, key)
			}
			complete, err := SignVaultInput(tx, sigHashes, i, c.output.TxOut, c.owned.template, role, keys...)
			if err != nil {
				return err
			}
			if !complete {
				return ruleerrors.Errorf(ruleerrors.ErrMissingKey, "input %d is not fully signed", i)
			}
		}
		return nil
	}
}
