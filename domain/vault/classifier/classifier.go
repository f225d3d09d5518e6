// Package classifier assigns a transaction kind to candidate transactions
// before they are admitted to the mempool or connected in a block.
package classifier

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
)

// Result is the classification of a transaction. Source is set for every
// kind but Normal. Alerts holds the alerts a Recovery cancels, in the order
// their inputs first appear in the recovery.
type Result struct {
	Kind   model.TxKind
	Source fn.Option[model.SourceAddress]
	Alerts []*model.AlertRecord
}

// Classifier classifies transactions against a view of vault outputs and
// recorded vault spends.
type Classifier struct {
	vaultOutputs model.VaultOutputLookup
	entries      model.EntryLookup
}

// New returns a classifier that reads from the given lookups.
func New(vaultOutputs model.VaultOutputLookup, entries model.EntryLookup) *Classifier {
	return &Classifier{vaultOutputs: vaultOutputs, entries: entries}
}

// Classify returns the kind of tx, or the rule error that prevents tx from
// having any valid kind.
func (c *Classifier) Classify(tx *wire.MsgTx) (*Result, error) {
	var sources []model.SourceAddress
	nonVaultInputs := 0
	for _, txIn := range tx.TxIn {
		source := c.vaultOutputs.VaultOutput(txIn.PreviousOutPoint, txIn)
		if source.IsNone() {
			nonVaultInputs++
			continue
		}
		sources = appendUnique(sources, source.UnwrapOr(model.SourceAddress{}))
	}

	if len(sources) == 0 {
		return &Result{Kind: model.KindNormal, Source: fn.None[model.SourceAddress]()}, nil
	}
	if len(sources) > 1 {
		return nil, ruleerrors.Errorf(ruleerrors.ErrMixedAlertSources,
			"transaction %s spends from %d vault addresses", tx.TxHash(), len(sources))
	}
	if nonVaultInputs > 0 {
		return nil, ruleerrors.Errorf(ruleerrors.ErrNonAlertInputs,
			"transaction %s mixes %d non-vault inputs with vault inputs", tx.TxHash(), nonVaultInputs)
	}
	source := sources[0]

	role, err := inputsRole(tx)
	if err != nil {
		return nil, err
	}

	result := &Result{Source: fn.Some(source)}
	switch role.(type) {
	case vaultscript.OwnerRole:
		result.Kind = model.KindAlert
	case vaultscript.InstantRole:
		result.Kind = model.KindInstant
	case vaultscript.RecoveryRole:
		result.Kind = model.KindRecovery
		result.Alerts, err = c.recoveryTargets(tx, source)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func appendUnique(sources []model.SourceAddress, source model.SourceAddress) []model.SourceAddress {
	for _, existing := range sources {
		if existing == source {
			return sources
		}
	}
	return append(sources, source)
}

// inputsRole returns the role every input of a vault spend signs with.
func inputsRole(tx *wire.MsgTx) (vaultscript.Role, error) {
	var role vaultscript.Role
	for i, txIn := range tx.TxIn {
		inputRole := vaultscript.ClassifyWitness(txIn.Witness)
		if unknown, ok := inputRole.(vaultscript.UnknownRole); ok {
			return nil, errors.Wrapf(unknown.Err, "input %d of %s", i, tx.TxHash())
		}
		if role == nil {
			role = inputRole
			continue
		}
		if role != inputRole {
			return nil, ruleerrors.Errorf(ruleerrors.ErrMissingKey,
				"mixed signature set: input %d signs as %s, input 0 as %s", i, inputRole, role)
		}
	}
	return role, nil
}

// recoveryTargets resolves the alerts a recovery cancels. The recovery must
// consume the complete input sets of the alerts it touches and nothing else.
func (c *Classifier) recoveryTargets(tx *wire.MsgTx, source model.SourceAddress) ([]*model.AlertRecord, error) {
	txInputs := make(map[wire.OutPoint]struct{}, len(tx.TxIn))
	for _, txIn := range tx.TxIn {
		txInputs[txIn.PreviousOutPoint] = struct{}{}
	}

	alerted := 0
	for _, txIn := range tx.TxIn {
		if c.entries.Entry(txIn.PreviousOutPoint).IsSome() {
			alerted++
		}
	}

	var alerts []*model.AlertRecord
	seen := make(map[chainhash.Hash]struct{})
	for _, txIn := range tx.TxIn {
		outpoint := txIn.PreviousOutPoint
		missing := ruleerrors.Errorf(ruleerrors.ErrRecoveryInputsNotSpent, "input %s is not spent by an alert", outpoint)
		if alerted > 0 {
			missing = ruleerrors.Errorf(ruleerrors.ErrRecoveryInputMismatch,
				"recovery %s also spends input %s no alert spends", tx.TxHash(), outpoint)
		}
		entry, err := c.entries.Entry(outpoint).UnwrapOrErr(missing)
		if err != nil {
			return nil, err
		}
		err = checkRecoverableEntry(entry)
		if err != nil {
			return nil, err
		}
		if entry.Source != source {
			return nil, ruleerrors.Errorf(ruleerrors.ErrRecoveryInputMismatch,
				"input %s was alerted from another address", outpoint)
		}
		if _, ok := seen[entry.SpendingTxID]; ok {
			continue
		}
		seen[entry.SpendingTxID] = struct{}{}

		alert, err := c.entries.Alert(entry.SpendingTxID).UnwrapOrErr(
			ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption, "entry %s references unknown alert %s",
				outpoint, entry.SpendingTxID))
		if err != nil {
			return nil, err
		}
		for _, alertInput := range alert.Inputs() {
			if _, ok := txInputs[alertInput]; !ok {
				return nil, ruleerrors.Errorf(ruleerrors.ErrRecoveryInputMismatch,
					"recovery %s leaves input %s of alert %s unspent", tx.TxHash(), alertInput, alert.TxID)
			}
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func checkRecoverableEntry(entry *model.Entry) error {
	if entry.Kind != model.KindAlert {
		if entry.State == model.StateMatured {
			return ruleerrors.Errorf(ruleerrors.ErrAlreadyMatured,
				"input %s was spent by instant transaction %s", entry.Outpoint, entry.SpendingTxID)
		}
		return ruleerrors.Errorf(ruleerrors.ErrRecoveryInputsNotSpent,
			"input %s is spent by instant transaction %s", entry.Outpoint, entry.SpendingTxID)
	}
	switch entry.State {
	case model.StatePendingAlert, model.StateConfirmedAlert:
		return nil
	case model.StateMatured:
		return ruleerrors.Errorf(ruleerrors.ErrAlreadyMatured,
			"alert %s matured at height %d", entry.SpendingTxID, entry.Height)
	case model.StateRecovered:
		return ruleerrors.Errorf(ruleerrors.ErrMissingInputs,
			"alert %s was recovered at height %d", entry.SpendingTxID, entry.Height)
	}
	return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption, "entry %s has state %s", entry.Outpoint, entry.State)
}
