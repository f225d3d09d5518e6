package wallet

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
)

// Payment is an output of a transaction the wallet creates.
type Payment struct {
	Address btcutil.Address
	Amount  btcutil.Amount
}

// InputError is a failure to sign one input.
type InputError struct {
	Index    int
	Outpoint wire.OutPoint
	Err      error
}

func (e *InputError) Error() string {
	return errors.Wrapf(e.Err, "input %d (%s)", e.Index, e.Outpoint).Error()
}

// SignResult is the outcome of a signing request. Tx carries every
// signature that could be made. Complete is set when all inputs are fully
// signed.
type SignResult struct {
	Tx       *wire.MsgTx
	Complete bool
	Errors   []*InputError
}

func (r *SignResult) addError(index int, err error) {
	r.Complete = false
	r.Errors = append(r.Errors, &InputError{
		Index:    index,
		Outpoint: r.Tx.TxIn[index].PreviousOutPoint,
		Err:      err,
	})
}

// CreateRecoveryTransaction returns an unsigned transaction spending the
// inputs of the given alerts to payments. The alerts must be pending or
// confirmed and not yet matured.
func (w *Wallet) CreateRecoveryTransaction(alertTxIDs []chainhash.Hash, payments []Payment) (*wire.MsgTx, error) {
	if len(alertTxIDs) == 0 {
		return nil, errors.New("no alert to recover")
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	seen := make(map[chainhash.Hash]struct{}, len(alertTxIDs))
	var source *model.SourceAddress
	for _, alertTxID := range alertTxIDs {
		if _, ok := seen[alertTxID]; ok {
			continue
		}
		seen[alertTxID] = struct{}{}
		alert, err := w.source.RecoverableAlert(alertTxID)
		if err != nil {
			return nil, err
		}
		if source == nil {
			source = &alert.Source
		} else if *source != alert.Source {
			return nil, ruleerrors.Errorf(ruleerrors.ErrMixedAlertSources,
				"alert %s pays from %s, not %s", alertTxID, alert.Source, *source)
		}
		for _, outpoint := range alert.Inputs() {
			outpoint := outpoint
			tx.AddTxIn(wire.NewTxIn(&outpoint, nil, nil))
		}
	}

	for _, payment := range payments {
		pkScript, err := txscript.PayToAddrScript(payment.Address)
		if err != nil {
			return nil, errors.Wrapf(err, "address %s", payment.Address)
		}
		tx.AddTxOut(wire.NewTxOut(int64(payment.Amount), pkScript))
	}

	prevOuts, err := w.source.PrevOuts(tx)
	if err != nil {
		return nil, err
	}
	var totalIn int64
	for _, prevOut := range prevOuts {
		totalIn += prevOut.Value
	}
	if totalOut(tx) > totalIn {
		return nil, ruleerrors.Errorf(ruleerrors.ErrInsufficientFunds,
			"outputs of %d exceed the %d the alerts spend", totalOut(tx), totalIn)
	}
	return tx, nil
}

// SignRecoveryTransaction signs the inputs of tx through the recovery
// branch of the template witnessScript encodes. keys are tried before the
// wallet's own keys.
func (w *Wallet) SignRecoveryTransaction(tx *wire.MsgTx, keys []*btcec.PrivateKey,
	witnessScript []byte) (*SignResult, error) {

	template, err := vaultscript.ParseTemplate(witnessScript)
	if err != nil {
		return nil, err
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.signVault(tx, vaultscript.RecoveryRole{}, keys, template)
}

// SignAlertTransaction signs the inputs of tx on wallet vault scripts
// through the owner branch.
func (w *Wallet) SignAlertTransaction(tx *wire.MsgTx) (*SignResult, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.signVault(tx, vaultscript.OwnerRole{}, nil, nil)
}

// SignInstantTransaction signs the inputs of tx on wallet instant scripts
// through the instant branch. keys are tried before the wallet's own keys.
func (w *Wallet) SignInstantTransaction(tx *wire.MsgTx, keys []*btcec.PrivateKey) (*SignResult, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.signVault(tx, vaultscript.InstantRole{}, keys, nil)
}

var roleKinds = map[string]model.TxKind{
	vaultscript.OwnerRole{}.String():    model.KindAlert,
	vaultscript.InstantRole{}.String():  model.KindInstant,
	vaultscript.RecoveryRole{}.String(): model.KindRecovery,
}

// signVault signs every input of a copy of tx through the branch of role.
// A nil template selects the wallet template of each spent script. It fails
// with ErrInvalidTransactionType if no input could be signed.
func (w *Wallet) signVault(tx *wire.MsgTx, role vaultscript.Role, keys []*btcec.PrivateKey,
	template *vaultscript.Template) (*SignResult, error) {

	prevOuts, err := w.source.PrevOuts(tx)
	if err != nil {
		return nil, err
	}
	signed := tx.Copy()
	sigHashes, _ := NewSigHashes(signed, prevOuts)
	result := &SignResult{Tx: signed, Complete: true}
	signedInputs := 0
	for i, prevOut := range prevOuts {
		inputTemplate := template
		if inputTemplate == nil {
			owned, ok := w.scripts[string(prevOut.PkScript)]
			if !ok || owned.template == nil {
				result.addError(i, errors.New("input does not spend a vault script of the wallet"))
				continue
			}
			inputTemplate = owned.template
		} else if _, ok := inputTemplate.IsVaultPkScript(prevOut.PkScript); !ok {
			result.addError(i, ruleerrors.Errorf(ruleerrors.ErrTemplateMismatch,
				"witness script does not match the spent output"))
			continue
		}

		slots, err := inputTemplate.SigningKeys(role)
		if err != nil {
			result.addError(i, err)
			continue
		}
		signers := make([]*btcec.PrivateKey, len(slots))
		found := false
		for j, slot := range slots {
			signers[j] = w.findKey(slot, keys)
			found = found || signers[j] != nil
		}
		if !found {
			result.addError(i, ruleerrors.Errorf(ruleerrors.ErrMissingKey, "no key for the %s branch", role))
			continue
		}

		complete, err := SignVaultInput(signed, sigHashes, i, prevOut, inputTemplate, role, signers...)
		if err != nil {
			result.addError(i, err)
			continue
		}
		signedInputs++
		if !complete {
			result.addError(i, ruleerrors.Errorf(ruleerrors.ErrMissingKey,
				"unable to sign input, invalid stack size (possibly missing key)"))
		}
	}

	if signedInputs == 0 {
		return nil, ruleerrors.Errorf(ruleerrors.ErrInvalidTransactionType, "type %s was expected",
			roleKinds[role.String()])
	}
	log.Debugf("Signed %d of %d inputs of %s through the %s branch", signedInputs, len(prevOuts),
		signed.TxHash(), role)
	return result, nil
}

func (w *Wallet) findKey(pubKey *btcec.PublicKey, keys []*btcec.PrivateKey) *btcec.PrivateKey {
	for _, key := range keys {
		if key.PubKey().IsEqual(pubKey) {
			return key
		}
	}
	key, ok := w.keyFor(pubKey)
	if !ok {
		return nil
	}
	return key
}
