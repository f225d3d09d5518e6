package wallet

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
)

// NewSigHashes returns the sighash midstate of tx spending prevOuts, in
// input order, together with the fetcher the script engine needs.
func NewSigHashes(tx *wire.MsgTx, prevOuts []*wire.TxOut) (*txscript.TxSigHashes, *txscript.MultiPrevOutFetcher) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range tx.TxIn {
		fetcher.AddPrevOut(txIn.PreviousOutPoint, prevOuts[i])
	}
	return txscript.NewTxSigHashes(tx, fetcher), fetcher
}

// SignP2WPKHInput sets the witness of input index of tx, which spends the
// pay-to-witness-pubkey-hash output prevOut of key.
func SignP2WPKHInput(tx *wire.MsgTx, sigHashes *txscript.TxSigHashes, index int, prevOut *wire.TxOut,
	key *btcec.PrivateKey) error {

	witness, err := txscript.WitnessSignature(tx, sigHashes, index, prevOut.Value, prevOut.PkScript,
		txscript.SigHashAll, key, true)
	if err != nil {
		return errors.Wrapf(err, "signing input %d", index)
	}
	tx.TxIn[index].Witness = witness
	return nil
}

// SignVaultInput sets the signature script and the witness of input index
// of tx, which spends the vault output prevOut of template through the
// branch of role. keys are positional as returned by SigningKeys; a nil key
// keeps the signature already in that slot, if any. It returns whether
// every slot is filled.
func SignVaultInput(tx *wire.MsgTx, sigHashes *txscript.TxSigHashes, index int, prevOut *wire.TxOut,
	template *vaultscript.Template, role vaultscript.Role, keys ...*btcec.PrivateKey) (bool, error) {

	addressType, ok := template.IsVaultPkScript(prevOut.PkScript)
	if !ok {
		return false, errors.Errorf("input %d does not spend an output of the %s template", index, template.Type)
	}
	slots, err := template.SigningKeys(role)
	if err != nil {
		return false, err
	}
	if len(keys) != len(slots) {
		return false, errors.Errorf("%s branch takes %d keys, got %d", role, len(slots), len(keys))
	}
	script, err := template.Script()
	if err != nil {
		return false, err
	}

	sigs := make([][]byte, len(slots))
	if existingRole, existing := vaultscript.WitnessSignatures(tx.TxIn[index].Witness); sameRole(existingRole, role) {
		copy(sigs, existing)
	}
	for i, key := range keys {
		if key == nil {
			continue
		}
		sigs[i], err = txscript.RawTxInWitnessSignature(tx, sigHashes, index, prevOut.Value, script,
			txscript.SigHashAll, key)
		if err != nil {
			return false, errors.Wrapf(err, "signing input %d", index)
		}
	}

	sigScript, err := template.SignatureScript(addressType)
	if err != nil {
		return false, err
	}
	witness, err := template.BuildWitness(role, sigs...)
	if err != nil {
		return false, err
	}
	tx.TxIn[index].SignatureScript = sigScript
	tx.TxIn[index].Witness = witness
	return vaultscript.IsComplete(witness), nil
}

func sameRole(a, b vaultscript.Role) bool {
	switch a.(type) {
	case vaultscript.OwnerRole:
		_, ok := b.(vaultscript.OwnerRole)
		return ok
	case vaultscript.InstantRole:
		_, ok := b.(vaultscript.InstantRole)
		return ok
	case vaultscript.RecoveryRole:
		_, ok := b.(vaultscript.RecoveryRole)
		return ok
	}
	return false
}
