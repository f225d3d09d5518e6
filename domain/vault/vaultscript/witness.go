package vaultscript

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
)

// SigningKeys returns the keys whose signatures the branch of role needs,
// in the order their signatures appear on the witness stack.
func (t *Template) SigningKeys(role Role) ([]*btcec.PublicKey, error) {
	switch role.(type) {
	case OwnerRole:
		return []*btcec.PublicKey{t.OwnerKey}, nil
	case InstantRole:
		if t.Type != TemplateInstant {
			return nil, ruleerrors.Errorf(ruleerrors.ErrTemplateMismatch, "alert template has no instant branch")
		}
		return []*btcec.PublicKey{t.OwnerKey, t.InstantKey}, nil
	case RecoveryRole:
		if t.Type == TemplateInstant {
			return []*btcec.PublicKey{t.InstantKey, t.RecoveryKey}, nil
		}
		return []*btcec.PublicKey{t.RecoveryKey}, nil
	}
	return nil, ruleerrors.Errorf(ruleerrors.ErrMissingKey, "cannot sign for role %s", role)
}

// BuildWitness assembles the witness stack of the branch of role. sigs are
// positional as returned by SigningKeys; a nil entry leaves its slot empty.
func (t *Template) BuildWitness(role Role, sigs ...[]byte) (wire.TxWitness, error) {
	keys, err := t.SigningKeys(role)
	if err != nil {
		return nil, err
	}
	if len(sigs) != len(keys) {
		return nil, ruleerrors.Errorf(ruleerrors.ErrMissingKey,
			"%s branch takes %d signatures, got %d", role, len(keys), len(sigs))
	}
	script, err := t.Script()
	if err != nil {
		return nil, err
	}

	witness := wire.TxWitness{nil}
	for _, sig := range sigs {
		witness = append(witness, sig)
	}
	switch role.(type) {
	case OwnerRole:
		witness = append(witness, branchTrue)
	case InstantRole:
		witness = append(witness, branchTrue, nil)
	case RecoveryRole:
		if t.Type == TemplateInstant {
			witness = append(witness, nil)
		}
		witness = append(witness, nil)
	}
	return append(witness, script), nil
}

// WitnessSignatures returns the signature slots of a witness that spends
// through the branch of role, or nil if the witness takes another branch.
func WitnessSignatures(witness wire.TxWitness) (Role, [][]byte) {
	if len(witness) == 0 {
		return ClassifyWitness(witness), nil
	}
	last := len(witness) - 1
	template, err := ParseTemplate(witness[last])
	if err != nil {
		return UnknownRole{Err: err}, nil
	}
	b, err := template.selectBranch(witness[:last])
	if err != nil {
		return UnknownRole{Err: err}, nil
	}
	return b.role, b.sigs
}
