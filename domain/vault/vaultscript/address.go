package vaultscript

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
)

// AddressType is the output encoding of a vault address.
type AddressType string

// Supported vault address types.
const (
	AddressTypeBech32     AddressType = "bech32"
	AddressTypeP2SHSegwit AddressType = "p2sh-segwit"
)

// DefaultAddressType is used when no address type is requested.
const DefaultAddressType = AddressTypeBech32

// ParseAddressType returns the address type named by s. An empty s selects
// the default.
func ParseAddressType(s string) (AddressType, error) {
	switch AddressType(s) {
	case "":
		return DefaultAddressType, nil
	case AddressTypeBech32, AddressTypeP2SHSegwit:
		return AddressType(s), nil
	}
	return "", ruleerrors.Errorf(ruleerrors.ErrUnknownAddressType, "Unknown address type '%s'", s)
}

// WitnessProgram returns the P2WSH output script of the template.
func (t *Template) WitnessProgram() ([]byte, error) {
	hash, err := t.ScriptHash()
	if err != nil {
		return nil, err
	}
	return txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(hash[:]).Script()
}

// Address encodes t as an address of the given type.
func (t *Template) Address(params *chaincfg.Params, addressType AddressType) (btcutil.Address, error) {
	switch addressType {
	case AddressTypeBech32:
		hash, err := t.ScriptHash()
		if err != nil {
			return nil, err
		}
		return btcutil.NewAddressWitnessScriptHash(hash[:], params)
	case AddressTypeP2SHSegwit:
		program, err := t.WitnessProgram()
		if err != nil {
			return nil, err
		}
		return btcutil.NewAddressScriptHash(program, params)
	}
	return nil, ruleerrors.Errorf(ruleerrors.ErrUnknownAddressType, "Unknown address type '%s'", addressType)
}

// PkScript returns the output script paying to t with the given address
// type.
func (t *Template) PkScript(params *chaincfg.Params, addressType AddressType) ([]byte, error) {
	address, err := t.Address(params, addressType)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(address)
}

// SignatureScript returns the signature script an input spending t with the
// given address type carries. P2WSH inputs have none; P2SH-wrapped inputs
// push the witness program.
func (t *Template) SignatureScript(addressType AddressType) ([]byte, error) {
	switch addressType {
	case AddressTypeBech32:
		return nil, nil
	case AddressTypeP2SHSegwit:
		program, err := t.WitnessProgram()
		if err != nil {
			return nil, err
		}
		return txscript.NewScriptBuilder().AddData(program).Script()
	}
	return nil, ruleerrors.Errorf(ruleerrors.ErrUnknownAddressType, "Unknown address type '%s'", addressType)
}

func (t *Template) p2shPkScript() ([]byte, error) {
	program, err := t.WitnessProgram()
	if err != nil {
		return nil, err
	}
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(program)).
		AddOp(txscript.OP_EQUAL).
		Script()
}
