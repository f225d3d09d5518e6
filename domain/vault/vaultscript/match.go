package vaultscript

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"
)

// MatchInput reports whether an input with the given signature script and
// witness spends a vault output with output script pkScript. On a match it
// returns the template revealed by the witness and the address type of the
// output.
func MatchInput(pkScript, signatureScript []byte, witness wire.TxWitness) (*Template, AddressType, bool) {
	if len(witness) == 0 {
		return nil, "", false
	}
	template, err := ParseTemplate(witness[len(witness)-1])
	if err != nil {
		return nil, "", false
	}

	for _, addressType := range []AddressType{AddressTypeBech32, AddressTypeP2SHSegwit} {
		expectedPkScript, err := template.pkScriptForMatch(addressType)
		if err != nil || !bytes.Equal(expectedPkScript, pkScript) {
			continue
		}
		expectedSigScript, err := template.SignatureScript(addressType)
		if err != nil || !bytes.Equal(expectedSigScript, signatureScript) {
			return nil, "", false
		}
		return template, addressType, true
	}
	return nil, "", false
}

// IsVaultPkScript reports whether pkScript pays to template with any
// supported address type.
func (t *Template) IsVaultPkScript(pkScript []byte) (AddressType, bool) {
	for _, addressType := range []AddressType{AddressTypeBech32, AddressTypeP2SHSegwit} {
		expected, err := t.pkScriptForMatch(addressType)
		if err == nil && bytes.Equal(expected, pkScript) {
			return addressType, true
		}
	}
	return "", false
}

// pkScriptForMatch builds output scripts without network parameters. The
// output script of an address does not depend on them.
func (t *Template) pkScriptForMatch(addressType AddressType) ([]byte, error) {
	switch addressType {
	case AddressTypeBech32:
		return t.WitnessProgram()
	}
	return t.p2shPkScript()
}
