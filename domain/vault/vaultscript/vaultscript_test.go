package vaultscript

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/stretchr/testify/require"
)

func testKey(seed byte) *btcec.PrivateKey {
	keyBytes := make([]byte, 32)
	keyBytes[31] = seed
	key, _ := btcec.PrivKeyFromBytes(keyBytes)
	return key
}

type testKeys struct {
	owner, instant, recovery *btcec.PrivateKey
}

func newTestKeys() testKeys {
	return testKeys{owner: testKey(1), instant: testKey(2), recovery: testKey(3)}
}

func (k testKeys) alert() *Template {
	return NewAlertTemplate(k.owner.PubKey(), k.recovery.PubKey())
}

func (k testKeys) instantTemplate() *Template {
	return NewInstantTemplate(k.owner.PubKey(), k.instant.PubKey(), k.recovery.PubKey())
}

const testAmount = 175_0000_0000

// spend signs a one input transaction spending a vault output of template
// through the branch of role and runs it through the script engine.
func spend(t *testing.T, template *Template, addressType AddressType, role Role,
	signers ...*btcec.PrivateKey) (*wire.MsgTx, error) {

	pkScript, err := template.PkScript(&chaincfg.RegressionNetParams, addressType)
	require.NoError(t, err)
	script, err := template.Script()
	require.NoError(t, err)
	sigScript, err := template.SignatureScript(addressType)
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{1}, 0), sigScript, nil))
	tx.AddTxOut(wire.NewTxOut(testAmount-1000, []byte{txscript.OP_TRUE}))

	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, testAmount)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	sigs := make([][]byte, len(signers))
	for i, signer := range signers {
		if signer == nil {
			continue
		}
		sigs[i], err = txscript.RawTxInWitnessSignature(tx, sigHashes, 0, testAmount, script,
			txscript.SigHashAll, signer)
		require.NoError(t, err)
	}
	tx.TxIn[0].Witness, err = template.BuildWitness(role, sigs...)
	require.NoError(t, err)

	engine, err := txscript.NewEngine(pkScript, tx, 0, txscript.StandardVerifyFlags, nil,
		sigHashes, testAmount, fetcher)
	require.NoError(t, err)
	return tx, engine.Execute()
}

func TestTemplateRoundTrip(t *testing.T) {
	keys := newTestKeys()
	for _, template := range []*Template{keys.alert(), keys.instantTemplate()} {
		script, err := template.Script()
		require.NoError(t, err)
		parsed, err := ParseTemplate(script)
		require.NoError(t, err)
		if !parsed.Equal(template) {
			t.Fatalf("TestTemplateRoundTrip: parsed %s template differs", template.Type)
		}
		require.NoError(t, template.Matches(script))
	}
}

func TestParseInstantTemplateKeys(t *testing.T) {
	keys := newTestKeys()
	script, err := keys.instantTemplate().Script()
	require.NoError(t, err)

	parsed, err := ParseTemplate(script)
	if err != nil {
		t.Fatalf("TestParseInstantTemplateKeys: instant script not recognized: %v", err)
	}
	require.Equal(t, TemplateInstant, parsed.Type)
	require.True(t, parsed.OwnerKey.IsEqual(keys.owner.PubKey()))
	require.True(t, parsed.InstantKey.IsEqual(keys.instant.PubKey()))
	require.True(t, parsed.RecoveryKey.IsEqual(keys.recovery.PubKey()))

	// An owner only spend of an instant output must still be matched so
	// that it is treated as an alert.
	for _, addressType := range []AddressType{AddressTypeBech32, AddressTypeP2SHSegwit} {
		tx, err := spend(t, keys.instantTemplate(), addressType, OwnerRole{}, keys.owner)
		require.NoError(t, err)
		pkScript, err := keys.instantTemplate().PkScript(&chaincfg.RegressionNetParams, addressType)
		require.NoError(t, err)
		matched, _, ok := MatchInput(pkScript, tx.TxIn[0].SignatureScript, tx.TxIn[0].Witness)
		if !ok {
			t.Fatalf("TestParseInstantTemplateKeys: %s owner spend of instant output not matched", addressType)
		}
		require.Equal(t, TemplateInstant, matched.Type)
		require.Equal(t, OwnerRole{}, ClassifyWitness(tx.TxIn[0].Witness))
	}
}

func TestParseTemplateRejectsForeignScripts(t *testing.T) {
	keys := newTestKeys()
	multiSig, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).
		AddData(keys.owner.PubKey().SerializeCompressed()).
		AddData(keys.recovery.PubKey().SerializeCompressed()).
		AddOp(txscript.OP_2).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
	require.NoError(t, err)

	for _, script := range [][]byte{nil, {txscript.OP_TRUE}, multiSig} {
		_, err := ParseTemplate(script)
		if !errors.Is(err, ruleerrors.ErrTemplateMismatch) {
			t.Fatalf("TestParseTemplateRejectsForeignScripts: expected TemplateMismatch, got %v", err)
		}
	}

	other := NewAlertTemplate(keys.owner.PubKey(), keys.instant.PubKey())
	script, err := keys.alert().Script()
	require.NoError(t, err)
	require.ErrorIs(t, other.Matches(script), ruleerrors.ErrTemplateMismatch)
}

func TestSpendPathsVerify(t *testing.T) {
	keys := newTestKeys()
	tests := []struct {
		name     string
		template *Template
		role     Role
		signers  []*btcec.PrivateKey
	}{
		{"alert owner", keys.alert(), OwnerRole{}, []*btcec.PrivateKey{keys.owner}},
		{"alert recovery", keys.alert(), RecoveryRole{}, []*btcec.PrivateKey{keys.recovery}},
		{"instant owner", keys.instantTemplate(), OwnerRole{}, []*btcec.PrivateKey{keys.owner}},
		{"instant", keys.instantTemplate(), InstantRole{}, []*btcec.PrivateKey{keys.owner, keys.instant}},
		{"instant recovery", keys.instantTemplate(), RecoveryRole{}, []*btcec.PrivateKey{keys.instant, keys.recovery}},
	}
	for _, test := range tests {
		for _, addressType := range []AddressType{AddressTypeBech32, AddressTypeP2SHSegwit} {
			tx, err := spend(t, test.template, addressType, test.role, test.signers...)
			if err != nil {
				t.Fatalf("TestSpendPathsVerify: %s (%s): script failed: %v", test.name, addressType, err)
			}
			witness := tx.TxIn[0].Witness
			role := ClassifyWitness(witness)
			if role != test.role {
				t.Fatalf("TestSpendPathsVerify: %s: expected role %s, got %s", test.name, test.role, role)
			}
			if !IsComplete(witness) {
				t.Fatalf("TestSpendPathsVerify: %s: witness should be complete", test.name)
			}
			pkScript, err := test.template.PkScript(&chaincfg.RegressionNetParams, addressType)
			require.NoError(t, err)
			matched, matchedType, ok := MatchInput(pkScript, tx.TxIn[0].SignatureScript, witness)
			require.True(t, ok)
			require.Equal(t, addressType, matchedType)
			require.True(t, matched.Equal(test.template))
		}
	}
}

func TestIncompleteWitnessFailsVerification(t *testing.T) {
	keys := newTestKeys()
	tx, err := spend(t, keys.instantTemplate(), AddressTypeBech32, RecoveryRole{}, keys.instant, nil)
	if err == nil {
		t.Fatalf("TestIncompleteWitnessFailsVerification: a half signed recovery must not verify")
	}
	witness := tx.TxIn[0].Witness
	require.Equal(t, RecoveryRole{}, ClassifyWitness(witness))
	require.False(t, IsComplete(witness))
}

func TestClassifyMissingKey(t *testing.T) {
	keys := newTestKeys()
	script, err := keys.instantTemplate().Script()
	require.NoError(t, err)

	tests := []struct {
		name  string
		stack [][]byte
	}{
		{"empty stack", nil},
		{"no signatures", [][]byte{nil, nil, nil, nil, nil}},
		{"short else branch", [][]byte{nil, {0x30}, nil}},
		{"owner branch with extra item", [][]byte{nil, {0x30}, {0x30}, {0x01}}},
		{"non-minimal selector", [][]byte{nil, {0x30}, {0x02}}},
		{"non-null dummy", [][]byte{{0x00}, {0x30}, {0x01}}},
	}
	for _, test := range tests {
		role := ClassifySignature(script, test.stack)
		unknown, ok := role.(UnknownRole)
		if !ok {
			t.Fatalf("TestClassifyMissingKey: %s: expected unknown role, got %s", test.name, role)
		}
		if !errors.Is(unknown.Err, ruleerrors.ErrMissingKey) {
			t.Fatalf("TestClassifyMissingKey: %s: expected MissingKey, got %v", test.name, unknown.Err)
		}
	}

	role := ClassifySignature([]byte{txscript.OP_TRUE}, [][]byte{nil, {0x30}, {0x01}})
	unknown, ok := role.(UnknownRole)
	require.True(t, ok)
	require.ErrorIs(t, unknown.Err, ruleerrors.ErrTemplateMismatch)
}

func TestAlertTemplateHasNoInstantBranch(t *testing.T) {
	keys := newTestKeys()
	_, err := keys.alert().BuildWitness(InstantRole{}, []byte{0x30}, []byte{0x30})
	require.ErrorIs(t, err, ruleerrors.ErrTemplateMismatch)
}

func TestAddressTypes(t *testing.T) {
	keys := newTestKeys()
	template := keys.alert()

	bech32, err := template.Address(&chaincfg.RegressionNetParams, AddressTypeBech32)
	require.NoError(t, err)
	require.Contains(t, bech32.EncodeAddress(), "bcrt1")

	p2sh, err := template.Address(&chaincfg.RegressionNetParams, AddressTypeP2SHSegwit)
	require.NoError(t, err)
	require.NotEqual(t, bech32.EncodeAddress(), p2sh.EncodeAddress())

	_, err = template.Address(&chaincfg.RegressionNetParams, "legacy")
	require.ErrorIs(t, err, ruleerrors.ErrUnknownAddressType)
	_, err = ParseAddressType("legacy")
	require.ErrorIs(t, err, ruleerrors.ErrUnknownAddressType)

	addressType, err := ParseAddressType("")
	require.NoError(t, err)
	require.Equal(t, AddressTypeBech32, addressType)
}
