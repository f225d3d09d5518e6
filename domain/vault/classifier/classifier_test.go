package classifier

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
	"github.com/stretchr/testify/require"
)

var fakeSig = []byte{0x30, 0x01}

func pubKey(seed byte) *btcec.PublicKey {
	keyBytes := make([]byte, 32)
	keyBytes[31] = seed
	_, pub := btcec.PrivKeyFromBytes(keyBytes)
	return pub
}

// fakeView answers vault lookups from an outpoint to template map and entry
// lookups from maps of recorded spends.
type fakeView struct {
	templates map[wire.OutPoint]*vaultscript.Template
	entries   map[wire.OutPoint]*model.Entry
	alerts    map[chainhash.Hash]*model.AlertRecord
}

func newFakeView() *fakeView {
	return &fakeView{
		templates: make(map[wire.OutPoint]*vaultscript.Template),
		entries:   make(map[wire.OutPoint]*model.Entry),
		alerts:    make(map[chainhash.Hash]*model.AlertRecord),
	}
}

func (v *fakeView) VaultOutput(outpoint wire.OutPoint, _ *wire.TxIn) fn.Option[model.SourceAddress] {
	template, ok := v.templates[outpoint]
	if !ok {
		return fn.None[model.SourceAddress]()
	}
	source, err := model.SourceOf(template)
	if err != nil {
		return fn.None[model.SourceAddress]()
	}
	return fn.Some(source)
}

func (v *fakeView) Entry(outpoint wire.OutPoint) fn.Option[*model.Entry] {
	entry, ok := v.entries[outpoint]
	if !ok {
		return fn.None[*model.Entry]()
	}
	return fn.Some(entry)
}

func (v *fakeView) Alert(txID chainhash.Hash) fn.Option[*model.AlertRecord] {
	alert, ok := v.alerts[txID]
	if !ok {
		return fn.None[*model.AlertRecord]()
	}
	return fn.Some(alert)
}

func outpoint(seed byte) wire.OutPoint {
	return wire.OutPoint{Hash: chainhash.Hash{seed}, Index: 0}
}

func (v *fakeView) fund(t *testing.T, template *vaultscript.Template, seeds ...byte) {
	for _, seed := range seeds {
		v.templates[outpoint(seed)] = template
	}
}

// spendTx builds a transaction spending the given outpoints through the
// branch of role of template.
func spendTx(t *testing.T, template *vaultscript.Template, role vaultscript.Role, seeds ...byte) *wire.MsgTx {
	keys, err := template.SigningKeys(role)
	require.NoError(t, err)
	sigs := make([][]byte, len(keys))
	for i := range sigs {
		sigs[i] = fakeSig
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, seed := range seeds {
		witness, err := template.BuildWitness(role, sigs...)
		require.NoError(t, err)
		tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{seed}}, nil, witness))
	}
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))
	return tx
}

// recordAlert makes the view remember alert as confirmed at height 10.
func (v *fakeView) recordAlert(t *testing.T, alert *wire.MsgTx, template *vaultscript.Template) {
	source, err := model.SourceOf(template)
	require.NoError(t, err)
	txID := alert.TxHash()
	v.alerts[txID] = &model.AlertRecord{TxID: txID, Tx: alert, Source: source,
		ConfirmHeight: 10, State: model.StateConfirmedAlert}
	for _, txIn := range alert.TxIn {
		v.entries[txIn.PreviousOutPoint] = &model.Entry{
			Outpoint:     txIn.PreviousOutPoint,
			Source:       source,
			SpendingTxID: txID,
			Kind:         model.KindAlert,
			State:        model.StateConfirmedAlert,
			Height:       10,
		}
	}
}

func TestClassifyKinds(t *testing.T) {
	instant := vaultscript.NewInstantTemplate(pubKey(1), pubKey(2), pubKey(3))
	alert := vaultscript.NewAlertTemplate(pubKey(1), pubKey(3))

	view := newFakeView()
	view.fund(t, alert, 1, 2)
	view.fund(t, instant, 3)
	classifier := New(view, view)

	normal := wire.NewMsgTx(wire.TxVersion)
	normal.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{99}}, nil, nil))
	tests := []struct {
		name     string
		tx       *wire.MsgTx
		expected model.TxKind
	}{
		{"normal", normal, model.KindNormal},
		{"alert", spendTx(t, alert, vaultscript.OwnerRole{}, 1, 2), model.KindAlert},
		{"owner on instant address", spendTx(t, instant, vaultscript.OwnerRole{}, 3), model.KindAlert},
		{"instant", spendTx(t, instant, vaultscript.InstantRole{}, 3), model.KindInstant},
	}
	for _, test := range tests {
		result, err := classifier.Classify(test.tx)
		if err != nil {
			t.Fatalf("TestClassifyKinds: %s: unexpected error: %v", test.name, err)
		}
		if result.Kind != test.expected {
			t.Fatalf("TestClassifyKinds: %s: expected %s, got %s", test.name, test.expected, result.Kind)
		}
		require.Equal(t, test.expected != model.KindNormal, result.Source.IsSome())
	}
}

func TestClassifyRejections(t *testing.T) {
	alertA := vaultscript.NewAlertTemplate(pubKey(1), pubKey(3))
	alertB := vaultscript.NewAlertTemplate(pubKey(4), pubKey(3))

	view := newFakeView()
	view.fund(t, alertA, 1, 2)
	view.fund(t, alertB, 5)
	classifier := New(view, view)

	mixedSources := spendTx(t, alertA, vaultscript.OwnerRole{}, 1)
	other := spendTx(t, alertB, vaultscript.OwnerRole{}, 5)
	mixedSources.AddTxIn(other.TxIn[0])

	nonVault := spendTx(t, alertA, vaultscript.OwnerRole{}, 1)
	nonVault.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{99}}, nil, nil))

	mixedRoles := spendTx(t, alertA, vaultscript.OwnerRole{}, 1)
	recoveryInput := spendTx(t, alertA, vaultscript.RecoveryRole{}, 2)
	mixedRoles.AddTxIn(recoveryInput.TxIn[0])

	unsigned := spendTx(t, alertA, vaultscript.OwnerRole{}, 1)
	unsigned.TxIn[0].Witness[1] = nil

	tests := []struct {
		name     string
		tx       *wire.MsgTx
		expected error
	}{
		{"two sources", mixedSources, ruleerrors.ErrMixedAlertSources},
		{"vault and non-vault inputs", nonVault, ruleerrors.ErrNonAlertInputs},
		{"mixed roles", mixedRoles, ruleerrors.ErrMissingKey},
		{"no signature", unsigned, ruleerrors.ErrMissingKey},
		{"recovery of unalerted outputs", spendTx(t, alertA, vaultscript.RecoveryRole{}, 1, 2),
			ruleerrors.ErrRecoveryInputsNotSpent},
	}
	for _, test := range tests {
		_, err := classifier.Classify(test.tx)
		if !errors.Is(err, test.expected) {
			t.Fatalf("TestClassifyRejections: %s: expected %v, got %v", test.name, test.expected, err)
		}
	}
}

func TestRecoveryExactness(t *testing.T) {
	template := vaultscript.NewInstantTemplate(pubKey(1), pubKey(2), pubKey(3))
	view := newFakeView()
	view.fund(t, template, 1, 2, 3, 4)
	classifier := New(view, view)

	firstAlert := spendTx(t, template, vaultscript.OwnerRole{}, 1, 2)
	secondAlert := spendTx(t, template, vaultscript.OwnerRole{}, 3)
	view.recordAlert(t, firstAlert, template)
	view.recordAlert(t, secondAlert, template)

	result, err := classifier.Classify(spendTx(t, template, vaultscript.RecoveryRole{}, 2, 1))
	require.NoError(t, err)
	require.Equal(t, model.KindRecovery, result.Kind)
	require.Len(t, result.Alerts, 1)
	require.Equal(t, firstAlert.TxHash(), result.Alerts[0].TxID)

	result, err = classifier.Classify(spendTx(t, template, vaultscript.RecoveryRole{}, 1, 2, 3))
	require.NoError(t, err)
	require.Len(t, result.Alerts, 2)

	_, err = classifier.Classify(spendTx(t, template, vaultscript.RecoveryRole{}, 1))
	require.ErrorIs(t, err, ruleerrors.ErrRecoveryInputMismatch)

	_, err = classifier.Classify(spendTx(t, template, vaultscript.RecoveryRole{}, 2, 3))
	require.ErrorIs(t, err, ruleerrors.ErrRecoveryInputMismatch)

	_, err = classifier.Classify(spendTx(t, template, vaultscript.RecoveryRole{}, 1, 2, 4))
	require.ErrorIs(t, err, ruleerrors.ErrRecoveryInputMismatch)

	view.entries[outpoint(3)].State = model.StateMatured
	_, err = classifier.Classify(spendTx(t, template, vaultscript.RecoveryRole{}, 3))
	require.ErrorIs(t, err, ruleerrors.ErrAlreadyMatured)
}
