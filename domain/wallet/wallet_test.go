package wallet_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain"
	"github.com/sashabeton/bitcoinvault/domain/netparams"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/testutils"
	"github.com/sashabeton/bitcoinvault/domain/vault/balance"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
	"github.com/sashabeton/bitcoinvault/domain/wallet"
	"github.com/stretchr/testify/require"
)

const coin = btcutil.Amount(btcutil.SatoshiPerBitcoin)

func newTestDomain(t *testing.T) (domain.Domain, *netparams.Params) {
	params := netparams.RegressionNetParams
	return testutils.NewTestDomain(t, &params), &params
}

func TestBalanceLabel(t *testing.T) {
	d, _ := newTestDomain(t)
	w := wallet.New(d)

	for _, label := range []string{"", balance.AnyLabel} {
		_, err := w.Balance(balance.KindRegular, 1, label)
		if err != nil {
			t.Fatalf("TestBalanceLabel: label %q: unexpected error: %+v", label, err)
		}
	}
	_, err := w.Balance(balance.KindAlert, 1, "savings")
	if !errors.Is(err, balance.ErrLabelUnsupported) {
		t.Fatalf("TestBalanceLabel: expected %v, got %v", balance.ErrLabelUnsupported, err)
	}
}

func TestSendToAddress(t *testing.T) {
	d, params := newTestDomain(t)
	sender := wallet.New(d)
	receiver := wallet.New(d)

	senderAddress, err := sender.GetNewAddress("")
	require.NoError(t, err)
	_, err = d.GenerateToAddress(int(params.CoinbaseMaturity)+1, senderAddress)
	require.NoError(t, err)

	subsidy := btcutil.Amount(netparams.CalcBlockSubsidy(1))
	spendable, err := sender.Balance(balance.KindRegular, 1, "")
	require.NoError(t, err)
	require.Equal(t, subsidy, spendable)

	receiverAddress, err := receiver.GetNewAddress("")
	require.NoError(t, err)
	_, err = sender.SendToAddress(receiverAddress, 0)
	require.Error(t, err)
	_, err = sender.SendToAddress(receiverAddress, 2*subsidy)
	if !errors.Is(err, ruleerrors.ErrInsufficientFunds) {
		t.Fatalf("TestSendToAddress: expected %v, got %v", ruleerrors.ErrInsufficientFunds, err)
	}

	amount := 10 * coin
	txID, err := sender.SendToAddress(receiverAddress, amount)
	require.NoError(t, err)
	mempoolTransactions := d.MempoolTransactions()
	require.Len(t, mempoolTransactions, 1)
	require.Equal(t, txID, mempoolTransactions[0].TxHash())

	// Unconfirmed change counts for the wallet that funded it.
	unconfirmed, err := sender.Balance(balance.KindRegular, 0, "")
	require.NoError(t, err)
	if unconfirmed >= subsidy-amount || unconfirmed < subsidy-amount-coin/100 {
		t.Fatalf("TestSendToAddress: unexpected unconfirmed balance %s", unconfirmed)
	}
	received, err := receiver.Balance(balance.KindRegular, 0, "")
	require.NoError(t, err)
	require.Zero(t, received)

	testutils.Generate(t, d, 1, testutils.P2WPKHScript(t, params, testutils.Key(50)))
	received, err = receiver.Balance(balance.KindRegular, 1, "")
	require.NoError(t, err)
	require.Equal(t, amount, received)
}

func TestImportPrivKey(t *testing.T) {
	d, params := newTestDomain(t)
	w := wallet.New(d)

	key := testutils.Key(7)
	wif, err := btcutil.NewWIF(key, params.Net, true)
	require.NoError(t, err)
	address, err := w.ImportPrivKey(wif.String(), "")
	require.NoError(t, err)

	_, err = d.GenerateToAddress(int(params.CoinbaseMaturity)+1, address)
	require.NoError(t, err)
	spendable, err := w.Balance(balance.KindRegular, 1, "")
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(netparams.CalcBlockSubsidy(1)), spendable)

	mainnetWIF, err := btcutil.NewWIF(key, netparams.MainnetParams.Net, true)
	require.NoError(t, err)
	_, err = w.ImportPrivKey(mainnetWIF.String(), "")
	require.Error(t, err)
}

func TestSendAlertKeepsToOneSource(t *testing.T) {
	d, params := newTestDomain(t)
	sender := wallet.New(d)
	receiver := wallet.New(d)

	recoveryKey := testutils.Key(99).PubKey()
	first, _, err := sender.NewVaultAlertAddress(recoveryKey, vaultscript.AddressTypeBech32, "")
	require.NoError(t, err)
	second, _, err := sender.NewVaultAlertAddress(recoveryKey, vaultscript.AddressTypeP2SHSegwit, "")
	require.NoError(t, err)
	_, err = d.GenerateToAddress(1, first)
	require.NoError(t, err)
	_, err = d.GenerateToAddress(1, second)
	require.NoError(t, err)
	testutils.Generate(t, d, int(params.CoinbaseMaturity), testutils.P2WPKHScript(t, params, testutils.Key(50)))

	subsidy := btcutil.Amount(netparams.CalcBlockSubsidy(1))
	alertBalance, err := sender.Balance(balance.KindAlert, 1, "")
	require.NoError(t, err)
	require.Equal(t, 2*subsidy, alertBalance)

	receiverAddress, err := receiver.GetNewAddress("")
	require.NoError(t, err)
	_, err = sender.SendAlertToAddress(receiverAddress, subsidy+coin)
	if !errors.Is(err, ruleerrors.ErrInsufficientFunds) {
		t.Fatalf("TestSendAlertKeepsToOneSource: expected %v, got %v", ruleerrors.ErrInsufficientFunds, err)
	}

	txID, err := sender.SendAlertToAddress(receiverAddress, subsidy-coin)
	require.NoError(t, err)
	mempoolTransactions := d.MempoolTransactions()
	require.Len(t, mempoolTransactions, 1)
	alert := mempoolTransactions[0]
	require.Equal(t, txID, alert.TxHash())
	require.Len(t, alert.TxIn, 1)

	result, err := d.Classify(alert)
	require.NoError(t, err)
	require.Equal(t, model.KindAlert, result.Kind)
	require.Equal(t, model.StatePendingAlert, d.AlertState(alert.TxIn[0].PreviousOutPoint).State)
}

func TestSendInstantNeedsInstantKey(t *testing.T) {
	d, params := newTestDomain(t)
	sender := wallet.New(d)
	receiver := wallet.New(d)

	instantKey := testutils.Key(98)
	address, _, err := sender.NewVaultInstantAddress(instantKey.PubKey(), testutils.Key(99).PubKey(),
		vaultscript.AddressTypeBech32, "")
	require.NoError(t, err)
	_, err = d.GenerateToAddress(int(params.CoinbaseMaturity)+1, address)
	require.NoError(t, err)

	instantBalance, err := sender.Balance(balance.KindInstant, 1, "")
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(netparams.CalcBlockSubsidy(1)), instantBalance)

	receiverAddress, err := receiver.GetNewAddress("")
	require.NoError(t, err)
	amount := 5 * coin
	_, err = sender.SendInstantToAddress(receiverAddress, amount, nil)
	if !errors.Is(err, ruleerrors.ErrMissingKey) {
		t.Fatalf("TestSendInstantNeedsInstantKey: expected %v, got %v", ruleerrors.ErrMissingKey, err)
	}
	_, err = sender.SendInstantToAddress(receiverAddress, amount, testutils.Key(97))
	if !errors.Is(err, ruleerrors.ErrMissingKey) {
		t.Fatalf("TestSendInstantNeedsInstantKey: expected %v for a wrong key, got %v", ruleerrors.ErrMissingKey, err)
	}

	_, err = sender.SendInstantToAddress(receiverAddress, amount, instantKey)
	require.NoError(t, err)
	mempoolTransactions := d.MempoolTransactions()
	require.Len(t, mempoolTransactions, 1)
	result, err := d.Classify(mempoolTransactions[0])
	require.NoError(t, err)
	require.Equal(t, model.KindInstant, result.Kind)

	testutils.Generate(t, d, 1, testutils.P2WPKHScript(t, params, testutils.Key(50)))
	received, err := receiver.Balance(balance.KindRegular, 1, "")
	require.NoError(t, err)
	require.Equal(t, amount, received)
}

// alertFixture funds one vault address of owner and leaves an alert from it
// in the mempool.
type alertFixture struct {
	d         domain.Domain
	params    *netparams.Params
	template  *vaultscript.Template
	alertTxID chainhash.Hash
	recoverer *wallet.Wallet
	safe      btcutil.Address
}

func newAlertFixture(t *testing.T, instant bool) *alertFixture {
	d, params := newTestDomain(t)
	owner := wallet.New(d)

	var address btcutil.Address
	var template *vaultscript.Template
	var err error
	if instant {
		address, template, err = owner.NewVaultInstantAddress(testutils.Key(98).PubKey(), testutils.Key(99).PubKey(),
			vaultscript.AddressTypeBech32, "")
	} else {
		address, template, err = owner.NewVaultAlertAddress(testutils.Key(99).PubKey(),
			vaultscript.AddressTypeBech32, "")
	}
	require.NoError(t, err)
	_, err = d.GenerateToAddress(int(params.CoinbaseMaturity)+1, address)
	require.NoError(t, err)

	payee, err := wallet.New(d).GetNewAddress("")
	require.NoError(t, err)
	alertTxID, err := owner.SendAlertToAddress(payee, 10*coin)
	require.NoError(t, err)

	recoverer := wallet.New(d)
	safe, err := recoverer.GetNewAddress("")
	require.NoError(t, err)
	return &alertFixture{
		d:         d,
		params:    params,
		template:  template,
		alertTxID: alertTxID,
		recoverer: recoverer,
		safe:      safe,
	}
}

func TestCreateRecoveryTransaction(t *testing.T) {
	f := newAlertFixture(t, false)
	subsidy := btcutil.Amount(netparams.CalcBlockSubsidy(1))

	_, err := f.recoverer.CreateRecoveryTransaction(nil, nil)
	require.Error(t, err)

	_, err = f.recoverer.CreateRecoveryTransaction([]chainhash.Hash{{1}},
		[]wallet.Payment{{Address: f.safe, Amount: coin}})
	if !errors.Is(err, ruleerrors.ErrRecoveryInputsNotSpent) {
		t.Fatalf("TestCreateRecoveryTransaction: expected %v for an unknown alert, got %v",
			ruleerrors.ErrRecoveryInputsNotSpent, err)
	}

	_, err = f.recoverer.CreateRecoveryTransaction([]chainhash.Hash{f.alertTxID},
		[]wallet.Payment{{Address: f.safe, Amount: subsidy + 1}})
	if !errors.Is(err, ruleerrors.ErrInsufficientFunds) {
		t.Fatalf("TestCreateRecoveryTransaction: expected %v, got %v", ruleerrors.ErrInsufficientFunds, err)
	}

	tx, err := f.recoverer.CreateRecoveryTransaction([]chainhash.Hash{f.alertTxID, f.alertTxID},
		[]wallet.Payment{{Address: f.safe, Amount: subsidy - coin/100}})
	require.NoError(t, err)
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 1)
	for _, txIn := range tx.TxIn {
		require.Empty(t, txIn.Witness)
	}
}

func TestSignRecoveryTransaction(t *testing.T) {
	f := newAlertFixture(t, false)
	subsidy := btcutil.Amount(netparams.CalcBlockSubsidy(1))
	witnessScript, err := f.template.Script()
	require.NoError(t, err)

	tx, err := f.recoverer.CreateRecoveryTransaction([]chainhash.Hash{f.alertTxID},
		[]wallet.Payment{{Address: f.safe, Amount: subsidy - coin/100}})
	require.NoError(t, err)

	_, err = f.recoverer.SignRecoveryTransaction(tx, nil, witnessScript)
	if !errors.Is(err, ruleerrors.ErrInvalidTransactionType) {
		t.Fatalf("TestSignRecoveryTransaction: expected %v without the recovery key, got %v",
			ruleerrors.ErrInvalidTransactionType, err)
	}

	_, err = f.recoverer.SignRecoveryTransaction(tx, nil, []byte{0x51})
	require.Error(t, err)

	other := testutils.NewVaultKeys(40).AlertTemplate()
	otherScript, err := other.Script()
	require.NoError(t, err)
	_, err = f.recoverer.SignRecoveryTransaction(tx, []*btcec.PrivateKey{testutils.Key(99)}, otherScript)
	if !errors.Is(err, ruleerrors.ErrInvalidTransactionType) {
		t.Fatalf("TestSignRecoveryTransaction: expected %v for another template, got %v",
			ruleerrors.ErrInvalidTransactionType, err)
	}

	f.recoverer.ImportKey(testutils.Key(99))
	result, err := f.recoverer.SignRecoveryTransaction(tx, nil, witnessScript)
	require.NoError(t, err)
	require.True(t, result.Complete)
	require.Empty(t, result.Errors)
	require.Empty(t, tx.TxIn[0].Witness)

	mempoolTransaction, err := f.d.AdmitToMempool(result.Tx)
	require.NoError(t, err)
	require.Equal(t, model.KindRecovery, mempoolTransaction.Kind)
	require.Equal(t, []chainhash.Hash{f.alertTxID}, mempoolTransaction.Alerts)

	testutils.Generate(t, f.d, 1, testutils.P2WPKHScript(t, f.params, testutils.Key(50)))
	require.Equal(t, model.StateRecovered, f.d.AlertState(tx.TxIn[0].PreviousOutPoint).State)
	recovered, err := f.recoverer.Balance(balance.KindRegular, 1, "")
	require.NoError(t, err)
	require.Equal(t, subsidy-coin/100, recovered)
}

func TestSignRecoveryTransactionInParts(t *testing.T) {
	f := newAlertFixture(t, true)
	witnessScript, err := f.template.Script()
	require.NoError(t, err)

	tx, err := f.recoverer.CreateRecoveryTransaction([]chainhash.Hash{f.alertTxID},
		[]wallet.Payment{{Address: f.safe, Amount: coin}})
	require.NoError(t, err)

	partial, err := f.recoverer.SignRecoveryTransaction(tx, []*btcec.PrivateKey{testutils.Key(99)}, witnessScript)
	require.NoError(t, err)
	require.False(t, partial.Complete)
	require.Len(t, partial.Errors, 1)
	require.True(t, errors.Is(partial.Errors[0].Err, ruleerrors.ErrMissingKey))

	_, err = f.d.AdmitToMempool(partial.Tx)
	require.Error(t, err)

	result, err := f.recoverer.SignRecoveryTransaction(partial.Tx, []*btcec.PrivateKey{testutils.Key(98)},
		witnessScript)
	require.NoError(t, err)
	require.True(t, result.Complete)

	mempoolTransaction, err := f.d.AdmitToMempool(result.Tx)
	require.NoError(t, err)
	require.Equal(t, model.KindRecovery, mempoolTransaction.Kind)
}

func TestSignAlertTransaction(t *testing.T) {
	d, params := newTestDomain(t)
	owner := wallet.New(d)
	address, _, err := owner.NewVaultAlertAddress(testutils.Key(99).PubKey(), vaultscript.AddressTypeBech32, "")
	require.NoError(t, err)
	blocks, err := d.GenerateToAddress(int(params.CoinbaseMaturity)+1, address)
	require.NoError(t, err)
	block, err := d.BlockByHeight(1)
	require.NoError(t, err)
	require.Equal(t, blocks[0], block.BlockHash())

	outpoints := []wire.OutPoint{testutils.CoinbaseOutpoint(block)}
	tx := testutils.PayAll(outpoints, []*wire.TxOut{block.Transactions[0].TxOut[0]},
		testutils.P2WPKHScript(t, params, testutils.Key(60)))

	_, err = wallet.New(d).SignAlertTransaction(tx)
	if !errors.Is(err, ruleerrors.ErrInvalidTransactionType) {
		t.Fatalf("TestSignAlertTransaction: expected %v from a wallet without the address, got %v",
			ruleerrors.ErrInvalidTransactionType, err)
	}

	result, err := owner.SignAlertTransaction(tx)
	require.NoError(t, err)
	require.True(t, result.Complete)
	mempoolTransaction, err := d.AdmitToMempool(result.Tx)
	require.NoError(t, err)
	require.Equal(t, model.KindAlert, mempoolTransaction.Kind)
	require.Zero(t, len(mempoolTransaction.Alerts))
}
