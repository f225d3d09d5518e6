package miningmanager_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/chain"
	"github.com/sashabeton/bitcoinvault/domain/licenses"
	"github.com/sashabeton/bitcoinvault/domain/miningmanager"
	"github.com/sashabeton/bitcoinvault/domain/miningmanager/mempool"
	"github.com/sashabeton/bitcoinvault/domain/netparams"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/testutils"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
	"github.com/sashabeton/bitcoinvault/domain/wallet"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database/ldb"
)

type testContext struct {
	t             *testing.T
	params        *netparams.Params
	chain         *chain.Chain
	miningManager miningmanager.MiningManager
	extraNonce    uint64
}

func newTestContext(t *testing.T, params *netparams.Params) *testContext {
	db, err := ldb.NewInMemoryLevelDB()
	if err != nil {
		t.Fatalf("NewInMemoryLevelDB: %+v", err)
	}
	t.Cleanup(func() { db.Close() })

	chainInstance, err := chain.New(db, params, chain.DefaultConfig())
	if err != nil {
		t.Fatalf("chain.New: %+v", err)
	}
	miningFactory := miningmanager.NewFactory()
	return &testContext{
		t:             t,
		params:        params,
		chain:         chainInstance,
		miningManager: miningFactory.NewMiningManager(chainInstance, mempool.DefaultConfig()),
	}
}

// mine builds numBlocks templates paying to payToScript and connects them.
func (tc *testContext) mine(numBlocks int, payToScript []byte) []*wire.MsgBlock {
	blocks := make([]*wire.MsgBlock, numBlocks)
	for i := range blocks {
		tc.extraNonce++
		block, err := tc.miningManager.GetBlockTemplate(payToScript, tc.extraNonce)
		if err != nil {
			tc.t.Fatalf("GetBlockTemplate: %+v", err)
		}
		tc.connect(block)
		blocks[i] = block
	}
	return blocks
}

func (tc *testContext) connect(block *wire.MsgBlock) {
	_, err := tc.chain.ProcessBlock(block)
	if err != nil {
		tc.t.Fatalf("ProcessBlock: %+v", err)
	}
	tc.miningManager.HandleNewBlock(block)
}

// blockWith returns a block on the tip that carries txs.
func (tc *testContext) blockWith(payToScript []byte, txs ...*wire.MsgTx) *wire.MsgBlock {
	tip, ok := tc.chain.BlockByHeight(tc.chain.TipHeight())
	if !ok {
		tc.t.Fatalf("no block at the tip height %d", tc.chain.TipHeight())
	}
	return testutils.BuildBlockOn(tc.t, tc.chain.TipHash(), tip.Header.Timestamp, tc.chain.TipHeight()+1,
		payToScript, nil, txs...)
}

// matureCoinbases mines numCoinbases spendable coinbase outputs to
// payToScript.
func (tc *testContext) matureCoinbases(numCoinbases int, payToScript []byte) ([]wire.OutPoint, []*wire.TxOut) {
	blocks := tc.mine(numCoinbases, payToScript)
	tc.mine(int(tc.params.CoinbaseMaturity), tc.minerScript())
	outpoints := make([]wire.OutPoint, numCoinbases)
	prevOuts := make([]*wire.TxOut, numCoinbases)
	for i, block := range blocks {
		outpoints[i] = testutils.CoinbaseOutpoint(block)
		prevOuts[i] = block.Transactions[0].TxOut[0]
	}
	return outpoints, prevOuts
}

func (tc *testContext) minerScript() []byte {
	return testutils.P2WPKHScript(tc.t, tc.params, testutils.Key(200))
}

// payTo spends prevOut, which pays to from, to the key to.
func (tc *testContext) payTo(from, to *btcec.PrivateKey, outpoint wire.OutPoint, prevOut *wire.TxOut) *wire.MsgTx {
	tx := testutils.PayAll([]wire.OutPoint{outpoint}, []*wire.TxOut{prevOut},
		testutils.P2WPKHScript(tc.t, tc.params, to))
	return testutils.SignP2WPKH(tc.t, tx, []*wire.TxOut{prevOut}, from)
}

// TestValidateAndInsertTransaction verifies that valid transactions were successfully inserted into the mempool.
func TestValidateAndInsertTransaction(t *testing.T) {
	testutils.ForAllNets(t, func(t *testing.T, params *netparams.Params) {
		tc := newTestContext(t, params)
		outpoints, prevOuts := tc.matureCoinbases(10, testutils.P2WPKHScript(t, params, testutils.Key(1)))

		transactionsToInsert := make([]*wire.MsgTx, len(outpoints))
		for i := range transactionsToInsert {
			transactionsToInsert[i] = tc.payTo(testutils.Key(1), testutils.Key(1), outpoints[i], prevOuts[i])
			mempoolTransaction, err := tc.miningManager.ValidateAndInsertTransaction(transactionsToInsert[i])
			if err != nil {
				t.Fatalf("ValidateAndInsertTransaction: %v", err)
			}
			if mempoolTransaction.Kind != model.KindNormal || mempoolTransaction.Fee != testutils.DefaultFee {
				t.Fatalf("Unexpected kind %s and fee %d", mempoolTransaction.Kind, mempoolTransaction.Fee)
			}
		}
		transactionsFromMempool := tc.miningManager.AllTransactions()
		if len(transactionsToInsert) != len(transactionsFromMempool) {
			t.Fatalf("Wrong number of transactions in mempool: expected: %d, got: %d",
				len(transactionsToInsert), len(transactionsFromMempool))
		}
		for _, transactionToInsert := range transactionsToInsert {
			if !contains(transactionToInsert, transactionsFromMempool) {
				t.Fatalf("Missing transaction %s in the mempool", transactionToInsert.TxHash())
			}
		}

		// A transaction spending the output of a pool transaction is accepted.
		parent := transactionsToInsert[0]
		child := tc.payTo(testutils.Key(1), testutils.Key(2),
			wire.OutPoint{Hash: parent.TxHash(), Index: 0}, parent.TxOut[0])
		_, err := tc.miningManager.ValidateAndInsertTransaction(child)
		if err != nil {
			t.Fatalf("ValidateAndInsertTransaction: %v", err)
		}
		if !tc.miningManager.IsOutpointSpent(wire.OutPoint{Hash: parent.TxHash(), Index: 0}) {
			t.Fatalf("The output of %s should be spent in the mempool", parent.TxHash())
		}
	})
}

func TestImmatureSpend(t *testing.T) {
	testutils.ForAllNets(t, func(t *testing.T, params *netparams.Params) {
		tc := newTestContext(t, params)
		block := tc.mine(1, testutils.P2WPKHScript(t, params, testutils.Key(1)))[0]

		tx := tc.payTo(testutils.Key(1), testutils.Key(1),
			testutils.CoinbaseOutpoint(block), block.Transactions[0].TxOut[0])
		_, err := tc.miningManager.ValidateAndInsertTransaction(tx)
		if !errors.Is(err, ruleerrors.ErrBadTransaction) || !strings.Contains(err.Error(), "before required maturity") {
			t.Fatalf("Unexpected error %+v", err)
		}
		if contains(tx, tc.miningManager.AllTransactions()) {
			t.Fatalf("Mempool contains a transaction with immature coinbase")
		}
	})
}

// TestInsertDoubleTransactionsToMempool verifies that an attempt to insert a transaction
// more than once into the mempool will result in raising an appropriate error.
func TestInsertDoubleTransactionsToMempool(t *testing.T) {
	testutils.ForAllNets(t, func(t *testing.T, params *netparams.Params) {
		tc := newTestContext(t, params)
		outpoints, prevOuts := tc.matureCoinbases(1, testutils.P2WPKHScript(t, params, testutils.Key(1)))

		transaction := tc.payTo(testutils.Key(1), testutils.Key(2), outpoints[0], prevOuts[0])
		_, err := tc.miningManager.ValidateAndInsertTransaction(transaction)
		if err != nil {
			t.Fatalf("ValidateAndInsertTransaction: %v", err)
		}
		_, err = tc.miningManager.ValidateAndInsertTransaction(transaction)
		if err == nil || !strings.Contains(err.Error(), "already in the mempool") {
			t.Fatalf("ValidateAndInsertTransaction: %v", err)
		}
		rejectCode, ok := mempool.ExtractRejectCode(err)
		if !ok || rejectCode != mempool.RejectDuplicate {
			t.Fatalf("Expected %s, got %s", mempool.RejectDuplicate, rejectCode)
		}

		conflicting := tc.payTo(testutils.Key(1), testutils.Key(3), outpoints[0], prevOuts[0])
		_, err = tc.miningManager.ValidateAndInsertTransaction(conflicting)
		if !errors.Is(err, ruleerrors.ErrMempoolConflict) {
			t.Fatalf("Expected %v, got %v", ruleerrors.ErrMempoolConflict, err)
		}
	})
}

// TestHandleNewBlockTransactions verifies that all the transactions in the block were successfully removed from the mempool.
func TestHandleNewBlockTransactions(t *testing.T) {
	testutils.ForAllNets(t, func(t *testing.T, params *netparams.Params) {
		tc := newTestContext(t, params)
		outpoints, prevOuts := tc.matureCoinbases(10, testutils.P2WPKHScript(t, params, testutils.Key(1)))

		transactionsToInsert := make([]*wire.MsgTx, len(outpoints))
		for i := range transactionsToInsert {
			transactionsToInsert[i] = tc.payTo(testutils.Key(1), testutils.Key(2), outpoints[i], prevOuts[i])
			_, err := tc.miningManager.ValidateAndInsertTransaction(transactionsToInsert[i])
			if err != nil {
				t.Fatalf("ValidateAndInsertTransaction: %v", err)
			}
		}

		const partialLength = 3
		tc.connect(tc.blockWith(tc.minerScript(), transactionsToInsert[:partialLength]...))
		mempoolTransactions := tc.miningManager.AllTransactions()
		for _, removedTransaction := range transactionsToInsert[:partialLength] {
			if contains(removedTransaction, mempoolTransactions) {
				t.Fatalf("This transaction shouldnt be in mempool: %s", removedTransaction.TxHash())
			}
		}

		// There are no chained/double-spends transactions, and hence it is expected that all the other
		// transactions, will still be included in the mempool.
		for _, transaction := range transactionsToInsert[partialLength:] {
			if !contains(transaction, mempoolTransactions) {
				t.Fatalf("This transaction %s should be in mempool.", transaction.TxHash())
			}
		}

		// Handle all the other transactions.
		block := tc.mine(1, tc.minerScript())[0]
		if len(block.Transactions) != len(transactionsToInsert)-partialLength+1 {
			t.Fatalf("Expected %d transactions in the block, got %d",
				len(transactionsToInsert)-partialLength+1, len(block.Transactions))
		}
		if len(tc.miningManager.AllTransactions()) != 0 {
			t.Fatalf("The mempool contains unexpected transactions: %s",
				transactionIDs(tc.miningManager.AllTransactions()))
		}
	})
}

// TestDoubleSpends verifies that any transactions which are now double spends as a result of the block's new transactions
// will be removed from the mempool.
func TestDoubleSpends(t *testing.T) {
	testutils.ForAllNets(t, func(t *testing.T, params *netparams.Params) {
		tc := newTestContext(t, params)
		outpoints, prevOuts := tc.matureCoinbases(1, testutils.P2WPKHScript(t, params, testutils.Key(1)))

		transactionInTheMempool := tc.payTo(testutils.Key(1), testutils.Key(2), outpoints[0], prevOuts[0])
		_, err := tc.miningManager.ValidateAndInsertTransaction(transactionInTheMempool)
		if err != nil {
			t.Fatalf("ValidateAndInsertTransaction: %v", err)
		}
		child := tc.payTo(testutils.Key(2), testutils.Key(2),
			wire.OutPoint{Hash: transactionInTheMempool.TxHash(), Index: 0}, transactionInTheMempool.TxOut[0])
		_, err = tc.miningManager.ValidateAndInsertTransaction(child)
		if err != nil {
			t.Fatalf("ValidateAndInsertTransaction: %v", err)
		}

		doubleSpendTransactionInTheBlock := tc.payTo(testutils.Key(1), testutils.Key(3), outpoints[0], prevOuts[0])
		tc.connect(tc.blockWith(tc.minerScript(), doubleSpendTransactionInTheBlock))
		if contains(transactionInTheMempool, tc.miningManager.AllTransactions()) {
			t.Fatalf("The transaction %s, shouldn't be in the mempool, since at least one "+
				"output was already spent.", transactionInTheMempool.TxHash())
		}
		if contains(child, tc.miningManager.AllTransactions()) {
			t.Fatalf("The transaction %s, shouldn't be in the mempool, since its parent was removed", child.TxHash())
		}
	})
}

// TestRemoveTransaction verifies that removing a transaction evicts its
// redeemers and leaves unrelated transactions in the mempool.
func TestRemoveTransaction(t *testing.T) {
	testutils.ForAllNets(t, func(t *testing.T, params *netparams.Params) {
		tc := newTestContext(t, params)
		outpoints, prevOuts := tc.matureCoinbases(2, testutils.P2WPKHScript(t, params, testutils.Key(1)))

		parent := tc.payTo(testutils.Key(1), testutils.Key(2), outpoints[0], prevOuts[0])
		child := tc.payTo(testutils.Key(2), testutils.Key(3),
			wire.OutPoint{Hash: parent.TxHash(), Index: 0}, parent.TxOut[0])
		unrelated := tc.payTo(testutils.Key(1), testutils.Key(4), outpoints[1], prevOuts[1])
		for _, transaction := range []*wire.MsgTx{parent, child, unrelated} {
			_, err := tc.miningManager.ValidateAndInsertTransaction(transaction)
			if err != nil {
				t.Fatalf("TestRemoveTransaction: ValidateAndInsertTransaction: %v", err)
			}
		}

		tc.miningManager.RemoveTransaction(parent.TxHash())
		mempoolTransactions := tc.miningManager.AllTransactions()
		if contains(parent, mempoolTransactions) || contains(child, mempoolTransactions) {
			t.Fatalf("TestRemoveTransaction: removed transaction or its redeemer is still in the mempool: %s",
				transactionIDs(mempoolTransactions))
		}
		if !contains(unrelated, mempoolTransactions) {
			t.Fatalf("TestRemoveTransaction: unrelated transaction %s was removed", unrelated.TxHash())
		}
		if tc.miningManager.IsOutpointSpent(outpoints[0]) {
			t.Fatalf("TestRemoveTransaction: outpoint %s is still spent by the mempool", outpoints[0])
		}

		// Removing an unknown transaction is a no-op.
		tc.miningManager.RemoveTransaction(chainhash.Hash{9})
		if len(tc.miningManager.AllTransactions()) != 1 {
			t.Fatalf("TestRemoveTransaction: expected 1 transaction, got %d", len(tc.miningManager.AllTransactions()))
		}
	})
}

// TestAlertLicenseAppliesAtMaturity verifies that the license
// announcements of an alert take effect when the alert matures, and never
// for an alert that was recovered.
func TestAlertLicenseAppliesAtMaturity(t *testing.T) {
	params := netparams.RegressionNetParams
	keys := testutils.NewVaultKeys(1)
	template := keys.AlertTemplate()
	vaultScript := testutils.VaultPkScript(t, &params, template, vaultscript.AddressTypeBech32)
	params.LicenseIssuerScript = vaultScript
	tc := newTestContext(t, &params)
	outpoints, prevOuts := tc.matureCoinbases(2, vaultScript)

	licensedKey := licenses.MinerKey(tc.minerScript())
	recoveredKey := licenses.MinerKey(testutils.P2WPKHScript(t, &params, testutils.Key(201)))
	licenseAlert := func(index int, minerKey []byte) *wire.MsgTx {
		tx := testutils.PayAll(outpoints[index:index+1], prevOuts[index:index+1],
			testutils.P2WPKHScript(t, &params, testutils.Key(60)))
		licenseScript, err := licenses.LicenseOutputScript(minerKey, 10)
		if err != nil {
			t.Fatalf("LicenseOutputScript: %+v", err)
		}
		tx.AddTxOut(wire.NewTxOut(0, licenseScript))
		return testutils.SignVault(t, tx, prevOuts[index:index+1], template, vaultscript.OwnerRole{}, keys.Owner)
	}
	for i, minerKey := range [][]byte{licensedKey, recoveredKey} {
		_, err := tc.miningManager.ValidateAndInsertTransaction(licenseAlert(i, minerKey))
		if err != nil {
			t.Fatalf("TestAlertLicenseAppliesAtMaturity: ValidateAndInsertTransaction: %v", err)
		}
	}
	tc.mine(1, tc.minerScript())
	confirmHeight := tc.chain.TipHeight()
	if len(tc.chain.Licenses().Licenses()) != 0 {
		t.Fatalf("TestAlertLicenseAppliesAtMaturity: a confirmed alert must not license a miner")
	}

	recovery := testutils.SignVault(t, testutils.PayAll(outpoints[1:2], prevOuts[1:2],
		testutils.P2WPKHScript(t, &params, testutils.Key(70))), prevOuts[1:2], template,
		vaultscript.RecoveryRole{}, keys.Recovery)
	_, err := tc.miningManager.ValidateAndInsertTransaction(recovery)
	if err != nil {
		t.Fatalf("TestAlertLicenseAppliesAtMaturity: recovery: %v", err)
	}
	tc.mine(int(params.AlertMaturity)-1, tc.minerScript())
	if len(tc.chain.Licenses().Licenses()) != 0 {
		t.Fatalf("TestAlertLicenseAppliesAtMaturity: license applied before the alert matured")
	}

	tc.mine(1, tc.minerScript())
	maturityHeight := confirmHeight + params.AlertMaturity
	if tc.chain.TipHeight() != maturityHeight {
		t.Fatalf("TestAlertLicenseAppliesAtMaturity: expected tip height %d, got %d",
			maturityHeight, tc.chain.TipHeight())
	}
	licensed := tc.chain.Licenses().Licenses()
	if len(licensed) != 1 || !bytes.Equal(licensed[0].MinerKey, licensedKey) {
		t.Fatalf("TestAlertLicenseAppliesAtMaturity: expected only the matured alert's miner to be licensed, got %d licenses",
			len(licensed))
	}
	if latest := licensed[0].Latest(); latest.Height != maturityHeight || latest.HashRate != 10 {
		t.Fatalf("TestAlertLicenseAppliesAtMaturity: unexpected license %+v", latest)
	}

	_, err = tc.chain.DisconnectTip()
	if err != nil {
		t.Fatalf("TestAlertLicenseAppliesAtMaturity: DisconnectTip: %+v", err)
	}
	if len(tc.chain.Licenses().Licenses()) != 0 {
		t.Fatalf("TestAlertLicenseAppliesAtMaturity: disconnecting the maturation block must drop the license")
	}
}

func TestMissingInputs(t *testing.T) {
	testutils.ForAllNets(t, func(t *testing.T, params *netparams.Params) {
		tc := newTestContext(t, params)
		outpoints, prevOuts := tc.matureCoinbases(1, testutils.P2WPKHScript(t, params, testutils.Key(1)))

		unknown := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}
		orphan := tc.payTo(testutils.Key(1), testutils.Key(2), unknown, prevOuts[0])
		_, err := tc.miningManager.ValidateAndInsertTransaction(orphan)
		if !errors.Is(err, ruleerrors.ErrMissingInputs) {
			t.Fatalf("Expected %v, got %v", ruleerrors.ErrMissingInputs, err)
		}
		var ruleError mempool.RuleError
		if !errors.As(err, &ruleError) {
			t.Fatalf("Expected a mempool.RuleError, got %T", err)
		}

		tc.connect(tc.blockWith(tc.minerScript(), tc.payTo(testutils.Key(1), testutils.Key(2), outpoints[0], prevOuts[0])))
		spent := tc.payTo(testutils.Key(1), testutils.Key(3), outpoints[0], prevOuts[0])
		_, err = tc.miningManager.ValidateAndInsertTransaction(spent)
		if !errors.Is(err, ruleerrors.ErrMissingInputs) {
			t.Fatalf("Expected %v for a spent output, got %v", ruleerrors.ErrMissingInputs, err)
		}
	})
}

func TestVaultSpendRejections(t *testing.T) {
	testutils.ForAllNets(t, func(t *testing.T, params *netparams.Params) {
		tc := newTestContext(t, params)
		keys := testutils.NewVaultKeys(10)
		template := keys.AlertTemplate()
		vaultScript := testutils.VaultPkScript(t, params, template, vaultscript.AddressTypeBech32)
		regularScript := testutils.P2WPKHScript(t, params, testutils.Key(1))

		vaultBlock := tc.mine(1, vaultScript)[0]
		regularBlock := tc.mine(1, regularScript)[0]
		tc.mine(int(params.CoinbaseMaturity), tc.minerScript())
		vaultOutpoint, vaultPrevOut := testutils.CoinbaseOutpoint(vaultBlock), vaultBlock.Transactions[0].TxOut[0]
		regularOutpoint, regularPrevOut := testutils.CoinbaseOutpoint(regularBlock), regularBlock.Transactions[0].TxOut[0]

		prevOuts := []*wire.TxOut{vaultPrevOut, regularPrevOut}
		mixed := testutils.PayAll([]wire.OutPoint{vaultOutpoint, regularOutpoint}, prevOuts, regularScript)
		sigHashes, _ := wallet.NewSigHashes(mixed, prevOuts)
		_, err := wallet.SignVaultInput(mixed, sigHashes, 0, vaultPrevOut, template, vaultscript.OwnerRole{}, keys.Owner)
		if err != nil {
			t.Fatalf("SignVaultInput: %v", err)
		}
		err = wallet.SignP2WPKHInput(mixed, sigHashes, 1, regularPrevOut, testutils.Key(1))
		if err != nil {
			t.Fatalf("SignP2WPKHInput: %v", err)
		}
		_, err = tc.miningManager.ValidateAndInsertTransaction(mixed)
		if !errors.Is(err, ruleerrors.ErrNonAlertInputs) {
			t.Fatalf("Expected %v, got %v", ruleerrors.ErrNonAlertInputs, err)
		}

		alert := testutils.SignVault(t, testutils.PayAll([]wire.OutPoint{vaultOutpoint}, []*wire.TxOut{vaultPrevOut},
			regularScript), []*wire.TxOut{vaultPrevOut}, template, vaultscript.OwnerRole{}, keys.Owner)
		mempoolTransaction, err := tc.miningManager.ValidateAndInsertTransaction(alert)
		if err != nil {
			t.Fatalf("ValidateAndInsertTransaction: %v", err)
		}
		if mempoolTransaction.Kind != model.KindAlert {
			t.Fatalf("Expected kind %s, got %s", model.KindAlert, mempoolTransaction.Kind)
		}

		// The alert fee is not part of the reward of the block confirming it.
		block := tc.mine(1, tc.minerScript())[0]
		subsidy := netparams.CalcBlockSubsidy(tc.chain.TipHeight())
		if len(block.Transactions) != 2 || block.Transactions[0].TxOut[0].Value != subsidy {
			t.Fatalf("Expected the alert and a coinbase of %d, got %d transactions and %d",
				subsidy, len(block.Transactions), block.Transactions[0].TxOut[0].Value)
		}

		secondAlert := testutils.SignVault(t, testutils.PayAll([]wire.OutPoint{vaultOutpoint},
			[]*wire.TxOut{vaultPrevOut}, tc.minerScript()), []*wire.TxOut{vaultPrevOut}, template,
			vaultscript.OwnerRole{}, keys.Owner)
		_, err = tc.miningManager.ValidateAndInsertTransaction(secondAlert)
		if !errors.Is(err, ruleerrors.ErrInputsSpent) {
			t.Fatalf("Expected %v, got %v", ruleerrors.ErrInputsSpent, err)
		}
	})
}

func transactionIDs(transactions []*wire.MsgTx) []chainhash.Hash {
	ids := make([]chainhash.Hash, len(transactions))
	for i, transaction := range transactions {
		ids[i] = transaction.TxHash()
	}
	return ids
}

func contains(transaction *wire.MsgTx, transactions []*wire.MsgTx) bool {
	transactionID := transaction.TxHash()
	for _, candidateTransaction := range transactions {
		if candidateTransaction.TxHash() == transactionID {
			return true
		}
	}
	return false
}
