package domain

import (
	"sort"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/chain"
	"github.com/sashabeton/bitcoinvault/domain/miningmanager"
	mempoolpkg "github.com/sashabeton/bitcoinvault/domain/miningmanager/mempool"
	miningmanagermodel "github.com/sashabeton/bitcoinvault/domain/miningmanager/model"
	"github.com/sashabeton/bitcoinvault/domain/netparams"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/utxo"
	"github.com/sashabeton/bitcoinvault/domain/vault/classifier"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/domain/wallet"
	infrastructuredatabase "github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

// Domain provides a reference to the domain's external aps
type Domain interface {
	wallet.ChainSource

	ProcessBlock(block *wire.MsgBlock) (*chain.Changes, error)
	GenerateToAddress(numBlocks int, payTo btcutil.Address) ([]chainhash.Hash, error)
	GenerateToScript(numBlocks int, payToScript []byte) ([]chainhash.Hash, error)
	DisconnectTip() (*wire.MsgBlock, error)

	AdmitToMempool(tx *wire.MsgTx) (*miningmanagermodel.MempoolTransaction, error)
	RemoveTransaction(txID chainhash.Hash)
	MempoolTransactions() []*wire.MsgTx
	Classify(tx *wire.MsgTx) (*classifier.Result, error)

	AlertState(outpoint wire.OutPoint) model.LedgerState
	TipHeight() uint32
	TipHash() chainhash.Hash
	BlockByHeight(height uint32) (*wire.MsgBlock, error)
	BlockView(height uint32) (*chain.BlockView, error)
	UTXOEntry(outpoint wire.OutPoint) (*wire.TxOut, bool)
}

type domain struct {
	mtx           sync.RWMutex
	chain         *chain.Chain
	miningManager miningmanager.MiningManager
	extraNonce    uint64
}

// New instantiates a new instance of a Domain object
func New(db infrastructuredatabase.Database, params *netparams.Params, chainConfig *chain.Config,
	mempoolConfig *mempoolpkg.Config) (Domain, error) {

	chainInstance, err := chain.New(db, params, chainConfig)
	if err != nil {
		return nil, err
	}

	miningManagerFactory := miningmanager.NewFactory()
	miningManager := miningManagerFactory.NewMiningManager(chainInstance, mempoolConfig)

	log.Infof("Loaded %s chain at height %d, tip %s", params.Name, chainInstance.TipHeight(),
		chainInstance.TipHash())
	return &domain{
		chain:         chainInstance,
		miningManager: miningManager,
	}, nil
}

func (d *domain) Params() *netparams.Params {
	return d.chain.Params()
}

// ProcessBlock connects block and brings the mempool in line with the new
// tip.
func (d *domain) ProcessBlock(block *wire.MsgBlock) (*chain.Changes, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.processBlock(block)
}

func (d *domain) processBlock(block *wire.MsgBlock) (*chain.Changes, error) {
	changes, err := d.chain.ProcessBlock(block)
	if err != nil {
		return nil, err
	}
	if len(changes.Disconnected) > 0 {
		d.miningManager.HandleDisconnectedBlocks(changes.Disconnected)
		return changes, nil
	}
	for _, connected := range changes.Connected {
		d.miningManager.HandleNewBlock(connected)
	}
	return changes, nil
}

// GenerateToAddress mines numBlocks blocks paying to payTo on top of the
// tip and returns their hashes.
func (d *domain) GenerateToAddress(numBlocks int, payTo btcutil.Address) ([]chainhash.Hash, error) {
	payToScript, err := txscript.PayToAddrScript(payTo)
	if err != nil {
		return nil, errors.Wrapf(err, "address %s", payTo)
	}
	return d.GenerateToScript(numBlocks, payToScript)
}

// GenerateToScript mines numBlocks blocks paying to payToScript on top of
// the tip.
func (d *domain) GenerateToScript(numBlocks int, payToScript []byte) ([]chainhash.Hash, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	hashes := make([]chainhash.Hash, 0, numBlocks)
	for i := 0; i < numBlocks; i++ {
		d.extraNonce++
		block, err := d.miningManager.GetBlockTemplate(payToScript, d.extraNonce)
		if err != nil {
			return hashes, err
		}
		_, err = d.processBlock(block)
		if err != nil {
			return hashes, errors.Wrapf(err, "connecting generated block %d of %d", i+1, numBlocks)
		}
		hashes = append(hashes, block.BlockHash())
	}
	return hashes, nil
}

// DisconnectTip pops the tip and returns its transactions to the mempool.
func (d *domain) DisconnectTip() (*wire.MsgBlock, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	block, err := d.chain.DisconnectTip()
	if err != nil {
		return nil, err
	}
	d.miningManager.HandleDisconnectedBlocks([]*wire.MsgBlock{block})
	return block, nil
}

// AdmitToMempool validates tx against the tip and the mempool and adds it.
func (d *domain) AdmitToMempool(tx *wire.MsgTx) (*miningmanagermodel.MempoolTransaction, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.miningManager.ValidateAndInsertTransaction(tx)
}

func (d *domain) SubmitTransaction(tx *wire.MsgTx) error {
	_, err := d.AdmitToMempool(tx)
	return err
}

func (d *domain) RemoveTransaction(txID chainhash.Hash) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.miningManager.RemoveTransaction(txID)
}

func (d *domain) MempoolTransactions() []*wire.MsgTx {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	return d.miningManager.AllTransactions()
}

// Classify returns the kind tx would be admitted as.
func (d *domain) Classify(tx *wire.MsgTx) (*classifier.Result, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	return d.miningManager.Classify(tx)
}

func (d *domain) PrevOuts(tx *wire.MsgTx) ([]*wire.TxOut, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	return d.miningManager.PrevOuts(tx)
}

// AlertState reports the vault state of outpoint on the active chain and
// in the mempool.
func (d *domain) AlertState(outpoint wire.OutPoint) model.LedgerState {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	return d.chain.Ledger().AlertState(outpoint)
}

func (d *domain) TipHeight() uint32 {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	return d.chain.TipHeight()
}

func (d *domain) TipHash() chainhash.Hash {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	return d.chain.TipHash()
}

func (d *domain) BlockByHeight(height uint32) (*wire.MsgBlock, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	block, ok := d.chain.BlockByHeight(height)
	if !ok {
		return nil, errors.Errorf("no active block at height %d", height)
	}
	return block, nil
}

func (d *domain) BlockView(height uint32) (*chain.BlockView, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	return d.chain.BlockView(height)
}

// UTXOEntry returns the committed unspent output at outpoint.
func (d *domain) UTXOEntry(outpoint wire.OutPoint) (*wire.TxOut, bool) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	entry, ok := d.chain.UTXOSet().Get(outpoint)
	if !ok {
		return nil, false
	}
	return entry.TxOut(), true
}

// RecoverableAlert returns the alert with the given ID if a recovery mined
// in the next block can still cancel it.
func (d *domain) RecoverableAlert(alertTxID chainhash.Hash) (*model.AlertRecord, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	alert, err := d.chain.Ledger().MempoolView().Alert(alertTxID).UnwrapOrErr(
		ruleerrors.Errorf(ruleerrors.ErrRecoveryInputsNotSpent, "alert %s is unknown", alertTxID))
	if err != nil {
		return nil, err
	}
	switch alert.State {
	case model.StatePendingAlert:
		return alert, nil
	case model.StateConfirmedAlert:
		if d.chain.Scheduler().IsRecoverable(alert.ConfirmHeight, d.chain.TipHeight()+1) {
			return alert, nil
		}
		return nil, ruleerrors.Errorf(ruleerrors.ErrAlreadyMatured,
			"alert %s confirmed at height %d can no longer be recovered", alertTxID, alert.ConfirmHeight)
	case model.StateMatured:
		return nil, ruleerrors.Errorf(ruleerrors.ErrAlreadyMatured,
			"alert %s matured at height %d", alertTxID, alert.ResolveHeight)
	}
	return nil, ruleerrors.Errorf(ruleerrors.ErrInputsSpent,
		"alert %s was recovered at height %d", alertTxID, alert.ResolveHeight)
}

// WalletSnapshot collects the outputs on scripts owns accepts: the
// committed UTXO set less what the mempool spends, the outputs of mempool
// transactions, and the outputs of confirmed alerts that have not matured.
func (d *domain) WalletSnapshot(owns func(pkScript []byte) bool) *wallet.Snapshot {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	tipHeight := d.chain.TipHeight()
	snapshot := &wallet.Snapshot{TipHeight: tipHeight}
	d.chain.UTXOSet().ForEach(func(outpoint wire.OutPoint, entry *utxo.Entry) bool {
		if !owns(entry.ScriptPubKey()) || d.miningManager.IsOutpointSpent(outpoint) {
			return true
		}
		snapshot.Outputs = append(snapshot.Outputs, &wallet.Output{
			Outpoint:   outpoint,
			TxOut:      entry.TxOut(),
			Confirmed:  true,
			Height:     entry.BlockHeight(),
			IsCoinbase: entry.IsCoinbase(),
			Spendable:  true,
		})
		return true
	})

	for _, tx := range d.miningManager.AllTransactions() {
		txID := tx.TxHash()
		mempoolTransaction, ok := d.miningManager.GetTransaction(txID)
		if !ok {
			continue
		}
		fromWallet := false
		for _, prevOut := range mempoolTransaction.PrevOuts {
			fromWallet = fromWallet || owns(prevOut.PkScript)
		}
		for i, txOut := range tx.TxOut {
			outpoint := wire.OutPoint{Hash: txID, Index: uint32(i)}
			if !owns(txOut.PkScript) || d.miningManager.IsOutpointSpent(outpoint) {
				continue
			}
			snapshot.Outputs = append(snapshot.Outputs, &wallet.Output{
				Outpoint:   outpoint,
				TxOut:      txOut,
				Spendable:  mempoolTransaction.Kind != model.KindAlert,
				FromWallet: fromWallet,
			})
		}
	}

	maturity := d.chain.Scheduler().AlertMaturity()
	for height := tipHeight; height > 0 && tipHeight-height < maturity; height-- {
		for _, alert := range d.chain.Ledger().AlertsConfirmedAt(height) {
			if alert.State != model.StateConfirmedAlert {
				continue
			}
			fromWallet := false
			for _, outpoint := range alert.Inputs() {
				if entry, ok := d.chain.Ledger().Entry(outpoint); ok {
					fromWallet = fromWallet || owns(entry.PrevOut.PkScript)
				}
			}
			for i, txOut := range alert.Tx.TxOut {
				if !owns(txOut.PkScript) {
					continue
				}
				snapshot.Outputs = append(snapshot.Outputs, &wallet.Output{
					Outpoint:   wire.OutPoint{Hash: alert.TxID, Index: uint32(i)},
					TxOut:      txOut,
					FromWallet: fromWallet,
				})
			}
		}
	}

	sortOutputs(snapshot.Outputs)
	return snapshot
}

// sortOutputs orders confirmed outputs by height ahead of unconfirmed ones,
// breaking ties by outpoint.
func sortOutputs(outputs []*wallet.Output) {
	sort.Slice(outputs, func(i, j int) bool {
		a, b := outputs[i], outputs[j]
		if a.Confirmed != b.Confirmed {
			return a.Confirmed
		}
		if a.Height != b.Height {
			return a.Height < b.Height
		}
		if a.Outpoint.Hash != b.Outpoint.Hash {
			return string(a.Outpoint.Hash[:]) < string(b.Outpoint.Hash[:])
		}
		return a.Outpoint.Index < b.Outpoint.Index
	})
}
