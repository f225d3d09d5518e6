package miningmanager

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	miningmanagermodel "github.com/sashabeton/bitcoinvault/domain/miningmanager/model"
	"github.com/sashabeton/bitcoinvault/domain/vault/classifier"
)

// MiningManager creates block templates for mining as well as maintaining
// known transactions that have no yet been added to any block
type MiningManager interface {
	GetBlockTemplate(payToScript []byte, extraNonce uint64) (*wire.MsgBlock, error)
	HandleNewBlock(block *wire.MsgBlock)
	HandleDisconnectedBlocks(blocks []*wire.MsgBlock)
	ValidateAndInsertTransaction(transaction *wire.MsgTx) (*miningmanagermodel.MempoolTransaction, error)
	RemoveTransaction(transactionID chainhash.Hash)
	GetTransaction(transactionID chainhash.Hash) (*miningmanagermodel.MempoolTransaction, bool)
	AllTransactions() []*wire.MsgTx
	IsOutpointSpent(outpoint wire.OutPoint) bool
	UnspentOutputs() map[wire.OutPoint]*wire.TxOut
	Classify(transaction *wire.MsgTx) (*classifier.Result, error)
	PrevOuts(transaction *wire.MsgTx) ([]*wire.TxOut, error)
}

type miningManager struct {
	mempool              miningmanagermodel.Mempool
	blockTemplateBuilder miningmanagermodel.BlockTemplateBuilder
}

// GetBlockTemplate creates a block template for a miner to consume
func (mm *miningManager) GetBlockTemplate(payToScript []byte, extraNonce uint64) (*wire.MsgBlock, error) {
	return mm.blockTemplateBuilder.BuildBlockTemplate(payToScript, extraNonce)
}

// HandleNewBlock handles a new block that was just added to the chain
func (mm *miningManager) HandleNewBlock(block *wire.MsgBlock) {
	mm.mempool.HandleNewBlock(block)
}

// HandleDisconnectedBlocks handles blocks that were just removed from the
// active chain, ordered from the old tip down
func (mm *miningManager) HandleDisconnectedBlocks(blocks []*wire.MsgBlock) {
	mm.mempool.HandleDisconnectedBlocks(blocks)
}

// ValidateAndInsertTransaction validates the given transaction, and
// adds it to the set of known transactions that have not yet been
// added to any block
func (mm *miningManager) ValidateAndInsertTransaction(transaction *wire.MsgTx) (
	*miningmanagermodel.MempoolTransaction, error) {

	return mm.mempool.ValidateAndInsertTransaction(transaction)
}

// RemoveTransaction evicts a transaction and everything depending on it
func (mm *miningManager) RemoveTransaction(transactionID chainhash.Hash) {
	mm.mempool.RemoveTransaction(transactionID, true)
}

func (mm *miningManager) GetTransaction(transactionID chainhash.Hash) (*miningmanagermodel.MempoolTransaction, bool) {
	return mm.mempool.GetTransaction(transactionID)
}

// AllTransactions returns the mempool transactions in arrival order
func (mm *miningManager) AllTransactions() []*wire.MsgTx {
	return mm.mempool.Transactions()
}

func (mm *miningManager) IsOutpointSpent(outpoint wire.OutPoint) bool {
	return mm.mempool.IsOutpointSpent(outpoint)
}

func (mm *miningManager) UnspentOutputs() map[wire.OutPoint]*wire.TxOut {
	return mm.mempool.UnspentOutputs()
}

// Classify returns the kind transaction has against the chain tip and the
// mempool
func (mm *miningManager) Classify(transaction *wire.MsgTx) (*classifier.Result, error) {
	return mm.mempool.Classify(transaction)
}

func (mm *miningManager) PrevOuts(transaction *wire.MsgTx) ([]*wire.TxOut, error) {
	return mm.mempool.PrevOuts(transaction)
}
