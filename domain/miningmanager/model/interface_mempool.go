package model

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/domain/vault/classifier"
	vaultmodel "github.com/sashabeton/bitcoinvault/domain/vault/model"
)

// Mempool maintains a set of known transactions that
// are intended to be mined into new blocks
type Mempool interface {
	ValidateAndInsertTransaction(transaction *wire.MsgTx) (*MempoolTransaction, error)
	RemoveTransaction(transactionID chainhash.Hash, removeRedeemers bool)
	HandleNewBlock(block *wire.MsgBlock)
	HandleDisconnectedBlocks(blocks []*wire.MsgBlock)
	Transactions() []*wire.MsgTx
	BlockCandidates() []*MempoolTransaction
	GetTransaction(transactionID chainhash.Hash) (*MempoolTransaction, bool)
	IsOutpointSpent(outpoint wire.OutPoint) bool
	UnspentOutputs() map[wire.OutPoint]*wire.TxOut
	Classify(transaction *wire.MsgTx) (*classifier.Result, error)
	PrevOuts(transaction *wire.MsgTx) ([]*wire.TxOut, error)
	Count() int
}

// MempoolTransaction is a transaction accepted to the mempool together with
// the facts established while validating it.
type MempoolTransaction struct {
	Transaction *wire.MsgTx
	Kind        vaultmodel.TxKind

	// Fee is the difference between the inputs and the outputs of
	// Transaction. It is only part of the mining reward when Kind is not
	// KindAlert.
	Fee      int64
	PrevOuts []*wire.TxOut

	// Alerts holds the alerts a recovery cancels.
	Alerts []chainhash.Hash
}

// TransactionID returns the ID of this MempoolTransaction
func (mt *MempoolTransaction) TransactionID() chainhash.Hash {
	return mt.Transaction.TxHash()
}
