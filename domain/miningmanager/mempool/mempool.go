package mempool

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/domain/chain"
	"github.com/sashabeton/bitcoinvault/domain/miningmanager/model"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/vault/classifier"
)

type mempool struct {
	config *Config
	policy *policy
	chain  *chain.Chain

	transactionsPool *transactionsPool
	mempoolUTXOSet   *mempoolUTXOSet
}

// New constructs a new mempool on top of the given chain. The mempool
// records its alerts and instant transactions in the chain's vault ledger.
func New(config *Config, chain *chain.Chain) model.Mempool {
	mp := &mempool{
		config: config,
		policy: &policy{
			MaxTxVersion:  config.MaximumTransactionVersion,
			MinRelayTxFee: config.MinimumRelayTransactionFee,
		},
		chain: chain,
	}
	mp.mempoolUTXOSet = newMempoolUTXOSet(mp)
	mp.transactionsPool = newTransactionsPool(mp)
	return mp
}

// ValidateAndInsertTransaction validates the given transaction against the
// chain tip and the transactions already in the pool, and inserts it.
func (mp *mempool) ValidateAndInsertTransaction(transaction *wire.MsgTx) (*model.MempoolTransaction, error) {
	poolTransaction, err := mp.validateAndInsertTransaction(transaction.Copy())
	if err != nil {
		return nil, err
	}
	return poolTransaction.toModel(), nil
}

// RemoveTransaction evicts the transaction with the given ID, if it is in
// the pool. With removeRedeemers, the transactions depending on it are
// evicted as well.
func (mp *mempool) RemoveTransaction(transactionID chainhash.Hash, removeRedeemers bool) {
	mp.removeTransaction(transactionID, removeRedeemers)
}

// HandleNewBlock drops the transactions the connected block mined or
// invalidated.
func (mp *mempool) HandleNewBlock(block *wire.MsgBlock) {
	log.Debugf("Handling new block %s", block.BlockHash())
	mp.revalidateTransactions(nil)
}

// HandleDisconnectedBlocks re-admits the transactions of blocks that left
// the active chain. blocks are ordered from the old tip down.
func (mp *mempool) HandleDisconnectedBlocks(blocks []*wire.MsgBlock) {
	var candidates []*wire.MsgTx
	for i := len(blocks) - 1; i >= 0; i-- {
		candidates = append(candidates, blocks[i].Transactions[1:]...)
	}
	mp.revalidateTransactions(candidates)
}

// Transactions returns the pool transactions in arrival order.
func (mp *mempool) Transactions() []*wire.MsgTx {
	transactions := make([]*wire.MsgTx, 0, mp.transactionsPool.transactionCount())
	for _, transaction := range mp.transactionsPool.orderedTransactions() {
		transactions = append(transactions, transaction.transaction.Copy())
	}
	return transactions
}

// BlockCandidates returns the pool transactions in an order in which they
// can be mined into a single block.
func (mp *mempool) BlockCandidates() []*model.MempoolTransaction {
	candidates := make([]*model.MempoolTransaction, 0, mp.transactionsPool.transactionCount())
	for _, transaction := range mp.transactionsPool.orderedTransactions() {
		candidates = append(candidates, transaction.toModel())
	}
	return candidates
}

func (mp *mempool) GetTransaction(transactionID chainhash.Hash) (*model.MempoolTransaction, bool) {
	transaction, ok := mp.transactionsPool.allTransactions[transactionID]
	if !ok {
		return nil, false
	}
	return transaction.toModel(), true
}

// IsOutpointSpent returns whether a pool transaction other than a recovery
// spends outpoint.
func (mp *mempool) IsOutpointSpent(outpoint wire.OutPoint) bool {
	_, ok := mp.transactionsPool.spentOutpoints[outpoint]
	return ok
}

// UnspentOutputs returns the outputs created by pool transactions that no
// pool transaction spends.
func (mp *mempool) UnspentOutputs() map[wire.OutPoint]*wire.TxOut {
	return mp.mempoolUTXOSet.unspentOutputs()
}

// Classify classifies transaction as it would be classified on admission.
func (mp *mempool) Classify(transaction *wire.MsgTx) (*classifier.Result, error) {
	return classifier.New(&poolOutputs{mempool: mp}, mp.chain.Ledger().MempoolView()).Classify(transaction)
}

// PrevOuts resolves the outputs transaction spends from the pool, the chain
// UTXO set and the outputs kept for recorded vault spends.
func (mp *mempool) PrevOuts(transaction *wire.MsgTx) ([]*wire.TxOut, error) {
	outputs := &poolOutputs{mempool: mp}
	prevOuts := make([]*wire.TxOut, len(transaction.TxIn))
	for i, txIn := range transaction.TxIn {
		prevOut, ok := outputs.prevOut(txIn.PreviousOutPoint)
		if !ok {
			return nil, ruleerrors.Errorf(ruleerrors.ErrMissingInputs,
				"output %s referenced from transaction %s is unknown", txIn.PreviousOutPoint, transaction.TxHash())
		}
		prevOuts[i] = prevOut
	}
	return prevOuts, nil
}

func (mp *mempool) Count() int {
	return mp.transactionsPool.transactionCount()
}
