package mempool

import (
	"github.com/btcsuite/btcd/wire"
	vaultmodel "github.com/sashabeton/bitcoinvault/domain/vault/model"
)

type outpointToTxOut map[wire.OutPoint]*wire.TxOut

// mempoolUTXOSet holds the outputs created by pool transactions. Alert
// outputs are left out: they only become spendable once the alert matures.
type mempoolUTXOSet struct {
	mempool            *mempool
	poolUnspentOutputs outpointToTxOut
}

func newMempoolUTXOSet(mp *mempool) *mempoolUTXOSet {
	return &mempoolUTXOSet{
		mempool:            mp,
		poolUnspentOutputs: outpointToTxOut{},
	}
}

func (mpus *mempoolUTXOSet) addTransaction(transaction *mempoolTransaction) {
	if transaction.kind == vaultmodel.KindAlert {
		return
	}
	id := transaction.transactionID()
	for i, txOut := range transaction.transaction.TxOut {
		outpoint := wire.OutPoint{Hash: id, Index: uint32(i)}
		mpus.poolUnspentOutputs[outpoint] = txOut
	}
}

func (mpus *mempoolUTXOSet) removeTransaction(transaction *mempoolTransaction) {
	id := transaction.transactionID()
	for i := range transaction.transaction.TxOut {
		delete(mpus.poolUnspentOutputs, wire.OutPoint{Hash: id, Index: uint32(i)})
	}
}

func (mpus *mempoolUTXOSet) get(outpoint wire.OutPoint) (*wire.TxOut, bool) {
	txOut, ok := mpus.poolUnspentOutputs[outpoint]
	return txOut, ok
}

// unspentOutputs returns copies of the pool outputs no pool transaction
// spends.
func (mpus *mempoolUTXOSet) unspentOutputs() outpointToTxOut {
	outputs := make(outpointToTxOut, len(mpus.poolUnspentOutputs))
	for outpoint, txOut := range mpus.poolUnspentOutputs {
		if _, ok := mpus.mempool.transactionsPool.spentOutpoints[outpoint]; ok {
			continue
		}
		outputs[outpoint] = wire.NewTxOut(txOut.Value, append([]byte(nil), txOut.PkScript...))
	}
	return outputs
}
