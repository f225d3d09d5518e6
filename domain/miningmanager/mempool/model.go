package mempool

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/sashabeton/bitcoinvault/domain/miningmanager/model"
	vaultmodel "github.com/sashabeton/bitcoinvault/domain/vault/model"
)

type idToTransaction map[chainhash.Hash]*mempoolTransaction

type mempoolTransaction struct {
	transaction *wire.MsgTx
	id          chainhash.Hash
	kind        vaultmodel.TxKind
	source      fn.Option[vaultmodel.SourceAddress]
	prevOuts    []*wire.TxOut
	fee         int64

	// alerts holds the alerts a recovery cancels.
	alerts []chainhash.Hash

	// parentsInPool holds the pool transactions whose outputs this
	// transaction spends, and for recoveries the pending alerts they
	// cancel.
	parentsInPool idToTransaction
}

func newMempoolTransaction(transaction *wire.MsgTx) *mempoolTransaction {
	return &mempoolTransaction{
		transaction:   transaction,
		id:            transaction.TxHash(),
		source:        fn.None[vaultmodel.SourceAddress](),
		parentsInPool: idToTransaction{},
	}
}

func (mt *mempoolTransaction) transactionID() chainhash.Hash {
	return mt.id
}

func (mt *mempoolTransaction) isPendingVaultSpend() bool {
	return mt.kind == vaultmodel.KindAlert || mt.kind == vaultmodel.KindInstant
}

// toModel returns a copy of mt that is safe to hand out of the mempool.
func (mt *mempoolTransaction) toModel() *model.MempoolTransaction {
	prevOuts := make([]*wire.TxOut, len(mt.prevOuts))
	for i, prevOut := range mt.prevOuts {
		prevOuts[i] = wire.NewTxOut(prevOut.Value, append([]byte(nil), prevOut.PkScript...))
	}
	return &model.MempoolTransaction{
		Transaction: mt.transaction.Copy(),
		Kind:        mt.kind,
		Fee:         mt.fee,
		PrevOuts:    prevOuts,
		Alerts:      append([]chainhash.Hash(nil), mt.alerts...),
	}
}
