package testutils

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/domain"
	"github.com/sashabeton/bitcoinvault/domain/netparams"
)

var extraNonce uint64

// BuildBlock returns a block extending the tip of d that carries txs after
// a coinbase paying the subsidy to payToScript followed by payouts. Fees are
// left unclaimed.
func BuildBlock(t *testing.T, d domain.Domain, payToScript []byte, payouts []*wire.TxOut,
	txs ...*wire.MsgTx) *wire.MsgBlock {

	tip, err := d.BlockByHeight(d.TipHeight())
	if err != nil {
		t.Fatalf("BlockByHeight: %+v", err)
	}
	return BuildBlockOn(t, tip.BlockHash(), tip.Header.Timestamp, d.TipHeight()+1, payToScript, payouts, txs...)
}

// BuildBlockOn returns a block at height on top of parent, which has the
// given timestamp.
func BuildBlockOn(t *testing.T, parent chainhash.Hash, parentTimestamp time.Time, height uint32,
	payToScript []byte, payouts []*wire.TxOut, txs ...*wire.MsgTx) *wire.MsgBlock {

	coinbaseScript, err := txscript.NewScriptBuilder().AddInt64(int64(height)).
		AddInt64(int64(atomic.AddUint64(&extraNonce, 1))).Script()
	if err != nil {
		t.Fatalf("coinbase script: %+v", err)
	}
	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex),
		SignatureScript:  coinbaseScript,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	coinbase.AddTxOut(wire.NewTxOut(netparams.CalcBlockSubsidy(height), payToScript))
	for _, payout := range payouts {
		coinbase.AddTxOut(payout)
	}

	transactions := append([]*wire.MsgTx{coinbase}, txs...)
	utilTransactions := make([]*btcutil.Tx, len(transactions))
	for i, transaction := range transactions {
		utilTransactions[i] = btcutil.NewTx(transaction)
	}
	merkles := blockchain.BuildMerkleTreeStore(utilTransactions, false)
	return &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			PrevBlock:  parent,
			MerkleRoot: *merkles[len(merkles)-1],
			Timestamp:  parentTimestamp.Add(time.Second),
		},
		Transactions: transactions,
	}
}
