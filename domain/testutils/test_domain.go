// Package testutils builds in-memory nodes and signed vault transactions
// for package tests.
package testutils

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/domain"
	"github.com/sashabeton/bitcoinvault/domain/chain"
	"github.com/sashabeton/bitcoinvault/domain/miningmanager/mempool"
	"github.com/sashabeton/bitcoinvault/domain/netparams"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database/ldb"
)

// NewTestDomain returns a node on an in-memory database. The database is
// closed when the test ends.
func NewTestDomain(t *testing.T, params *netparams.Params) domain.Domain {
	db, err := ldb.NewInMemoryLevelDB()
	if err != nil {
		t.Fatalf("NewInMemoryLevelDB: %+v", err)
	}
	t.Cleanup(func() { db.Close() })

	domainInstance, err := domain.New(db, params, chain.DefaultConfig(), mempool.DefaultConfig())
	if err != nil {
		t.Fatalf("domain.New: %+v", err)
	}
	return domainInstance
}

// Generate mines numBlocks blocks paying to payToScript and returns them.
func Generate(t *testing.T, d domain.Domain, numBlocks int, payToScript []byte) []*wire.MsgBlock {
	startHeight := d.TipHeight()
	_, err := d.GenerateToScript(numBlocks, payToScript)
	if err != nil {
		t.Fatalf("GenerateToScript: %+v", err)
	}
	blocks := make([]*wire.MsgBlock, numBlocks)
	for i := range blocks {
		blocks[i], err = d.BlockByHeight(startHeight + uint32(i) + 1)
		if err != nil {
			t.Fatalf("BlockByHeight: %+v", err)
		}
	}
	return blocks
}

// CoinbaseOutpoint returns the outpoint of the miner output of block.
func CoinbaseOutpoint(block *wire.MsgBlock) wire.OutPoint {
	return wire.OutPoint{Hash: block.Transactions[0].TxHash(), Index: 0}
}

// MatureCoinbases mines enough blocks to payToScript for numCoinbases of
// their coinbase outputs to be spendable in the next block, and returns
// those outputs in height order.
func MatureCoinbases(t *testing.T, d domain.Domain, numCoinbases int, payToScript []byte) ([]wire.OutPoint,
	[]*wire.TxOut) {

	maturity := int(d.Params().CoinbaseMaturity)
	blocks := Generate(t, d, numCoinbases+maturity, payToScript)
	outpoints := make([]wire.OutPoint, numCoinbases)
	prevOuts := make([]*wire.TxOut, numCoinbases)
	for i := 0; i < numCoinbases; i++ {
		outpoints[i] = CoinbaseOutpoint(blocks[i])
		prevOuts[i] = blocks[i].Transactions[0].TxOut[0]
	}
	return outpoints, prevOuts
}
