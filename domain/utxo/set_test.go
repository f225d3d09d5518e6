package utxo

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database/ldb"
	"github.com/stretchr/testify/require"
)

func newTestSet(t *testing.T) (*Set, database.Database) {
	db, err := ldb.NewInMemoryLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	set, err := New(db)
	require.NoError(t, err)
	return set, db
}

func spendingTx(prev *wire.MsgTx, value int64) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: prev.TxHash(), Index: 0}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(value, []byte{0x51}))
	return tx
}

func dump(t *testing.T, db database.Database) map[string]string {
	result := make(map[string]string)
	for _, bucket := range []*database.Bucket{utxoBucket, diffBucket} {
		cursor, err := db.Cursor(bucket)
		require.NoError(t, err)
		for ok := cursor.First(); ok; ok = cursor.Next() {
			key, err := cursor.Key()
			require.NoError(t, err)
			value, err := cursor.Value()
			require.NoError(t, err)
			result[key.String()] = string(value)
		}
		cursor.Close()
	}
	return result
}

func TestConnectAndDisconnect(t *testing.T) {
	set, db := newTestSet(t)

	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: wire.MaxPrevOutIndex}, []byte{0x01}, nil))
	coinbase.AddTxOut(wire.NewTxOut(5000, []byte{0x51}))
	coinbase.AddTxOut(wire.NewTxOut(0, []byte{0x6a, 0x01, 0x00}))

	first := staging.NewArea()
	set.StartBlock(first, &chainhash.Hash{1})
	set.AddTxOuts(first, coinbase, 1, true)
	require.NoError(t, staging.CommitAllChanges(db, first))
	require.Equal(t, 1, set.Len())
	entry, ok := set.Get(wire.OutPoint{Hash: coinbase.TxHash()})
	require.True(t, ok)
	require.True(t, entry.IsCoinbase())
	require.Equal(t, uint32(1), entry.BlockHeight())
	before := dump(t, db)

	spend := spendingTx(coinbase, 4000)
	chained := spendingTx(spend, 3000)
	second := staging.NewArea()
	set.StartBlock(second, &chainhash.Hash{2})
	_, err := set.Spend(second, spend.TxIn[0].PreviousOutPoint)
	require.NoError(t, err)
	set.AddTxOuts(second, spend, 2, false)
	_, err = set.Spend(second, chained.TxIn[0].PreviousOutPoint)
	require.NoError(t, err)
	set.AddTxOuts(second, chained, 2, false)
	_, err = set.Spend(second, spend.TxIn[0].PreviousOutPoint)
	if !errors.Is(err, ruleerrors.ErrMissingInputs) {
		t.Fatalf("TestConnectAndDisconnect: expected missing inputs, got %v", err)
	}
	require.NoError(t, staging.CommitAllChanges(db, second))
	require.Equal(t, 1, set.Len())
	_, ok = set.Get(wire.OutPoint{Hash: chained.TxHash()})
	require.True(t, ok)

	reloaded, err := New(db)
	require.NoError(t, err)
	require.Equal(t, set.entries.String(), reloaded.entries.String())

	undo := staging.NewArea()
	require.NoError(t, set.DisconnectBlock(undo, &chainhash.Hash{2}))
	require.NoError(t, staging.CommitAllChanges(db, undo))
	require.Equal(t, before, dump(t, db))
	_, ok = set.Get(wire.OutPoint{Hash: coinbase.TxHash()})
	require.True(t, ok)
}
