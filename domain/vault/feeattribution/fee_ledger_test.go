package feeattribution

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

var minerScript = []byte{0x00, 0x14, 0xaa}

func newTestLedger(t *testing.T) (*Ledger, database.Database) {
	db, err := ldb.NewInMemoryLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	l, err := New(db)
	require.NoError(t, err)
	return l, db
}

func blockHash(height uint32) *chainhash.Hash {
	return &chainhash.Hash{0xfe, byte(height), byte(height >> 8)}
}

func connect(t *testing.T, l *Ledger, db database.Database, height uint32, f func(*staging.Area)) {
	stagingArea := staging.NewArea()
	l.StartBlock(stagingArea, blockHash(height), height)
	f(stagingArea)
	require.NoError(t, staging.CommitAllChanges(db, stagingArea))
}

func TestFeeLifecycle(t *testing.T) {
	l, db := newTestLedger(t)
	paid := chainhash.Hash{1}
	forfeited := chainhash.Hash{2}

	connect(t, l, db, 10, func(sa *staging.Area) {
		require.NoError(t, l.Attribute(sa, paid, 1500, minerScript))
		require.NoError(t, l.Attribute(sa, forfeited, 700, minerScript))
		err := l.Attribute(sa, paid, 1500, minerScript)
		require.True(t, errors.Is(err, ruleerrors.ErrLedgerCorruption))
	})
	connect(t, l, db, 11, func(sa *staging.Area) {
		require.NoError(t, l.Forfeit(sa, forfeited))
	})
	connect(t, l, db, 154, func(sa *staging.Area) {
		record, err := l.Pay(sa, paid)
		require.NoError(t, err)
		require.Equal(t, int64(1500), record.Fee)
		require.Equal(t, uint32(10), record.ConfirmHeight)

		_, err = l.Pay(sa, forfeited)
		require.True(t, errors.Is(err, ruleerrors.ErrLedgerCorruption))
	})

	record, ok := l.Record(paid)
	require.True(t, ok)
	require.Equal(t, StatusPaid, record.Status)
	require.Equal(t, uint32(154), record.PaidHeight)
	record, ok = l.Record(forfeited)
	require.True(t, ok)
	require.Equal(t, StatusForfeited, record.Status)

	reloaded, err := New(db)
	require.NoError(t, err)
	reloadedRecord, ok := reloaded.Record(paid)
	require.True(t, ok)
	require.Equal(t, minerScript, reloadedRecord.MinerScript)
	require.Equal(t, StatusPaid, reloadedRecord.Status)

	for _, height := range []uint32{154, 11, 10} {
		stagingArea := staging.NewArea()
		require.NoError(t, l.DisconnectBlock(stagingArea, blockHash(height)))
		require.NoError(t, staging.CommitAllChanges(db, stagingArea))
		if height == 154 {
			record, _ := l.Record(paid)
			if record.Status != StatusPending {
				t.Fatalf("TestFeeLifecycle: expected pending after disconnect, got %s", record.Status)
			}
		}
	}
	_, ok = l.Record(paid)
	require.False(t, ok)
	_, ok = l.Record(forfeited)
	require.False(t, ok)
}

func TestDisconnectUnknownBlock(t *testing.T) {
	l, _ := newTestLedger(t)
	err := l.DisconnectBlock(staging.NewArea(), blockHash(99))
	require.True(t, errors.Is(err, ruleerrors.ErrLedgerCorruption))
}

func TestCheckCoinbasePayouts(t *testing.T) {
	records := []*Record{
		{AlertTxID: chainhash.Hash{1}, Fee: 100, MinerScript: minerScript},
		{AlertTxID: chainhash.Hash{2}, Fee: 0, MinerScript: minerScript},
		{AlertTxID: chainhash.Hash{3}, Fee: 300, MinerScript: []byte{0x51}},
	}
	payouts := Payouts(records)
	require.Len(t, payouts, 2)

	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxOut(wire.NewTxOut(5000, []byte{0x52}))
	coinbase.AddTxOut(wire.NewTxOut(100, minerScript))
	coinbase.AddTxOut(wire.NewTxOut(300, []byte{0x51}))
	require.NoError(t, CheckCoinbasePayouts(coinbase, payouts))

	tests := []struct {
		name   string
		mutate func(tx *wire.MsgTx)
	}{
		{"missing payout", func(tx *wire.MsgTx) { tx.TxOut = tx.TxOut[:2] }},
		{"redirected payout", func(tx *wire.MsgTx) { tx.TxOut[1].PkScript = []byte{0x52} }},
		{"short payout", func(tx *wire.MsgTx) { tx.TxOut[2].Value = 299 }},
		{"reordered payouts", func(tx *wire.MsgTx) { tx.TxOut[1], tx.TxOut[2] = tx.TxOut[2], tx.TxOut[1] }},
		{"extra output", func(tx *wire.MsgTx) { tx.AddTxOut(wire.NewTxOut(1, []byte{0x51})) }},
	}
	for _, test := range tests {
		mutated := coinbase.Copy()
		test.mutate(mutated)
		err := CheckCoinbasePayouts(mutated, payouts)
		if !errors.Is(err, ruleerrors.ErrBadCoinbaseFeePayout) {
			t.Fatalf("TestCheckCoinbasePayouts: %s: expected bad payout, got %v", test.name, err)
		}
	}
}
