// Package feeattribution tracks the fee of every confirmed alert from the
// block that confirmed it to the coinbase that pays it out.
//
// An alert's fee is owed to the miner of its confirming block but is only
// paid once the alert matures, as an extra output of the maturing block's
// coinbase. A recovered alert forfeits its fee.
package feeattribution

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

var (
	feesBucket = database.MakeBucket([]byte("fees"))
	undoBucket = database.MakeBucket([]byte("fees-undo"))
)

// Ledger holds the fee records of the active chain.
type Ledger struct {
	db      database.Database
	records map[chainhash.Hash]*Record
}

// New loads the fee records stored in db.
func New(db database.Database) (*Ledger, error) {
	l := &Ledger{
		db:      db,
		records: make(map[chainhash.Hash]*Record),
	}
	cursor, err := db.Cursor(feesBucket)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	for ok := cursor.First(); ok; ok = cursor.Next() {
		value, err := cursor.Value()
		if err != nil {
			return nil, err
		}
		record, err := deserializeRecord(value)
		if err != nil {
			return nil, err
		}
		l.records[record.AlertTxID] = record
	}
	return l, nil
}

// Record returns a copy of the fee record of alertTxID.
func (l *Ledger) Record(alertTxID chainhash.Hash) (*Record, bool) {
	record, ok := l.records[alertTxID]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// StartBlock prepares stagingArea to record the fee changes of the block
// with the given hash at the given height.
func (l *Ledger) StartBlock(stagingArea *staging.Area, blockHash *chainhash.Hash, height uint32) {
	shard := l.stagingShard(stagingArea)
	shard.blockHash = blockHash
	shard.height = height
	shard.undo = newBlockUndo()
}

func (l *Ledger) blockShard(stagingArea *staging.Area) (*feeStagingShard, error) {
	shard := l.stagingShard(stagingArea)
	if shard.blockHash == nil || shard.disconnecting {
		return nil, errors.New("fee change staged outside of a connecting block")
	}
	return shard, nil
}

// Attribute records that the alert confirmed in the current block owes fee
// to minerScript.
func (l *Ledger) Attribute(stagingArea *staging.Area, alertTxID chainhash.Hash, fee int64, minerScript []byte) error {
	shard, err := l.blockShard(stagingArea)
	if err != nil {
		return err
	}
	if _, exists := shard.record(alertTxID); exists {
		return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption, "fee of alert %s is already attributed", alertTxID)
	}
	shard.stage(alertTxID, &Record{
		AlertTxID:     alertTxID,
		Fee:           fee,
		ConfirmHeight: shard.height,
		MinerScript:   append([]byte(nil), minerScript...),
		Status:        StatusPending,
	})
	return nil
}

// Forfeit records that the alert was recovered in the current block.
func (l *Ledger) Forfeit(stagingArea *staging.Area, alertTxID chainhash.Hash) error {
	_, err := l.resolve(stagingArea, alertTxID, StatusForfeited)
	if err != nil {
		return err
	}
	log.Debugf("Fee of alert %s forfeited", alertTxID)
	return nil
}

// Pay records that the alert matured in the current block and returns its
// fee record. The caller expects the record's payout in the block's coinbase
// when the fee is not zero.
func (l *Ledger) Pay(stagingArea *staging.Area, alertTxID chainhash.Hash) (*Record, error) {
	record, err := l.resolve(stagingArea, alertTxID, StatusPaid)
	if err != nil {
		return nil, err
	}
	log.Debugf("Fee %d of alert %s paid at height %d", record.Fee, alertTxID, record.PaidHeight)
	return record.Clone(), nil
}

func (l *Ledger) resolve(stagingArea *staging.Area, alertTxID chainhash.Hash, status Status) (*Record, error) {
	shard, err := l.blockShard(stagingArea)
	if err != nil {
		return nil, err
	}
	record, ok := shard.record(alertTxID)
	if !ok {
		return nil, ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption, "no fee record for alert %s", alertTxID)
	}
	if record.Status != StatusPending {
		return nil, ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption,
			"fee of alert %s is already %s", alertTxID, record.Status)
	}
	resolved := record.Clone()
	resolved.Status = status
	resolved.PaidHeight = shard.height
	shard.stage(alertTxID, resolved)
	return resolved, nil
}

// DisconnectBlock stages the inverse of the fee changes of the block with
// the given hash.
func (l *Ledger) DisconnectBlock(stagingArea *staging.Area, blockHash *chainhash.Hash) error {
	undoBytes, err := l.db.Get(undoBucket.Key(blockHash[:]))
	if err != nil {
		if database.IsNotFoundError(err) {
			return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption, "no fee undo data for block %s", blockHash)
		}
		return err
	}
	undo, err := deserializeBlockUndo(undoBytes)
	if err != nil {
		return err
	}
	shard := l.stagingShard(stagingArea)
	shard.blockHash = blockHash
	shard.disconnecting = true
	for _, txID := range undo.order {
		if _, ok := shard.record(txID); !ok {
			return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption,
				"fee record %s touched by block %s is missing", txID, blockHash)
		}
		shard.records[txID] = undo.prior[txID]
	}
	return nil
}

// Payouts returns the coinbase outputs owed for records, skipping zero
// fees. records must be in confirmation order.
func Payouts(records []*Record) []*wire.TxOut {
	var payouts []*wire.TxOut
	for _, record := range records {
		if record.Fee == 0 {
			continue
		}
		payouts = append(payouts, record.Payout())
	}
	return payouts
}

// CheckCoinbasePayouts verifies that coinbase carries exactly payouts right
// after its reward output.
func CheckCoinbasePayouts(coinbase *wire.MsgTx, payouts []*wire.TxOut) error {
	if len(coinbase.TxOut) != len(payouts)+1 {
		return ruleerrors.Errorf(ruleerrors.ErrBadCoinbaseFeePayout,
			"coinbase has %d fee outputs, expected %d", len(coinbase.TxOut)-1, len(payouts))
	}
	for i, expected := range payouts {
		actual := coinbase.TxOut[i+1]
		if actual.Value != expected.Value || string(actual.PkScript) != string(expected.PkScript) {
			return ruleerrors.Errorf(ruleerrors.ErrBadCoinbaseFeePayout,
				"coinbase output %d pays %d to %x, expected %d to %x",
				i+1, actual.Value, actual.PkScript, expected.Value, expected.PkScript)
		}
	}
	return nil
}
