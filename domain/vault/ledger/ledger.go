// Package ledger is the single source of truth for the lifecycle of vault
// outpoints spent by alert and instant transactions.
package ledger

import (
	"encoding/binary"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

var (
	entriesBucket  = database.MakeBucket([]byte("vault-entries"))
	alertsBucket   = database.MakeBucket([]byte("vault-alerts"))
	maturityBucket = database.MakeBucket([]byte("vault-maturity"))
	undoBucket     = database.MakeBucket([]byte("vault-undo"))
)

// Ledger keeps vault entries and alert records of the active chain in the
// database, cached in memory, plus a pending layer for the mempool. It is
// not safe for concurrent use; callers serialize access.
type Ledger struct {
	db        database.Database
	lifecycle *lifecycle

	entries     map[wire.OutPoint]*model.Entry
	alerts      map[chainhash.Hash]*model.AlertRecord
	confirmedAt map[uint32][]chainhash.Hash

	pendingEntries map[wire.OutPoint]*model.Entry
	pendingAlerts  map[chainhash.Hash]*model.AlertRecord
	pendingOrder   []chainhash.Hash
}

// New loads the ledger stored in db.
func New(db database.Database) (*Ledger, error) {
	l := &Ledger{
		db:             db,
		lifecycle:      newLifecycle(),
		entries:        make(map[wire.OutPoint]*model.Entry),
		alerts:         make(map[chainhash.Hash]*model.AlertRecord),
		confirmedAt:    make(map[uint32][]chainhash.Hash),
		pendingEntries: make(map[wire.OutPoint]*model.Entry),
		pendingAlerts:  make(map[chainhash.Hash]*model.AlertRecord),
	}
	err := l.load()
	if err != nil {
		return nil, err
	}
	log.Debugf("Loaded %d vault entries and %d alerts", len(l.entries), len(l.alerts))
	return l, nil
}

func (l *Ledger) load() error {
	err := forEach(l.db, entriesBucket, func(_, value []byte) error {
		entry, err := deserializeEntry(value)
		if err != nil {
			return err
		}
		l.entries[entry.Outpoint] = entry
		return nil
	})
	if err != nil {
		return err
	}

	err = forEach(l.db, alertsBucket, func(_, value []byte) error {
		alert, err := deserializeAlert(value)
		if err != nil {
			return err
		}
		l.alerts[alert.TxID] = alert
		return nil
	})
	if err != nil {
		return err
	}

	return forEach(l.db, maturityBucket, func(suffix, value []byte) error {
		if len(suffix) != 4 {
			return errors.Errorf("malformed maturity key %x", suffix)
		}
		height := binary.BigEndian.Uint32(suffix)
		txIDs, err := deserializeTxIDs(value)
		if err != nil {
			return err
		}
		l.confirmedAt[height] = txIDs
		return nil
	})
}

func forEach(db database.Database, bucket *database.Bucket, f func(suffix, value []byte) error) error {
	cursor, err := db.Cursor(bucket)
	if err != nil {
		return err
	}
	defer cursor.Close()

	for ok := cursor.First(); ok; ok = cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return err
		}
		value, err := cursor.Value()
		if err != nil {
			return err
		}
		err = f(key.Suffix(), value)
		if err != nil {
			return err
		}
	}
	return nil
}

// AlertState reports the state of outpoint on the active chain, falling back
// to the mempool layer for outpoints the chain has not recorded.
func (l *Ledger) AlertState(outpoint wire.OutPoint) model.LedgerState {
	if entry, ok := l.entries[outpoint]; ok {
		return model.LedgerState{State: entry.State, Height: entry.Height}
	}
	if _, ok := l.pendingEntries[outpoint]; ok {
		return model.LedgerState{State: model.StatePendingAlert}
	}
	return model.LedgerState{State: model.StateUnspent}
}

// Entry returns a copy of the committed entry of outpoint.
func (l *Ledger) Entry(outpoint wire.OutPoint) (*model.Entry, bool) {
	entry, ok := l.entries[outpoint]
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// Alert returns a copy of the committed alert record of txID.
func (l *Ledger) Alert(txID chainhash.Hash) (*model.AlertRecord, bool) {
	alert, ok := l.alerts[txID]
	if !ok {
		return nil, false
	}
	return alert.Clone(), true
}

// AlertsConfirmedAt returns the alerts confirmed by the block at height, in
// the order they appear in it, whatever their current state.
func (l *Ledger) AlertsConfirmedAt(height uint32) []*model.AlertRecord {
	txIDs := l.confirmedAt[height]
	alerts := make([]*model.AlertRecord, 0, len(txIDs))
	for _, txID := range txIDs {
		if alert, ok := l.alerts[txID]; ok {
			alerts = append(alerts, alert.Clone())
		}
	}
	return alerts
}

// AlertsMaturedAt returns the alerts that matured at height, in the order
// they were confirmed.
func (l *Ledger) AlertsMaturedAt(height uint32, alertMaturity uint32) []*model.AlertRecord {
	if height < alertMaturity {
		return nil
	}
	var matured []*model.AlertRecord
	for _, alert := range l.AlertsConfirmedAt(height - alertMaturity) {
		if alert.State == model.StateMatured && alert.ResolveHeight == height {
			matured = append(matured, alert)
		}
	}
	return matured
}

// Entries returns copies of all committed entries sorted by outpoint.
func (l *Ledger) Entries() []*model.Entry {
	entries := make([]*model.Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		entries = append(entries, entry.Clone())
	}
	sortEntries(entries)
	return entries
}

func sortEntries(entries []*model.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Outpoint, entries[j].Outpoint
		if a.Hash != b.Hash {
			return string(a.Hash[:]) < string(b.Hash[:])
		}
		return a.Index < b.Index
	})
}
