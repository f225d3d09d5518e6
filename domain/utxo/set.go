// Package utxo holds the unspent transaction outputs of the active chain
// together with the per-block diffs needed to disconnect blocks.
package utxo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

// Entry houses details about an individual transaction output in a utxo
// set such as whether or not it was contained in a coinbase tx, the height
// from which it is spendable, its public key script, and how much it pays.
type Entry struct {
	amount       int64
	scriptPubKey []byte
	blockHeight  uint32

	// packedFlags contains additional info about output such as whether it
	// is a coinbase.
	packedFlags txoFlags
}

// IsCoinbase returns whether or not the output was contained in a block
// reward transaction.
func (entry *Entry) IsCoinbase() bool {
	return entry.packedFlags&tfCoinbase == tfCoinbase
}

// BlockHeight returns the height of the block that added the output. For
// the outputs of an alert this is its maturation height.
func (entry *Entry) BlockHeight() uint32 {
	return entry.blockHeight
}

// Amount returns the amount of the output.
func (entry *Entry) Amount() int64 {
	return entry.amount
}

// ScriptPubKey returns the public key script for the output.
func (entry *Entry) ScriptPubKey() []byte {
	return entry.scriptPubKey
}

// TxOut returns the output as a wire.TxOut.
func (entry *Entry) TxOut() *wire.TxOut {
	return wire.NewTxOut(entry.amount, entry.scriptPubKey)
}

// txoFlags is a bitmask defining additional information and state for a
// transaction output in a UTXO set.
type txoFlags uint8

const (
	// tfCoinbase indicates that a txout was contained in a coinbase tx.
	tfCoinbase txoFlags = 1 << iota
)

// NewEntry creates a new utxo entry representing the given txOut.
func NewEntry(txOut *wire.TxOut, isCoinbase bool, blockHeight uint32) *Entry {
	entry := &Entry{
		amount:       txOut.Value,
		scriptPubKey: txOut.PkScript,
		blockHeight:  blockHeight,
	}
	if isCoinbase {
		entry.packedFlags |= tfCoinbase
	}
	return entry
}

// utxoCollection represents a set of UTXOs indexed by their outpoints
type utxoCollection map[wire.OutPoint]*Entry

func (uc utxoCollection) String() string {
	utxoStrings := make([]string, 0, len(uc))
	for outpoint, utxoEntry := range uc {
		utxoStrings = append(utxoStrings, fmt.Sprintf("(%s, %d) => %d, height: %d",
			outpoint.Hash, outpoint.Index, utxoEntry.amount, utxoEntry.blockHeight))
	}

	// Sort strings for determinism.
	sort.Strings(utxoStrings)

	return fmt.Sprintf("[ %s ]", strings.Join(utxoStrings, ", "))
}

// Diff represents the changes one block made to the UTXO set.
type Diff struct {
	ToAdd    utxoCollection
	ToRemove utxoCollection
}

// NewDiff creates a new, empty Diff.
func NewDiff() *Diff {
	return &Diff{
		ToAdd:    utxoCollection{},
		ToRemove: utxoCollection{},
	}
}

func (d *Diff) String() string {
	return fmt.Sprintf("toAdd: %s; toRemove: %s", d.ToAdd, d.ToRemove)
}

// Set is the UTXO set of the active chain, cached in memory.
type Set struct {
	db      database.Database
	entries utxoCollection
}

// New loads the UTXO set stored in db.
func New(db database.Database) (*Set, error) {
	s := &Set{db: db, entries: utxoCollection{}}
	cursor, err := db.Cursor(utxoBucket)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	for ok := cursor.First(); ok; ok = cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return nil, err
		}
		outpoint, err := deserializeOutpointKey(key.Suffix())
		if err != nil {
			return nil, err
		}
		value, err := cursor.Value()
		if err != nil {
			return nil, err
		}
		entry, err := DeserializeUTXOEntry(value)
		if err != nil {
			return nil, err
		}
		s.entries[*outpoint] = entry
	}
	log.Debugf("Loaded %d UTXO entries", len(s.entries))
	return s, nil
}

// Get returns the committed entry of outpoint.
func (s *Set) Get(outpoint wire.OutPoint) (*Entry, bool) {
	entry, ok := s.entries[outpoint]
	return entry, ok
}

// Len returns the number of committed entries.
func (s *Set) Len() int {
	return len(s.entries)
}

// ForEach calls f with every committed entry, in no particular order,
// until f returns false.
func (s *Set) ForEach(f func(outpoint wire.OutPoint, entry *Entry) bool) {
	for outpoint, entry := range s.entries {
		if !f(outpoint, entry) {
			return
		}
	}
}

// StartBlock prepares stagingArea to record the changes of the block with
// the given hash.
func (s *Set) StartBlock(stagingArea *staging.Area, blockHash *chainhash.Hash) {
	s.stagingShard(stagingArea).blockHash = blockHash
}

// StagedEntry returns the entry of outpoint as staged in stagingArea.
func (s *Set) StagedEntry(stagingArea *staging.Area, outpoint wire.OutPoint) (*Entry, bool) {
	return s.stagingShard(stagingArea).entry(outpoint)
}

// Spend stages the removal of outpoint and returns its entry. A missing
// outpoint is ErrMissingInputs.
func (s *Set) Spend(stagingArea *staging.Area, outpoint wire.OutPoint) (*Entry, error) {
	shard := s.stagingShard(stagingArea)
	entry, ok := shard.entry(outpoint)
	if !ok {
		return nil, ruleerrors.Errorf(ruleerrors.ErrMissingInputs, "output %s is not in the UTXO set", outpoint)
	}
	shard.remove(outpoint, entry)
	return entry, nil
}

// AddTxOuts stages the spendable outputs of tx as created at height.
func (s *Set) AddTxOuts(stagingArea *staging.Area, tx *wire.MsgTx, height uint32, isCoinbase bool) {
	shard := s.stagingShard(stagingArea)
	txID := tx.TxHash()
	for i, txOut := range tx.TxOut {
		if txscript.IsUnspendable(txOut.PkScript) {
			continue
		}
		shard.add(wire.OutPoint{Hash: txID, Index: uint32(i)}, NewEntry(txOut, isCoinbase, height))
	}
}

// DisconnectBlock stages the inverse of the diff of the block with the
// given hash.
func (s *Set) DisconnectBlock(stagingArea *staging.Area, blockHash *chainhash.Hash) error {
	diffBytes, err := s.db.Get(diffBucket.Key(blockHash[:]))
	if err != nil {
		if database.IsNotFoundError(err) {
			return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption, "no UTXO diff for block %s", blockHash)
		}
		return err
	}
	diff, err := deserializeUTXODiff(diffBytes)
	if err != nil {
		return err
	}
	shard := s.stagingShard(stagingArea)
	shard.blockHash = blockHash
	shard.disconnecting = true
	for outpoint := range diff.ToAdd {
		entry, ok := shard.entry(outpoint)
		if !ok {
			return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption,
				"output %s added by block %s is missing", outpoint, blockHash)
		}
		shard.remove(outpoint, entry)
	}
	for outpoint, entry := range diff.ToRemove {
		shard.add(outpoint, entry)
	}
	return nil
}
