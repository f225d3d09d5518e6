// Package model holds the data types shared by the vault components.
package model

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
)

// SourceAddress identifies the vault address an input spends from. Two
// inputs share a source iff their witness scripts are byte-identical.
type SourceAddress struct {
	Type       vaultscript.TemplateType
	ScriptHash [32]byte
}

// SourceOf returns the source address of template.
func SourceOf(template *vaultscript.Template) (SourceAddress, error) {
	hash, err := template.ScriptHash()
	if err != nil {
		return SourceAddress{}, err
	}
	return SourceAddress{Type: template.Type, ScriptHash: hash}, nil
}

func (s SourceAddress) String() string {
	return fmt.Sprintf("%s:%x", s.Type, s.ScriptHash[:8])
}

// TxKind is the class a transaction is assigned by the classifier.
type TxKind uint8

// Transaction kinds.
const (
	KindNormal TxKind = iota
	KindAlert
	KindInstant
	KindRecovery
)

func (k TxKind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindAlert:
		return "vaultalert"
	case KindInstant:
		return "vaultinstant"
	case KindRecovery:
		return "vaultrecovery"
	}
	return fmt.Sprintf("unknown kind (%d)", uint8(k))
}

// State is the lifecycle state of a vault outpoint. StateUnspent is never
// stored; it is what outpoints without a ledger entry report.
type State uint8

// Ledger states.
const (
	StateUnspent State = iota
	StatePendingAlert
	StateConfirmedAlert
	StateMatured
	StateRecovered
)

func (s State) String() string {
	switch s {
	case StateUnspent:
		return "Unspent"
	case StatePendingAlert:
		return "PendingAlert"
	case StateConfirmedAlert:
		return "ConfirmedAlert"
	case StateMatured:
		return "Matured"
	case StateRecovered:
		return "Recovered"
	}
	return fmt.Sprintf("unknown state (%d)", uint8(s))
}

// Entry records the spend of one vault outpoint by an alert or an instant
// transaction. Height is the confirming height of a ConfirmedAlert and the
// resolving height of a Matured or Recovered entry. PrevOut is the spent
// output, kept so recoveries can be verified after the output left the UTXO
// set.
type Entry struct {
	Outpoint     wire.OutPoint
	Source       SourceAddress
	SpendingTxID chainhash.Hash
	Kind         TxKind
	State        State
	Height       uint32
	PrevOut      wire.TxOut
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	clone := *e
	clone.PrevOut.PkScript = append([]byte(nil), e.PrevOut.PkScript...)
	return &clone
}

// LedgerState is the answer to an alert state query.
type LedgerState struct {
	State  State
	Height uint32
}

func (s LedgerState) String() string {
	if s.State == StateUnspent || s.State == StatePendingAlert {
		return s.State.String()
	}
	return fmt.Sprintf("%s(%d)", s.State, s.Height)
}

// AlertRecord is what the ledger keeps per alert transaction so it can emit
// the alert's outputs at maturation and return it to the mempool when its
// block is disconnected.
type AlertRecord struct {
	TxID          chainhash.Hash
	Tx            *wire.MsgTx
	Source        SourceAddress
	Fee           int64
	ConfirmHeight uint32
	MinerScript   []byte
	State         State
	ResolveHeight uint32
}

// Inputs returns the outpoints the alert spends.
func (a *AlertRecord) Inputs() []wire.OutPoint {
	inputs := make([]wire.OutPoint, len(a.Tx.TxIn))
	for i, txIn := range a.Tx.TxIn {
		inputs[i] = txIn.PreviousOutPoint
	}
	return inputs
}

// Clone returns a deep copy of the record.
func (a *AlertRecord) Clone() *AlertRecord {
	clone := *a
	clone.Tx = a.Tx.Copy()
	clone.MinerScript = append([]byte(nil), a.MinerScript...)
	return &clone
}

// VaultOutputLookup resolves whether an input spends a vault output and, if
// so, from which source address.
type VaultOutputLookup interface {
	VaultOutput(outpoint wire.OutPoint, txIn *wire.TxIn) fn.Option[SourceAddress]
}

// EntryLookup gives read access to recorded vault spends.
type EntryLookup interface {
	Entry(outpoint wire.OutPoint) fn.Option[*Entry]
	Alert(txID chainhash.Hash) fn.Option[*AlertRecord]
}
