package feeattribution

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/pkg/errors"
)

// Status is the payout status of an alert fee.
type Status uint8

// Status values.
const (
	// StatusPending fees wait for their alert to mature.
	StatusPending Status = iota

	// StatusPaid fees were paid out in the coinbase of the maturing block.
	StatusPaid

	// StatusForfeited fees belong to recovered alerts and are never paid.
	StatusForfeited
)

var statusStrings = map[Status]string{
	StatusPending:   "pending",
	StatusPaid:      "paid",
	StatusForfeited: "forfeited",
}

func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown Status (%d)", uint8(s))
}

// Record is the fee an alert transaction pays to the miner of the block
// that confirmed it.
type Record struct {
	AlertTxID     chainhash.Hash
	Fee           int64
	ConfirmHeight uint32
	MinerScript   []byte
	Status        Status

	// PaidHeight is the height of the block whose coinbase paid the fee,
	// or that recovered the alert.
	PaidHeight uint32
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	clone := *r
	clone.MinerScript = append([]byte(nil), r.MinerScript...)
	return &clone
}

// Payout returns the coinbase output that pays the fee.
func (r *Record) Payout() *wire.TxOut {
	return wire.NewTxOut(r.Fee, append([]byte(nil), r.MinerScript...))
}

const (
	recordAlertTxID     tlv.Type = 0
	recordFee           tlv.Type = 1
	recordConfirmHeight tlv.Type = 2
	recordMinerScript   tlv.Type = 3
	recordStatus        tlv.Type = 4
	recordPaidHeight    tlv.Type = 5
)

func recordStream(txID *[32]byte, fee *uint64, confirmHeight *uint32, minerScript *[]byte,
	status *uint8, paidHeight *uint32) (*tlv.Stream, error) {

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(recordAlertTxID, txID),
		tlv.MakePrimitiveRecord(recordFee, fee),
		tlv.MakePrimitiveRecord(recordConfirmHeight, confirmHeight),
		tlv.MakePrimitiveRecord(recordMinerScript, minerScript),
		tlv.MakePrimitiveRecord(recordStatus, status),
		tlv.MakePrimitiveRecord(recordPaidHeight, paidHeight),
	)
	return stream, errors.WithStack(err)
}

func serializeRecord(record *Record) ([]byte, error) {
	txID := [32]byte(record.AlertTxID)
	fee := uint64(record.Fee)
	confirmHeight := record.ConfirmHeight
	minerScript := record.MinerScript
	status := uint8(record.Status)
	paidHeight := record.PaidHeight

	stream, err := recordStream(&txID, &fee, &confirmHeight, &minerScript, &status, &paidHeight)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = stream.Encode(&buf)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

func deserializeRecord(recordBytes []byte) (*Record, error) {
	var (
		txID                      [32]byte
		fee                       uint64
		confirmHeight, paidHeight uint32
		minerScript               []byte
		status                    uint8
	)
	stream, err := recordStream(&txID, &fee, &confirmHeight, &minerScript, &status, &paidHeight)
	if err != nil {
		return nil, err
	}
	err = stream.Decode(bytes.NewReader(recordBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode fee record")
	}
	return &Record{
		AlertTxID:     chainhash.Hash(txID),
		Fee:           int64(fee),
		ConfirmHeight: confirmHeight,
		MinerScript:   minerScript,
		Status:        Status(status),
		PaidHeight:    paidHeight,
	}, nil
}

// blockUndo lists the records a block touched with their prior values. A
// nil prior means the block created the record.
type blockUndo struct {
	order []chainhash.Hash
	prior map[chainhash.Hash]*Record
}

func newBlockUndo() *blockUndo {
	return &blockUndo{prior: make(map[chainhash.Hash]*Record)}
}

func (u *blockUndo) remember(txID chainhash.Hash, prior *Record) {
	if _, ok := u.prior[txID]; ok {
		return
	}
	if prior != nil {
		prior = prior.Clone()
	}
	u.prior[txID] = prior
	u.order = append(u.order, txID)
}

func serializeBlockUndo(undo *blockUndo) ([]byte, error) {
	var buf bytes.Buffer
	err := wire.WriteVarInt(&buf, 0, uint64(len(undo.order)))
	if err != nil {
		return nil, err
	}
	for _, txID := range undo.order {
		_, err := buf.Write(txID[:])
		if err != nil {
			return nil, errors.WithStack(err)
		}
		var priorBytes []byte
		if prior := undo.prior[txID]; prior != nil {
			priorBytes, err = serializeRecord(prior)
			if err != nil {
				return nil, err
			}
		}
		err = wire.WriteVarBytes(&buf, 0, priorBytes)
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func deserializeBlockUndo(undoBytes []byte) (*blockUndo, error) {
	r := bytes.NewReader(undoBytes)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	undo := newBlockUndo()
	for i := uint64(0); i < count; i++ {
		var txID chainhash.Hash
		_, err := io.ReadFull(r, txID[:])
		if err != nil {
			return nil, errors.Wrap(err, "truncated fee undo data")
		}
		priorBytes, err := wire.ReadVarBytes(r, 0, wire.MaxBlockPayload, "fee record")
		if err != nil {
			return nil, err
		}
		var prior *Record
		if len(priorBytes) > 0 {
			prior, err = deserializeRecord(priorBytes)
			if err != nil {
				return nil, err
			}
		}
		undo.prior[txID] = prior
		undo.order = append(undo.order, txID)
	}
	return undo, nil
}
