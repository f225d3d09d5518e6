package ledger

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
)

const (
	entryOutpointHashType tlv.Type = 0
	entryOutpointIndex    tlv.Type = 1
	entrySourceType       tlv.Type = 2
	entrySourceHash       tlv.Type = 3
	entrySpendingTxID     tlv.Type = 4
	entryKind             tlv.Type = 5
	entryState            tlv.Type = 6
	entryHeight           tlv.Type = 7
	entryPrevOutValue     tlv.Type = 8
	entryPrevOutPkScript  tlv.Type = 9
)

const (
	alertRecordTxID          tlv.Type = 0
	alertRecordTx            tlv.Type = 1
	alertRecordSourceType    tlv.Type = 2
	alertRecordSourceHash    tlv.Type = 3
	alertRecordFee           tlv.Type = 4
	alertRecordConfirmHeight tlv.Type = 5
	alertRecordMinerScript   tlv.Type = 6
	alertRecordState         tlv.Type = 7
	alertRecordResolveHeight tlv.Type = 8
)

// maxRecordSize bounds the length of serialized records inside undo data.
const maxRecordSize = wire.MaxBlockPayload

func serializeEntry(entry *model.Entry) ([]byte, error) {
	outpointHash := [32]byte(entry.Outpoint.Hash)
	outpointIndex := entry.Outpoint.Index
	sourceType := uint8(entry.Source.Type)
	sourceHash := entry.Source.ScriptHash
	spendingTxID := [32]byte(entry.SpendingTxID)
	kind := uint8(entry.Kind)
	state := uint8(entry.State)
	height := entry.Height
	value := uint64(entry.PrevOut.Value)
	pkScript := entry.PrevOut.PkScript

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(entryOutpointHashType, &outpointHash),
		tlv.MakePrimitiveRecord(entryOutpointIndex, &outpointIndex),
		tlv.MakePrimitiveRecord(entrySourceType, &sourceType),
		tlv.MakePrimitiveRecord(entrySourceHash, &sourceHash),
		tlv.MakePrimitiveRecord(entrySpendingTxID, &spendingTxID),
		tlv.MakePrimitiveRecord(entryKind, &kind),
		tlv.MakePrimitiveRecord(entryState, &state),
		tlv.MakePrimitiveRecord(entryHeight, &height),
		tlv.MakePrimitiveRecord(entryPrevOutValue, &value),
		tlv.MakePrimitiveRecord(entryPrevOutPkScript, &pkScript),
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var buf bytes.Buffer
	err = stream.Encode(&buf)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

func deserializeEntry(entryBytes []byte) (*model.Entry, error) {
	var (
		outpointHash, sourceHash, spendingTxID [32]byte
		outpointIndex, height                  uint32
		sourceType, kind, state                uint8
		value                                  uint64
		pkScript                               []byte
	)
	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(entryOutpointHashType, &outpointHash),
		tlv.MakePrimitiveRecord(entryOutpointIndex, &outpointIndex),
		tlv.MakePrimitiveRecord(entrySourceType, &sourceType),
		tlv.MakePrimitiveRecord(entrySourceHash, &sourceHash),
		tlv.MakePrimitiveRecord(entrySpendingTxID, &spendingTxID),
		tlv.MakePrimitiveRecord(entryKind, &kind),
		tlv.MakePrimitiveRecord(entryState, &state),
		tlv.MakePrimitiveRecord(entryHeight, &height),
		tlv.MakePrimitiveRecord(entryPrevOutValue, &value),
		tlv.MakePrimitiveRecord(entryPrevOutPkScript, &pkScript),
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	err = stream.Decode(bytes.NewReader(entryBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode ledger entry")
	}
	return &model.Entry{
		Outpoint:     wire.OutPoint{Hash: chainhash.Hash(outpointHash), Index: outpointIndex},
		Source:       model.SourceAddress{Type: vaultscript.TemplateType(sourceType), ScriptHash: sourceHash},
		SpendingTxID: chainhash.Hash(spendingTxID),
		Kind:         model.TxKind(kind),
		State:        model.State(state),
		Height:       height,
		PrevOut:      wire.TxOut{Value: int64(value), PkScript: pkScript},
	}, nil
}

func serializeAlert(alert *model.AlertRecord) ([]byte, error) {
	var txBuf bytes.Buffer
	err := alert.Tx.Serialize(&txBuf)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	txID := [32]byte(alert.TxID)
	txBytes := txBuf.Bytes()
	sourceType := uint8(alert.Source.Type)
	sourceHash := alert.Source.ScriptHash
	fee := uint64(alert.Fee)
	confirmHeight := alert.ConfirmHeight
	minerScript := alert.MinerScript
	state := uint8(alert.State)
	resolveHeight := alert.ResolveHeight

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(alertRecordTxID, &txID),
		tlv.MakePrimitiveRecord(alertRecordTx, &txBytes),
		tlv.MakePrimitiveRecord(alertRecordSourceType, &sourceType),
		tlv.MakePrimitiveRecord(alertRecordSourceHash, &sourceHash),
		tlv.MakePrimitiveRecord(alertRecordFee, &fee),
		tlv.MakePrimitiveRecord(alertRecordConfirmHeight, &confirmHeight),
		tlv.MakePrimitiveRecord(alertRecordMinerScript, &minerScript),
		tlv.MakePrimitiveRecord(alertRecordState, &state),
		tlv.MakePrimitiveRecord(alertRecordResolveHeight, &resolveHeight),
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var buf bytes.Buffer
	err = stream.Encode(&buf)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

func deserializeAlert(alertBytes []byte) (*model.AlertRecord, error) {
	var (
		txID, sourceHash             [32]byte
		txBytes, minerScript         []byte
		sourceType, state            uint8
		fee                          uint64
		confirmHeight, resolveHeight uint32
	)
	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(alertRecordTxID, &txID),
		tlv.MakePrimitiveRecord(alertRecordTx, &txBytes),
		tlv.MakePrimitiveRecord(alertRecordSourceType, &sourceType),
		tlv.MakePrimitiveRecord(alertRecordSourceHash, &sourceHash),
		tlv.MakePrimitiveRecord(alertRecordFee, &fee),
		tlv.MakePrimitiveRecord(alertRecordConfirmHeight, &confirmHeight),
		tlv.MakePrimitiveRecord(alertRecordMinerScript, &minerScript),
		tlv.MakePrimitiveRecord(alertRecordState, &state),
		tlv.MakePrimitiveRecord(alertRecordResolveHeight, &resolveHeight),
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	err = stream.Decode(bytes.NewReader(alertBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode alert record")
	}
	tx := &wire.MsgTx{}
	err = tx.Deserialize(bytes.NewReader(txBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode alert transaction")
	}
	return &model.AlertRecord{
		TxID:          chainhash.Hash(txID),
		Tx:            tx,
		Source:        model.SourceAddress{Type: vaultscript.TemplateType(sourceType), ScriptHash: sourceHash},
		Fee:           int64(fee),
		ConfirmHeight: confirmHeight,
		MinerScript:   minerScript,
		State:         model.State(state),
		ResolveHeight: resolveHeight,
	}, nil
}

// outpointKey is the database key suffix of an outpoint: the transaction
// hash followed by the little endian output index.
func outpointKey(outpoint wire.OutPoint) []byte {
	key := make([]byte, chainhash.HashSize+4)
	copy(key, outpoint.Hash[:])
	binary.LittleEndian.PutUint32(key[chainhash.HashSize:], outpoint.Index)
	return key
}

func heightKey(height uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, height)
	return key
}

func serializeTxIDs(txIDs []chainhash.Hash) []byte {
	serialized := make([]byte, 0, len(txIDs)*chainhash.HashSize)
	for _, txID := range txIDs {
		serialized = append(serialized, txID[:]...)
	}
	return serialized
}

func deserializeTxIDs(serialized []byte) ([]chainhash.Hash, error) {
	if len(serialized)%chainhash.HashSize != 0 {
		return nil, errors.Errorf("tx id list of %d bytes is not a multiple of %d",
			len(serialized), chainhash.HashSize)
	}
	txIDs := make([]chainhash.Hash, len(serialized)/chainhash.HashSize)
	for i := range txIDs {
		copy(txIDs[i][:], serialized[i*chainhash.HashSize:])
	}
	return txIDs, nil
}

// blockUndo is the inverse diff of one connected block: the state every
// touched entry and alert held before the block. A nil prior means the
// record did not exist.
type blockUndo struct {
	height       uint32
	entryOrder   []wire.OutPoint
	priorEntries map[wire.OutPoint]*model.Entry
	alertOrder   []chainhash.Hash
	priorAlerts  map[chainhash.Hash]*model.AlertRecord
}

func newBlockUndo(height uint32) *blockUndo {
	return &blockUndo{
		height:       height,
		priorEntries: make(map[wire.OutPoint]*model.Entry),
		priorAlerts:  make(map[chainhash.Hash]*model.AlertRecord),
	}
}

func (u *blockUndo) rememberEntry(outpoint wire.OutPoint, prior *model.Entry) {
	if _, ok := u.priorEntries[outpoint]; ok {
		return
	}
	if prior != nil {
		prior = prior.Clone()
	}
	u.priorEntries[outpoint] = prior
	u.entryOrder = append(u.entryOrder, outpoint)
}

func (u *blockUndo) rememberAlert(txID chainhash.Hash, prior *model.AlertRecord) {
	if _, ok := u.priorAlerts[txID]; ok {
		return
	}
	if prior != nil {
		prior = prior.Clone()
	}
	u.priorAlerts[txID] = prior
	u.alertOrder = append(u.alertOrder, txID)
}

func serializeBlockUndo(undo *blockUndo) ([]byte, error) {
	var buf bytes.Buffer
	err := wire.WriteVarInt(&buf, 0, uint64(undo.height))
	if err != nil {
		return nil, err
	}

	err = wire.WriteVarInt(&buf, 0, uint64(len(undo.entryOrder)))
	if err != nil {
		return nil, err
	}
	for _, outpoint := range undo.entryOrder {
		var priorBytes []byte
		if prior := undo.priorEntries[outpoint]; prior != nil {
			priorBytes, err = serializeEntry(prior)
			if err != nil {
				return nil, err
			}
		}
		err = writeUndoItem(&buf, outpointKey(outpoint), priorBytes)
		if err != nil {
			return nil, err
		}
	}

	err = wire.WriteVarInt(&buf, 0, uint64(len(undo.alertOrder)))
	if err != nil {
		return nil, err
	}
	for _, txID := range undo.alertOrder {
		var priorBytes []byte
		if prior := undo.priorAlerts[txID]; prior != nil {
			priorBytes, err = serializeAlert(prior)
			if err != nil {
				return nil, err
			}
		}
		err = writeUndoItem(&buf, txID[:], priorBytes)
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeUndoItem(w io.Writer, key, prior []byte) error {
	err := wire.WriteVarBytes(w, 0, key)
	if err != nil {
		return err
	}
	return wire.WriteVarBytes(w, 0, prior)
}

func readUndoItem(r io.Reader) (key, prior []byte, err error) {
	key, err = wire.ReadVarBytes(r, 0, maxRecordSize, "undo key")
	if err != nil {
		return nil, nil, err
	}
	prior, err = wire.ReadVarBytes(r, 0, maxRecordSize, "undo record")
	if err != nil {
		return nil, nil, err
	}
	return key, prior, nil
}

func deserializeBlockUndo(undoBytes []byte) (*blockUndo, error) {
	r := bytes.NewReader(undoBytes)
	height, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	undo := newBlockUndo(uint32(height))

	entryCount, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < entryCount; i++ {
		key, priorBytes, err := readUndoItem(r)
		if err != nil {
			return nil, err
		}
		if len(key) != chainhash.HashSize+4 {
			return nil, errors.Errorf("malformed outpoint key of %d bytes in undo data", len(key))
		}
		var outpoint wire.OutPoint
		copy(outpoint.Hash[:], key)
		outpoint.Index = binary.LittleEndian.Uint32(key[chainhash.HashSize:])

		var prior *model.Entry
		if len(priorBytes) > 0 {
			prior, err = deserializeEntry(priorBytes)
			if err != nil {
				return nil, err
			}
		}
		undo.priorEntries[outpoint] = prior
		undo.entryOrder = append(undo.entryOrder, outpoint)
	}

	alertCount, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < alertCount; i++ {
		key, priorBytes, err := readUndoItem(r)
		if err != nil {
			return nil, err
		}
		txID, err := chainhash.NewHash(key)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		var prior *model.AlertRecord
		if len(priorBytes) > 0 {
			prior, err = deserializeAlert(priorBytes)
			if err != nil {
				return nil, err
			}
		}
		undo.priorAlerts[*txID] = prior
		undo.alertOrder = append(undo.alertOrder, *txID)
	}
	return undo, nil
}
