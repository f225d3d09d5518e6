package utxo

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

var (
	utxoBucket = database.MakeBucket([]byte("utxo"))
	diffBucket = database.MakeBucket([]byte("utxo-diffs"))
)

// byteOrder is the preferred byte order used for serializing numeric
// fields for storage in the database.
var byteOrder = binary.LittleEndian

// outpointIndexByteOrder is the byte order for serializing the outpoint index.
// It uses big endian to ensure that when outpoint is used as database key, the
// keys will be iterated in an ascending order by the outpoint index.
var outpointIndexByteOrder = binary.BigEndian

const outpointSerializeSize = chainhash.HashSize + 4

func outpointKey(outpoint wire.OutPoint) []byte {
	key := make([]byte, outpointSerializeSize)
	copy(key, outpoint.Hash[:])
	outpointIndexByteOrder.PutUint32(key[chainhash.HashSize:], outpoint.Index)
	return key
}

func deserializeOutpointKey(key []byte) (*wire.OutPoint, error) {
	if len(key) != outpointSerializeSize {
		return nil, errors.Errorf("malformed outpoint key of %d bytes", len(key))
	}
	outpoint := &wire.OutPoint{Index: outpointIndexByteOrder.Uint32(key[chainhash.HashSize:])}
	copy(outpoint.Hash[:], key)
	return outpoint, nil
}

// SerializeUTXOEntry encodes the entry to the given io.Writer: the block
// height, the packed flags, the amount and the length prefixed script.
func SerializeUTXOEntry(w io.Writer, entry *Entry) error {
	buf := [4 + 1 + 8]byte{}
	byteOrder.PutUint32(buf[:4], entry.blockHeight)
	buf[4] = uint8(entry.packedFlags)
	byteOrder.PutUint64(buf[5:], uint64(entry.amount))

	_, err := w.Write(buf[:])
	if err != nil {
		return errors.WithStack(err)
	}
	return wire.WriteVarBytes(w, 0, entry.scriptPubKey)
}

func serializeUTXOEntryBytes(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	err := SerializeUTXOEntry(&buf, entry)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeUTXOEntry decodes a UTXO entry serialized by
// SerializeUTXOEntry.
func DeserializeUTXOEntry(serialized []byte) (*Entry, error) {
	return readUTXOEntry(bytes.NewReader(serialized))
}

func readUTXOEntry(r io.Reader) (*Entry, error) {
	buf := [4 + 1 + 8]byte{}
	_, err := io.ReadFull(r, buf[:])
	if err != nil {
		return nil, errors.Wrap(err, "truncated UTXO entry")
	}
	scriptPubKey, err := wire.ReadVarBytes(r, 0, wire.MaxBlockPayload, "scriptPubKey")
	if err != nil {
		return nil, err
	}
	return &Entry{
		blockHeight:  byteOrder.Uint32(buf[:4]),
		packedFlags:  txoFlags(buf[4]),
		amount:       int64(byteOrder.Uint64(buf[5:])),
		scriptPubKey: scriptPubKey,
	}, nil
}

// serializeUTXODiffBytes serializes Diff by serializing Diff.ToAdd and
// Diff.ToRemove one after the other.
func serializeUTXODiffBytes(diff *Diff) ([]byte, error) {
	var buf bytes.Buffer
	err := serializeUTXOCollection(&buf, diff.ToAdd)
	if err != nil {
		return nil, err
	}
	err = serializeUTXOCollection(&buf, diff.ToRemove)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deserializeUTXODiff(serialized []byte) (*Diff, error) {
	r := bytes.NewReader(serialized)
	toAdd, err := deserializeUTXOCollection(r)
	if err != nil {
		return nil, err
	}
	toRemove, err := deserializeUTXOCollection(r)
	if err != nil {
		return nil, err
	}
	return &Diff{ToAdd: toAdd, ToRemove: toRemove}, nil
}

// serializeUTXOCollection serializes utxoCollection as a count followed by
// its outpoint/entry pairs ordered by outpoint key.
func serializeUTXOCollection(w io.Writer, collection utxoCollection) error {
	keys := make([][]byte, 0, len(collection))
	for outpoint := range collection {
		keys = append(keys, outpointKey(outpoint))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	err := wire.WriteVarInt(w, 0, uint64(len(keys)))
	if err != nil {
		return err
	}
	for _, key := range keys {
		outpoint, err := deserializeOutpointKey(key)
		if err != nil {
			return err
		}
		_, err = w.Write(key)
		if err != nil {
			return errors.WithStack(err)
		}
		err = SerializeUTXOEntry(w, collection[*outpoint])
		if err != nil {
			return err
		}
	}
	return nil
}

func deserializeUTXOCollection(r io.Reader) (utxoCollection, error) {
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	collection := utxoCollection{}
	for i := uint64(0); i < count; i++ {
		key := make([]byte, outpointSerializeSize)
		_, err := io.ReadFull(r, key)
		if err != nil {
			return nil, errors.Wrap(err, "truncated UTXO diff")
		}
		outpoint, err := deserializeOutpointKey(key)
		if err != nil {
			return nil, err
		}
		entry, err := readUTXOEntry(r)
		if err != nil {
			return nil, err
		}
		collection[*outpoint] = entry
	}
	return collection, nil
}
