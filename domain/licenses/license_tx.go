package licenses

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// licenseHeader prefixes the OP_RETURN payload of a license output.
var licenseHeader = []byte{0x4c, 0x54, 0x78}

const (
	minMinerScriptSize = 20
	maxMinerScriptSize = 32
	hashRateSize       = 2
)

// Announcement is one license output: the miner it licenses and the
// hashrate, in PH/s, granted to it.
type Announcement struct {
	MinerKey []byte
	HashRate uint16
}

// ParseLicenseOutput extracts the announcement carried by pkScript, an
// OP_RETURN output pushing the license header, the miner's script and the
// big endian hashrate.
func ParseLicenseOutput(pkScript []byte) (*Announcement, bool) {
	tokenizer := txscript.MakeScriptTokenizer(0, pkScript)
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_RETURN {
		return nil, false
	}
	if !tokenizer.Next() {
		return nil, false
	}
	data := tokenizer.Data()
	if tokenizer.Next() || tokenizer.Err() != nil {
		return nil, false
	}
	scriptSize := len(data) - len(licenseHeader) - hashRateSize
	if !bytes.HasPrefix(data, licenseHeader) || scriptSize < minMinerScriptSize || scriptSize > maxMinerScriptSize {
		return nil, false
	}
	minerKey := data[len(licenseHeader) : len(licenseHeader)+scriptSize]
	return &Announcement{
		MinerKey: append([]byte(nil), minerKey...),
		HashRate: binary.BigEndian.Uint16(data[len(data)-hashRateSize:]),
	}, true
}

// LicenseOutputScript builds the OP_RETURN output announcing hashRate for
// the miner identified by minerKey.
func LicenseOutputScript(minerKey []byte, hashRate uint16) ([]byte, error) {
	data := make([]byte, 0, len(licenseHeader)+len(minerKey)+hashRateSize)
	data = append(data, licenseHeader...)
	data = append(data, minerKey...)
	data = binary.BigEndian.AppendUint16(data, hashRate)
	return txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddData(data).Script()
}

// Announcements returns the license announcements of tx if it is a license
// transaction: not a coinbase, spending at least one output of issuerScript
// and carrying at least one license output. prevOuts are the outputs tx
// spends, in input order.
func Announcements(tx *wire.MsgTx, prevOuts []*wire.TxOut, issuerScript []byte) []*Announcement {
	if blockchain.IsCoinBaseTx(tx) || !spendsIssuer(prevOuts, issuerScript) {
		return nil
	}
	var announcements []*Announcement
	for _, txOut := range tx.TxOut {
		if announcement, ok := ParseLicenseOutput(txOut.PkScript); ok {
			announcements = append(announcements, announcement)
		}
	}
	return announcements
}

func spendsIssuer(prevOuts []*wire.TxOut, issuerScript []byte) bool {
	for _, prevOut := range prevOuts {
		if prevOut != nil && bytes.Equal(prevOut.PkScript, issuerScript) {
			return true
		}
	}
	return false
}

// MinerKey returns the key a license uses for the miner paid by pkScript:
// the hash of P2PKH and P2SH scripts, or the witness program of segwit
// scripts. Other scripts are their own key.
func MinerKey(pkScript []byte) []byte {
	switch txscript.GetScriptClass(pkScript) {
	case txscript.PubKeyHashTy:
		return pkScript[3:23]
	case txscript.ScriptHashTy:
		return pkScript[2:22]
	case txscript.WitnessV0PubKeyHashTy, txscript.WitnessV0ScriptHashTy, txscript.WitnessV1TaprootTy:
		return pkScript[2:]
	}
	return pkScript
}
