package testutils

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
	"github.com/sashabeton/bitcoinvault/domain/wallet"
)

// DefaultFee is the fee the transactions built here leave to the miner.
const DefaultFee = 10000

// NewTransaction returns an unsigned transaction spending outpoints to
// outputs.
func NewTransaction(outpoints []wire.OutPoint, outputs ...*wire.TxOut) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	for i := range outpoints {
		tx.AddTxIn(wire.NewTxIn(&outpoints[i], nil, nil))
	}
	for _, output := range outputs {
		tx.AddTxOut(output)
	}
	return tx
}

// PayAll returns an unsigned transaction spending outpoints to a single
// output on pkScript worth their total less DefaultFee.
func PayAll(outpoints []wire.OutPoint, prevOuts []*wire.TxOut, pkScript []byte) *wire.MsgTx {
	var total int64
	for _, prevOut := range prevOuts {
		total += prevOut.Value
	}
	return NewTransaction(outpoints, wire.NewTxOut(total-DefaultFee, pkScript))
}

// SignP2WPKH signs every input of tx with key.
func SignP2WPKH(t *testing.T, tx *wire.MsgTx, prevOuts []*wire.TxOut, key *btcec.PrivateKey) *wire.MsgTx {
	sigHashes, _ := wallet.NewSigHashes(tx, prevOuts)
	for i, prevOut := range prevOuts {
		err := wallet.SignP2WPKHInput(tx, sigHashes, i, prevOut, key)
		if err != nil {
			t.Fatalf("SignP2WPKHInput: %+v", err)
		}
	}
	return tx
}

// SignVault signs every input of tx through the branch of role of
// template. keys are positional as the branch takes them.
func SignVault(t *testing.T, tx *wire.MsgTx, prevOuts []*wire.TxOut, template *vaultscript.Template,
	role vaultscript.Role, keys ...*btcec.PrivateKey) *wire.MsgTx {

	sigHashes, _ := wallet.NewSigHashes(tx, prevOuts)
	for i, prevOut := range prevOuts {
		_, err := wallet.SignVaultInput(tx, sigHashes, i, prevOut, template, role, keys...)
		if err != nil {
			t.Fatalf("SignVaultInput: %+v", err)
		}
	}
	return tx
}
