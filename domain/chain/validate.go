// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/utxo"
)

// ScriptFlags are the script verification flags blocks and mempool
// transactions are checked with.
const ScriptFlags = txscript.StandardVerifyFlags

// checkBlockSanity performs the checks on block that do not depend on the
// chain state.
func checkBlockSanity(block *wire.MsgBlock, height uint32) error {
	if len(block.Transactions) == 0 {
		return ruleerrors.Errorf(ruleerrors.ErrBadBlock, "block does not contain any transactions")
	}
	if !blockchain.IsCoinBaseTx(block.Transactions[0]) {
		return ruleerrors.Errorf(ruleerrors.ErrBadBlock, "first transaction in block is not a coinbase")
	}

	txs := make([]*btcutil.Tx, len(block.Transactions))
	existingTxIDs := make(map[chainhash.Hash]struct{}, len(block.Transactions))
	for i, msgTx := range block.Transactions {
		if i > 0 && blockchain.IsCoinBaseTx(msgTx) {
			return ruleerrors.Errorf(ruleerrors.ErrBadBlock, "block contains second coinbase at index %d", i)
		}
		tx := btcutil.NewTx(msgTx)
		err := blockchain.CheckTransactionSanity(tx)
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.ErrBadTransaction, errors.Wrapf(err, "transaction %s", tx.Hash()))
		}
		if _, exists := existingTxIDs[*tx.Hash()]; exists {
			return ruleerrors.Errorf(ruleerrors.ErrBadBlock, "block contains duplicate transaction %s", tx.Hash())
		}
		existingTxIDs[*tx.Hash()] = struct{}{}
		txs[i] = tx
	}

	merkles := blockchain.BuildMerkleTreeStore(txs, false)
	calculatedMerkleRoot := merkles[len(merkles)-1]
	if !block.Header.MerkleRoot.IsEqual(calculatedMerkleRoot) {
		return ruleerrors.Errorf(ruleerrors.ErrBadBlock, "block merkle root is invalid - block "+
			"header indicates %s, but calculated value is %s", block.Header.MerkleRoot, calculatedMerkleRoot)
	}

	coinbaseHeight, err := blockchain.ExtractCoinbaseHeight(txs[0])
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.ErrBadBlock, err)
	}
	if uint32(coinbaseHeight) != height {
		return ruleerrors.Errorf(ruleerrors.ErrBadBlock, "coinbase commits to height %d, block is at height %d",
			coinbaseHeight, height)
	}
	return nil
}

// CheckCoinbaseMaturity returns an error if entry is a coinbase output
// that cannot yet be spent in a block at height.
func CheckCoinbaseMaturity(entry *utxo.Entry, outpoint wire.OutPoint, height uint32, coinbaseMaturity uint32) error {
	if !entry.IsCoinbase() {
		return nil
	}
	if height-entry.BlockHeight() < coinbaseMaturity {
		return ruleerrors.Errorf(ruleerrors.ErrBadTransaction, "tried to spend coinbase output %s from height %d "+
			"at height %d before required maturity of %d blocks", outpoint, entry.BlockHeight(), height, coinbaseMaturity)
	}
	return nil
}

// CheckTransactionAmounts returns the fee of tx spending prevOuts, or an
// error if its outputs exceed its inputs.
func CheckTransactionAmounts(tx *wire.MsgTx, prevOuts []*wire.TxOut) (int64, error) {
	var totalIn int64
	for _, prevOut := range prevOuts {
		totalIn += prevOut.Value
		if totalIn > btcutil.MaxSatoshi {
			return 0, ruleerrors.Errorf(ruleerrors.ErrBadTransaction,
				"total value of all transaction inputs of %s is higher than max allowed value", tx.TxHash())
		}
	}
	var totalOut int64
	for _, txOut := range tx.TxOut {
		totalOut += txOut.Value
	}
	if totalIn < totalOut {
		return 0, ruleerrors.Errorf(ruleerrors.ErrBadTransaction,
			"total value of all transaction outputs for transaction %s is %d which is higher than "+
				"the total input amount of %d", tx.TxHash(), totalOut, totalIn)
	}
	return totalIn - totalOut, nil
}

// VerifyScripts runs every input of tx through the script engine against
// the output it spends. prevOuts are in input order.
func VerifyScripts(tx *wire.MsgTx, prevOuts []*wire.TxOut, sigCache *txscript.SigCache) error {
	if len(prevOuts) != len(tx.TxIn) {
		return errors.Errorf("transaction %s has %d inputs but %d previous outputs",
			tx.TxHash(), len(tx.TxIn), len(prevOuts))
	}
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range tx.TxIn {
		fetcher.AddPrevOut(txIn.PreviousOutPoint, prevOuts[i])
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, prevOut := range prevOuts {
		vm, err := txscript.NewEngine(prevOut.PkScript, tx, i, ScriptFlags, sigCache, sigHashes,
			prevOut.Value, fetcher)
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.ErrScriptVerify, errors.Wrapf(err, "input %d of %s", i, tx.TxHash()))
		}
		err = vm.Execute()
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.ErrScriptVerify, errors.Wrapf(err, "input %d of %s", i, tx.TxHash()))
		}
	}
	return nil
}
