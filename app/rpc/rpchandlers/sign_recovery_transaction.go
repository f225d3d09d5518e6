package rpchandlers

import (
	"encoding/hex"

	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpcmodel"
)

// HandleSignRecoveryTransaction handles the respectively named RPC command
func HandleSignRecoveryTransaction(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*rpcmodel.SignRecoveryTransactionCmd)

	msgTx, err := decodeTransaction(c.HexTx)
	if err != nil {
		return nil, err
	}
	keys, err := decodePrivKeys(context, c.PrivKeys)
	if err != nil {
		return nil, err
	}
	redeemScript, err := hex.DecodeString(c.RedeemScript)
	if err != nil {
		return nil, rpccontext.DecodeHexError(c.RedeemScript)
	}

	result, err := context.Wallet.SignRecoveryTransaction(msgTx, keys, redeemScript)
	if err != nil {
		return nil, rpccontext.WalletError(err)
	}

	signedHex, err := encodeTransaction(result.Tx)
	if err != nil {
		return nil, err
	}
	reply := &rpcmodel.SignRecoveryTransactionResult{
		Hex:      signedHex,
		Complete: result.Complete,
	}
	for _, inputErr := range result.Errors {
		reply.Errors = append(reply.Errors, rpcmodel.SignRecoveryTransactionError{
			TxID:  inputErr.Outpoint.Hash.String(),
			Vout:  inputErr.Outpoint.Index,
			Index: inputErr.Index,
			Error: inputErr.Err.Error(),
		})
	}
	return reply, nil
}
