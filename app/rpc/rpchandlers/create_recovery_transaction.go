package rpchandlers

import (
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpcmodel"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/wallet"
)

// HandleCreateRecoveryTransaction handles the respectively named RPC command.
// Outputs are ordered by address.
func HandleCreateRecoveryTransaction(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*rpcmodel.CreateRecoveryTransactionCmd)

	if len(c.TxIDs) == 0 {
		return nil, rpccontext.InvalidParameterf("Invalid parameter, no alert to recover")
	}
	alertTxIDs := make([]chainhash.Hash, 0, len(c.TxIDs))
	for _, txID := range c.TxIDs {
		hash, err := decodeTxID(txID)
		if err != nil {
			return nil, err
		}
		alertTxIDs = append(alertTxIDs, *hash)
	}

	encodedAddresses := make([]string, 0, len(c.Amounts))
	for encodedAddress := range c.Amounts {
		encodedAddresses = append(encodedAddresses, encodedAddress)
	}
	sort.Strings(encodedAddresses)
	payments := make([]wallet.Payment, 0, len(encodedAddresses))
	for _, encodedAddress := range encodedAddresses {
		address, err := decodeAddress(context, encodedAddress)
		if err != nil {
			return nil, err
		}
		amount, err := decodeAmount(c.Amounts[encodedAddress])
		if err != nil {
			return nil, err
		}
		payments = append(payments, wallet.Payment{Address: address, Amount: amount})
	}

	tx, err := context.Wallet.CreateRecoveryTransaction(alertTxIDs, payments)
	if err != nil {
		switch kind, _ := ruleerrors.KindOf(err); kind {
		case ruleerrors.KindRecoveryInputsNotSpent, ruleerrors.KindAlreadyMatured, ruleerrors.KindInputsSpent:
			return nil, rpccontext.InvalidParameterf("%s", err)
		}
		return nil, rpccontext.WalletError(err)
	}
	return encodeTransaction(tx)
}
