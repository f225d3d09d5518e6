package rpchandlers

import (
	"github.com/btcsuite/btcd/btcjson"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
)

// HandleGetNewAddress handles the respectively named RPC command
func HandleGetNewAddress(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*btcjson.GetNewAddressCmd)

	address, err := context.Wallet.GetNewAddress(stringOrEmpty(c.Account))
	if err != nil {
		return nil, rpccontext.WalletError(err)
	}
	return address.EncodeAddress(), nil
}

// HandleImportPrivKey handles the respectively named RPC command
func HandleImportPrivKey(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*btcjson.ImportPrivKeyCmd)

	_, err := context.Wallet.ImportPrivKey(c.PrivKey, stringOrEmpty(c.Label))
	if err != nil {
		return nil, rpccontext.InvalidAddressOrKeyf("Invalid private key: %s", err)
	}
	return nil, nil
}
