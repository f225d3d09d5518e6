package rpchandlers

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpcmodel"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
)

type sendFunc func(address btcutil.Address, amount btcutil.Amount) (chainhash.Hash, error)

// HandleSendToAddress handles the respectively named RPC command
func HandleSendToAddress(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*btcjson.SendToAddressCmd)
	return send(context, c.Address, c.Amount, context.Wallet.SendToAddress)
}

// HandleSendAlertToAddress handles the respectively named RPC command
func HandleSendAlertToAddress(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*rpcmodel.SendAlertToAddressCmd)
	return send(context, c.Address, c.Amount, context.Wallet.SendAlertToAddress)
}

// HandleSendInstantToAddress handles the respectively named RPC command.
// Each given key is tried as the instant key until one of them signs.
func HandleSendInstantToAddress(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*rpcmodel.SendInstantToAddressCmd)

	var wifs []string
	if c.PrivKeys != nil {
		wifs = *c.PrivKeys
	}
	keys, err := decodePrivKeys(context, wifs)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		keys = []*btcec.PrivateKey{nil}
	}

	return send(context, c.Address, c.Amount, func(address btcutil.Address, amount btcutil.Amount) (chainhash.Hash, error) {
		var txID chainhash.Hash
		var err error
		for _, key := range keys {
			txID, err = context.Wallet.SendInstantToAddress(address, amount, key)
			if !errors.Is(err, ruleerrors.ErrMissingKey) {
				break
			}
		}
		return txID, err
	})
}

func send(context *rpccontext.Context, encodedAddress string, btcAmount float64, sendTx sendFunc) (interface{}, error) {
	address, err := decodeAddress(context, encodedAddress)
	if err != nil {
		return nil, err
	}
	amount, err := decodeAmount(btcAmount)
	if err != nil {
		return nil, err
	}

	txID, err := sendTx(address, amount)
	if err != nil {
		log.Debugf("Failed to send %s to %s: %s", amount, encodedAddress, err)
		return nil, rpccontext.WalletError(err)
	}
	return txID.String(), nil
}
