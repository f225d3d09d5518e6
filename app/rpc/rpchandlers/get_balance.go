package rpchandlers

import (
	"github.com/btcsuite/btcd/btcjson"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpcmodel"
	"github.com/sashabeton/bitcoinvault/domain/vault/balance"
)

// HandleGetBalance handles the respectively named RPC command
func HandleGetBalance(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*btcjson.GetBalanceCmd)
	return getBalance(context, balance.KindRegular, c.Account, c.MinConf, 1)
}

// HandleGetAlertBalance handles the respectively named RPC command
func HandleGetAlertBalance(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*rpcmodel.GetAlertBalanceCmd)
	return getBalance(context, balance.KindAlert, c.Dummy, c.MinConf, 0)
}

// HandleGetInstantBalance handles the respectively named RPC command
func HandleGetInstantBalance(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*rpcmodel.GetInstantBalanceCmd)
	return getBalance(context, balance.KindInstant, c.Dummy, c.MinConf, 0)
}

func getBalance(context *rpccontext.Context, kind balance.Kind, label *string, minConf *int,
	defaultMinConf int) (interface{}, error) {

	confirmations, err := decodeMinConf(minConf, defaultMinConf)
	if err != nil {
		return nil, err
	}
	amount, err := context.Wallet.Balance(kind, confirmations, stringOrEmpty(label))
	if err != nil {
		return nil, rpccontext.WalletError(err)
	}
	return amount.ToBTC(), nil
}
