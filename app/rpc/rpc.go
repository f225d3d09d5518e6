package rpc

import (
	"github.com/btcsuite/btcd/btcjson"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpchandlers"
)

type handler func(context *rpccontext.Context, cmd interface{}) (interface{}, error)

var handlers = map[string]handler{
	"createrecoverytransaction": rpchandlers.HandleCreateRecoveryTransaction,
	"generatetoaddress":         rpchandlers.HandleGenerateToAddress,
	"getalertbalance":           rpchandlers.HandleGetAlertBalance,
	"getalertstate":             rpchandlers.HandleGetAlertState,
	"getbalance":                rpchandlers.HandleGetBalance,
	"getbestblock":              rpchandlers.HandleGetBestBlock,
	"getblockbyheight":          rpchandlers.HandleGetBlockByHeight,
	"getinstantbalance":         rpchandlers.HandleGetInstantBalance,
	"getnewaddress":             rpchandlers.HandleGetNewAddress,
	"getnewvaultalertaddress":   rpchandlers.HandleGetNewVaultAlertAddress,
	"getnewvaultinstantaddress": rpchandlers.HandleGetNewVaultInstantAddress,
	"importprivkey":             rpchandlers.HandleImportPrivKey,
	"sendalerttoaddress":        rpchandlers.HandleSendAlertToAddress,
	"sendinstanttoaddress":      rpchandlers.HandleSendInstantToAddress,
	"sendrawtransaction":        rpchandlers.HandleSendRawTransaction,
	"sendtoaddress":             rpchandlers.HandleSendToAddress,
	"signrecoverytransaction":   rpchandlers.HandleSignRecoveryTransaction,
}

// walletMethods need the node wallet.
var walletMethods = map[string]struct{}{
	"createrecoverytransaction": {},
	"getalertbalance":           {},
	"getbalance":                {},
	"getinstantbalance":         {},
	"getnewaddress":             {},
	"getnewvaultalertaddress":   {},
	"getnewvaultinstantaddress": {},
	"importprivkey":             {},
	"sendalerttoaddress":        {},
	"sendinstanttoaddress":      {},
	"sendtoaddress":             {},
	"signrecoverytransaction":   {},
}

// SupportedMethods returns the methods the manager handles.
func SupportedMethods() []string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	return methods
}

// rpcNoWalletError is returned for wallet methods when the node runs
// without a wallet.
func rpcNoWalletError(method string) *btcjson.RPCError {
	return &btcjson.RPCError{
		Code:    btcjson.ErrRPCNoWallet,
		Message: "This implementation does not implement wallet commands: " + method,
	}
}
