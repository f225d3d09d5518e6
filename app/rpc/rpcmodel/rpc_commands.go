// Copyright (c) 2014-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// NOTE: This file is intended to house the vault RPC commands that are
// supported by a bitcoinvault rpc server. Commands shared with bitcoin
// nodes are the ones btcjson registers.

package rpcmodel

import (
	"github.com/btcsuite/btcd/btcjson"
)

// GetBlockByHeightCmd defines the getblockbyheight JSON-RPC command.
type GetBlockByHeightCmd struct {
	Height  uint32
	Verbose *bool `jsonrpcdefault:"true"`
}

// NewGetBlockByHeightCmd returns a new instance which can be used to issue a
// getblockbyheight JSON-RPC command.
func NewGetBlockByHeightCmd(height uint32, verbose *bool) *GetBlockByHeightCmd {
	return &GetBlockByHeightCmd{
		Height:  height,
		Verbose: verbose,
	}
}

// GetAlertBalanceCmd defines the getalertbalance JSON-RPC command.
type GetAlertBalanceCmd struct {
	Dummy   *string
	MinConf *int `jsonrpcdefault:"0"`
}

// NewGetAlertBalanceCmd returns a new instance which can be used to issue a
// getalertbalance JSON-RPC command.
func NewGetAlertBalanceCmd(dummy *string, minConf *int) *GetAlertBalanceCmd {
	return &GetAlertBalanceCmd{
		Dummy:   dummy,
		MinConf: minConf,
	}
}

// GetInstantBalanceCmd defines the getinstantbalance JSON-RPC command.
type GetInstantBalanceCmd struct {
	Dummy   *string
	MinConf *int `jsonrpcdefault:"0"`
}

// GetNewVaultAlertAddressCmd defines the getnewvaultalertaddress JSON-RPC
// command. RecoveryPubKey is a hex encoded public key.
type GetNewVaultAlertAddressCmd struct {
	RecoveryPubKey string
	Label          *string `jsonrpcdefault:"\"\""`
	AddressType    *string `jsonrpcdefault:"\"bech32\""`
}

// NewGetNewVaultAlertAddressCmd returns a new instance which can be used to
// issue a getnewvaultalertaddress JSON-RPC command.
func NewGetNewVaultAlertAddressCmd(recoveryPubKey string, label, addressType *string) *GetNewVaultAlertAddressCmd {
	return &GetNewVaultAlertAddressCmd{
		RecoveryPubKey: recoveryPubKey,
		Label:          label,
		AddressType:    addressType,
	}
}

// GetNewVaultInstantAddressCmd defines the getnewvaultinstantaddress
// JSON-RPC command.
type GetNewVaultInstantAddressCmd struct {
	InstantPubKey  string
	RecoveryPubKey string
	Label          *string `jsonrpcdefault:"\"\""`
	AddressType    *string `jsonrpcdefault:"\"bech32\""`
}

// SendAlertToAddressCmd defines the sendalerttoaddress JSON-RPC command.
// Amount is in BTC.
type SendAlertToAddressCmd struct {
	Address   string
	Amount    float64
	Comment   *string
	CommentTo *string
}

// SendInstantToAddressCmd defines the sendinstanttoaddress JSON-RPC command.
// PrivKeys holds WIF encoded keys, one of which must be the instant key of
// the spent addresses unless the wallet holds it.
type SendInstantToAddressCmd struct {
	Address  string
	Amount   float64
	PrivKeys *[]string
}

// CreateRecoveryTransactionCmd defines the createrecoverytransaction JSON-RPC
// command. Amounts maps addresses to amounts in BTC.
type CreateRecoveryTransactionCmd struct {
	TxIDs   []string
	Amounts map[string]float64 `jsonrpcusage:"{\"address\":amount,...}"`
}

// NewCreateRecoveryTransactionCmd returns a new instance which can be used
// to issue a createrecoverytransaction JSON-RPC command.
func NewCreateRecoveryTransactionCmd(txIDs []string, amounts map[string]float64) *CreateRecoveryTransactionCmd {
	return &CreateRecoveryTransactionCmd{
		TxIDs:   txIDs,
		Amounts: amounts,
	}
}

// SignRecoveryTransactionCmd defines the signrecoverytransaction JSON-RPC
// command. RedeemScript is the hex encoded vault script the inputs spend.
type SignRecoveryTransactionCmd struct {
	HexTx        string
	PrivKeys     []string
	RedeemScript string
}

// NewSignRecoveryTransactionCmd returns a new instance which can be used to
// issue a signrecoverytransaction JSON-RPC command.
func NewSignRecoveryTransactionCmd(hexTx string, privKeys []string, redeemScript string) *SignRecoveryTransactionCmd {
	return &SignRecoveryTransactionCmd{
		HexTx:        hexTx,
		PrivKeys:     privKeys,
		RedeemScript: redeemScript,
	}
}

// GetAlertStateCmd defines the getalertstate JSON-RPC command.
type GetAlertStateCmd struct {
	TxID string
	Vout uint32
}

// NewGetAlertStateCmd returns a new instance which can be used to issue a
// getalertstate JSON-RPC command.
func NewGetAlertStateCmd(txID string, vout uint32) *GetAlertStateCmd {
	return &GetAlertStateCmd{
		TxID: txID,
		Vout: vout,
	}
}

func init() {
	// No special flags for commands in this file.
	flags := btcjson.UsageFlag(0)

	btcjson.MustRegisterCmd("getblockbyheight", (*GetBlockByHeightCmd)(nil), flags)
	btcjson.MustRegisterCmd("getalertstate", (*GetAlertStateCmd)(nil), flags)

	walletFlags := btcjson.UFWalletOnly
	btcjson.MustRegisterCmd("getalertbalance", (*GetAlertBalanceCmd)(nil), walletFlags)
	btcjson.MustRegisterCmd("getinstantbalance", (*GetInstantBalanceCmd)(nil), walletFlags)
	btcjson.MustRegisterCmd("getnewvaultalertaddress", (*GetNewVaultAlertAddressCmd)(nil), walletFlags)
	btcjson.MustRegisterCmd("getnewvaultinstantaddress", (*GetNewVaultInstantAddressCmd)(nil), walletFlags)
	btcjson.MustRegisterCmd("sendalerttoaddress", (*SendAlertToAddressCmd)(nil), walletFlags)
	btcjson.MustRegisterCmd("sendinstanttoaddress", (*SendInstantToAddressCmd)(nil), walletFlags)
	btcjson.MustRegisterCmd("createrecoverytransaction", (*CreateRecoveryTransactionCmd)(nil), walletFlags)
	btcjson.MustRegisterCmd("signrecoverytransaction", (*SignRecoveryTransactionCmd)(nil), walletFlags)
}
