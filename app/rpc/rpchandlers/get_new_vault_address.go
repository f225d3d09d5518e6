package rpchandlers

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpcmodel"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
)

// HandleGetNewVaultAlertAddress handles the respectively named RPC command
func HandleGetNewVaultAlertAddress(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*rpcmodel.GetNewVaultAlertAddressCmd)

	recoveryKey, err := decodePubKey(c.RecoveryPubKey)
	if err != nil {
		return nil, err
	}
	addressType, err := vaultscript.ParseAddressType(stringOrEmpty(c.AddressType))
	if err != nil {
		return nil, rpccontext.WalletError(err)
	}

	address, template, err := context.Wallet.NewVaultAlertAddress(recoveryKey, addressType, stringOrEmpty(c.Label))
	if err != nil {
		return nil, rpccontext.WalletError(err)
	}
	return vaultAddressResult(address, template)
}

// HandleGetNewVaultInstantAddress handles the respectively named RPC command
func HandleGetNewVaultInstantAddress(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*rpcmodel.GetNewVaultInstantAddressCmd)

	instantKey, err := decodePubKey(c.InstantPubKey)
	if err != nil {
		return nil, err
	}
	recoveryKey, err := decodePubKey(c.RecoveryPubKey)
	if err != nil {
		return nil, err
	}
	addressType, err := vaultscript.ParseAddressType(stringOrEmpty(c.AddressType))
	if err != nil {
		return nil, rpccontext.WalletError(err)
	}

	address, template, err := context.Wallet.NewVaultInstantAddress(instantKey, recoveryKey, addressType,
		stringOrEmpty(c.Label))
	if err != nil {
		return nil, rpccontext.WalletError(err)
	}
	return vaultAddressResult(address, template)
}

func vaultAddressResult(address btcutil.Address, template *vaultscript.Template) (*rpcmodel.VaultAddressResult, error) {
	script, err := template.Script()
	if err != nil {
		return nil, rpccontext.InternalError(err.Error(), "Failed to build vault script")
	}
	return &rpcmodel.VaultAddressResult{
		Address:      address.EncodeAddress(),
		RedeemScript: hex.EncodeToString(script),
	}, nil
}
