package rpchandlers

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
)

func decodeAddress(context *rpccontext.Context, encoded string) (btcutil.Address, error) {
	params := context.Domain.Params().Net
	address, err := btcutil.DecodeAddress(encoded, params)
	if err != nil || !address.IsForNet(params) {
		return nil, rpccontext.InvalidAddressOrKeyf("Invalid address or key: %s", encoded)
	}
	return address, nil
}

// decodeAmount converts a positive amount in BTC.
func decodeAmount(amount float64) (btcutil.Amount, error) {
	converted, err := btcutil.NewAmount(amount)
	if err != nil {
		return 0, &btcjson.RPCError{
			Code:    btcjson.ErrRPCType,
			Message: err.Error(),
		}
	}
	if converted <= 0 {
		return 0, &btcjson.RPCError{
			Code:    btcjson.ErrRPCType,
			Message: "Invalid amount for send",
		}
	}
	return converted, nil
}

func decodePubKey(hexStr string) (*btcec.PublicKey, error) {
	serialized, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, rpccontext.InvalidAddressOrKeyf("Invalid public key: %s", hexStr)
	}
	pubKey, err := btcec.ParsePubKey(serialized)
	if err != nil {
		return nil, rpccontext.InvalidAddressOrKeyf("Invalid public key %s: %s", hexStr, err)
	}
	return pubKey, nil
}

func decodePrivKeys(context *rpccontext.Context, wifs []string) ([]*btcec.PrivateKey, error) {
	params := context.Domain.Params().Net
	keys := make([]*btcec.PrivateKey, 0, len(wifs))
	for _, encoded := range wifs {
		wif, err := btcutil.DecodeWIF(encoded)
		if err != nil {
			return nil, rpccontext.InvalidAddressOrKeyf("Invalid private key")
		}
		if !wif.IsForNet(params) {
			return nil, rpccontext.InvalidAddressOrKeyf("Private key for wrong network")
		}
		keys = append(keys, wif.PrivKey)
	}
	return keys, nil
}

func decodeTxID(txID string) (*chainhash.Hash, error) {
	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return nil, rpccontext.InvalidParameterf("txid must be of length 64 (not %d, for '%s')", len(txID), txID)
	}
	return hash, nil
}

func decodeMinConf(minConf *int, defaultMinConf int) (uint32, error) {
	if minConf == nil {
		return uint32(defaultMinConf), nil
	}
	if *minConf < 0 {
		return 0, rpccontext.InvalidParameterf("minconf must not be negative, got %d", *minConf)
	}
	return uint32(*minConf), nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
