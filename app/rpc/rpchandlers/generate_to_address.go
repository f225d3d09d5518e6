package rpchandlers

import (
	"github.com/btcsuite/btcd/btcjson"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
)

// HandleGenerateToAddress handles the respectively named RPC command
func HandleGenerateToAddress(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*btcjson.GenerateToAddressCmd)

	if c.NumBlocks <= 0 {
		return nil, rpccontext.InvalidParameterf("Please request a nonzero number of blocks to generate.")
	}
	address, err := decodeAddress(context, c.Address)
	if err != nil {
		return nil, err
	}

	blockHashes, err := context.Domain.GenerateToAddress(int(c.NumBlocks), address)
	if err != nil {
		return nil, &btcjson.RPCError{
			Code:    btcjson.ErrRPCMisc,
			Message: err.Error(),
		}
	}

	// Mine the correct number of blocks, assigning the hex representation of
	// the hash of each one to its place in the reply.
	reply := make([]string, len(blockHashes))
	for i, hash := range blockHashes {
		reply[i] = hash.String()
	}
	return reply, nil
}
