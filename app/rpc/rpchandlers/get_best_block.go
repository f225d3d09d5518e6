package rpchandlers

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpcmodel"
)

// HandleGetBestBlock implements the getbestblock command.
func HandleGetBestBlock(context *rpccontext.Context, _ interface{}) (interface{}, error) {
	view, err := context.Domain.BlockView(context.Domain.TipHeight())
	if err != nil {
		return nil, rpccontext.InternalError(err.Error(), "Failed to load the tip")
	}
	return &rpcmodel.GetBestBlockResult{
		Hash:   view.Hash.String(),
		Height: view.Height,
		Tx:     hashStrings(view.Tx),
		Atx:    hashStrings(view.Atx),
	}, nil
}

func hashStrings(hashes []chainhash.Hash) []string {
	strs := make([]string, len(hashes))
	for i, hash := range hashes {
		strs[i] = hash.String()
	}
	return strs
}
