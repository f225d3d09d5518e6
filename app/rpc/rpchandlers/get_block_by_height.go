package rpchandlers

import (
	"bytes"
	"encoding/hex"

	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpcmodel"
)

// HandleGetBlockByHeight handles the respectively named RPC command. The
// verbose reply separates the alerts a block confirmed from its other
// transactions.
func HandleGetBlockByHeight(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*rpcmodel.GetBlockByHeightCmd)

	tipHeight := context.Domain.TipHeight()
	if c.Height > tipHeight {
		return nil, rpccontext.InvalidParameterf("Block height %d out of range, the tip is at %d",
			c.Height, tipHeight)
	}

	if c.Verbose != nil && !*c.Verbose {
		block, err := context.Domain.BlockByHeight(c.Height)
		if err != nil {
			return nil, rpccontext.InternalError(err.Error(), "Failed to load block")
		}
		var buf bytes.Buffer
		err = block.Serialize(&buf)
		if err != nil {
			return nil, rpccontext.InternalError(err.Error(), "Failed to serialize block")
		}
		return hex.EncodeToString(buf.Bytes()), nil
	}

	view, err := context.Domain.BlockView(c.Height)
	if err != nil {
		return nil, rpccontext.InternalError(err.Error(), "Failed to load block")
	}
	return &rpcmodel.BlockResult{
		Hash:              view.Hash.String(),
		Height:            view.Height,
		PreviousBlockHash: view.PrevHash.String(),
		Time:              view.Timestamp.Unix(),
		Tx:                hashStrings(view.Tx),
		Atx:               hashStrings(view.Atx),
	}, nil
}
