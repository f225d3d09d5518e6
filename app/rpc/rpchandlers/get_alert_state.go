package rpchandlers

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpcmodel"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
)

// HandleGetAlertState handles the respectively named RPC command
func HandleGetAlertState(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*rpcmodel.GetAlertStateCmd)

	hash, err := decodeTxID(c.TxID)
	if err != nil {
		return nil, err
	}
	state := context.Domain.AlertState(*wire.NewOutPoint(hash, c.Vout))

	result := &rpcmodel.GetAlertStateResult{State: state.State.String()}
	switch state.State {
	case model.StateConfirmedAlert, model.StateMatured, model.StateRecovered:
		height := state.Height
		result.Height = &height
	}
	return result, nil
}
