package rpchandlers

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
)

// HandleSendRawTransaction handles the respectively named RPC command
func HandleSendRawTransaction(context *rpccontext.Context, cmd interface{}) (interface{}, error) {
	c := cmd.(*btcjson.SendRawTransactionCmd)

	msgTx, err := decodeTransaction(c.HexTx)
	if err != nil {
		return nil, err
	}

	txID := msgTx.TxHash()
	_, err = context.Domain.AdmitToMempool(msgTx)
	if err != nil {
		// When the error is a rule error, it means the transaction was
		// simply rejected as opposed to something actually going wrong,
		// so log it as such. Otherwise, something really did go wrong,
		// so log it as an actual error.
		rpcErr := rpccontext.RuleError(err)
		if rpcErr == nil {
			log.Errorf("Failed to process transaction %s: %s", txID, err)
			return nil, rpccontext.InternalError(err.Error(), "Failed to process transaction")
		}
		log.Debugf("Rejected transaction %s: %s", txID, err)
		return nil, rpcErr
	}

	return txID.String(), nil
}

func decodeTransaction(hexStr string) (*wire.MsgTx, error) {
	if len(hexStr)%2 != 0 {
		hexStr = "0" + hexStr
	}
	serializedTx, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, rpccontext.DecodeHexError(hexStr)
	}
	msgTx := &wire.MsgTx{}
	err = msgTx.Deserialize(bytes.NewReader(serializedTx))
	if err != nil {
		return nil, &btcjson.RPCError{
			Code:    btcjson.ErrRPCDeserialization,
			Message: "TX decode failed: " + err.Error(),
		}
	}
	return msgTx, nil
}

func encodeTransaction(msgTx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	err := msgTx.Serialize(&buf)
	if err != nil {
		return "", rpccontext.InternalError(err.Error(), "Failed to serialize transaction")
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
