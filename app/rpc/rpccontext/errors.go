package rpccontext

import (
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/miningmanager/mempool"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/vault/balance"
)

// ErrRPCTxRejected is the code of transactions the mempool rejects under a
// policy or vault rule.
const ErrRPCTxRejected btcjson.RPCErrorCode = -26

// codeOfKind returns the RPC code of a rule violation.
func codeOfKind(kind ruleerrors.ErrorKind) btcjson.RPCErrorCode {
	switch kind {
	case ruleerrors.KindMissingInputs:
		return btcjson.ErrRPCVerify
	case ruleerrors.KindInsufficientFunds, ruleerrors.KindMissingKey:
		return btcjson.ErrRPCWallet
	case ruleerrors.KindInvalidTransactionType, ruleerrors.KindUnknownAddressType:
		return btcjson.ErrRPCInvalidAddressOrKey
	}
	return ErrRPCTxRejected
}

// RuleError converts err to an RPC error if it carries a rule violation or
// a mempool rejection. It returns nil for any other error.
func RuleError(err error) *btcjson.RPCError {
	if errors.Is(err, balance.ErrLabelUnsupported) {
		return InvalidParameterf("%s", err)
	}
	kind, ok := ruleerrors.KindOf(err)
	if !ok {
		var mempoolErr mempool.RuleError
		if !errors.As(err, &mempoolErr) {
			return nil
		}
		return &btcjson.RPCError{Code: ErrRPCTxRejected, Message: err.Error()}
	}
	return &btcjson.RPCError{Code: codeOfKind(kind), Message: err.Error()}
}

// WalletError converts an error returned by the wallet. Errors that are not
// rule violations become internal errors.
func WalletError(err error) error {
	rpcErr := RuleError(err)
	if rpcErr != nil {
		return rpcErr
	}
	return InternalError(err.Error(), "")
}

// InvalidParameterf returns an invalid parameter error with a formatted message.
func InvalidParameterf(format string, args ...interface{}) *btcjson.RPCError {
	return &btcjson.RPCError{
		Code:    btcjson.ErrRPCInvalidParameter,
		Message: fmt.Sprintf(format, args...),
	}
}

// InvalidAddressOrKeyf returns an invalid address or key error with a
// formatted message.
func InvalidAddressOrKeyf(format string, args ...interface{}) *btcjson.RPCError {
	return &btcjson.RPCError{
		Code:    btcjson.ErrRPCInvalidAddressOrKey,
		Message: fmt.Sprintf(format, args...),
	}
}

// DecodeHexError returns a hex decoding error for the given string.
func DecodeHexError(hexStr string) *btcjson.RPCError {
	return &btcjson.RPCError{
		Code:    btcjson.ErrRPCDecodeHexString,
		Message: fmt.Sprintf("Argument must be hexadecimal string (not %q)", hexStr),
	}
}

// InternalError is a convenience function to convert an internal error to
// an RPC error with the appropriate code set. It also logs the error to the
// RPC server subsystem since internal errors really should not occur. The
// context parameter is only used in the log message and may be empty if
// it's not needed.
func InternalError(errStr, context string) *btcjson.RPCError {
	logStr := errStr
	if context != "" {
		logStr = context + ": " + errStr
	}
	log.Errorf("%s", logStr)
	return &btcjson.RPCError{
		Code:    btcjson.ErrRPCInternal.Code,
		Message: errStr,
	}
}
