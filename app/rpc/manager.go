package rpc

import (
	"encoding/json"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/app/rpc/rpccontext"
	"github.com/sashabeton/bitcoinvault/domain"
	"github.com/sashabeton/bitcoinvault/domain/wallet"
	"github.com/sashabeton/bitcoinvault/infrastructure/config"
	"github.com/sashabeton/bitcoinvault/infrastructure/logger"

	// Registers the vault commands with btcjson.
	_ "github.com/sashabeton/bitcoinvault/app/rpc/rpcmodel"
)

// Manager is an RPC manager. It dispatches JSON-RPC requests to their
// handlers in process.
type Manager struct {
	context *rpccontext.Context
}

// NewManager creates a new RPC Manager. wallet may be nil, in which case
// wallet commands fail.
func NewManager(cfg *config.Config, domain domain.Domain, wallet *wallet.Wallet) *Manager {
	return &Manager{
		context: rpccontext.NewContext(cfg, domain, wallet),
	}
}

// HandleRequest parses request into its registered command and runs it. The
// result is ready to be marshalled as the JSON-RPC result.
func (m *Manager) HandleRequest(request *btcjson.Request) (interface{}, *btcjson.RPCError) {
	onEnd := logger.LogAndMeasureExecutionTime(log, "RPCManager.HandleRequest")
	defer onEnd()

	h, err := m.lookup(request.Method)
	if err != nil {
		return nil, err
	}
	cmd, parseErr := btcjson.UnmarshalCmd(request)
	if parseErr != nil {
		return nil, parseError(parseErr)
	}
	return m.run(request.Method, h, cmd)
}

// HandleCommand builds the command of method from args and runs it. Omitted
// optional arguments take the handler's defaults.
func (m *Manager) HandleCommand(method string, args ...interface{}) (interface{}, *btcjson.RPCError) {
	h, err := m.lookup(method)
	if err != nil {
		return nil, err
	}
	cmd, parseErr := btcjson.NewCmd(method, args...)
	if parseErr != nil {
		return nil, parseError(parseErr)
	}
	return m.run(method, h, cmd)
}

// HandleRawRequest handles a JSON encoded request and returns the JSON
// encoded result.
func (m *Manager) HandleRawRequest(rawRequest []byte) (json.RawMessage, *btcjson.RPCError) {
	var request btcjson.Request
	err := json.Unmarshal(rawRequest, &request)
	if err != nil {
		return nil, &btcjson.RPCError{
			Code:    btcjson.ErrRPCParse.Code,
			Message: "Failed to parse request: " + err.Error(),
		}
	}
	result, rpcErr := m.HandleRequest(&request)
	if rpcErr != nil {
		return nil, rpcErr
	}
	marshalledResult, err := json.Marshal(result)
	if err != nil {
		return nil, rpccontext.InternalError(err.Error(), "Failed to marshal reply")
	}
	return marshalledResult, nil
}

func (m *Manager) lookup(method string) (handler, *btcjson.RPCError) {
	h, ok := handlers[method]
	if !ok {
		return nil, btcjson.ErrRPCMethodNotFound
	}
	if _, ok := walletMethods[method]; ok && m.context.Wallet == nil {
		return nil, rpcNoWalletError(method)
	}
	return h, nil
}

func (m *Manager) run(method string, h handler, cmd interface{}) (interface{}, *btcjson.RPCError) {
	log.Debugf("Received command <%s>", method)
	result, err := h(m.context, cmd)
	if err != nil {
		var rpcErr *btcjson.RPCError
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		return nil, rpccontext.InternalError(err.Error(), method)
	}
	return result, nil
}

func parseError(err error) *btcjson.RPCError {
	var jsonErr btcjson.Error
	if errors.As(err, &jsonErr) && jsonErr.ErrorCode == btcjson.ErrUnregisteredMethod {
		return btcjson.ErrRPCMethodNotFound
	}
	return rpccontext.InvalidParameterf("%s", err)
}
