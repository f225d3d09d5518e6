package rpc

import (
	"github.com/sashabeton/bitcoinvault/infrastructure/logger"
)

var log = logger.RegisterSubSystem("RPCS")
