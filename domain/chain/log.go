package chain

import (
	"github.com/sashabeton/bitcoinvault/infrastructure/logger"
)

var log = logger.RegisterSubSystem("CHAN")
