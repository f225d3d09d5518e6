package app

import (
	"github.com/sashabeton/bitcoinvault/infrastructure/logger"
)

var log = logger.RegisterSubSystem("VLTD")
