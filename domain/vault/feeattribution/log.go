package feeattribution

import "github.com/sashabeton/bitcoinvault/infrastructure/logger"

var log = logger.RegisterSubSystem("FEES")
