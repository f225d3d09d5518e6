package maturation

import "github.com/sashabeton/bitcoinvault/infrastructure/logger"

var log = logger.RegisterSubSystem("MTRN")
