package ldb

import "github.com/sashabeton/bitcoinvault/infrastructure/logger"

var log = logger.RegisterSubSystem("LVDB")
