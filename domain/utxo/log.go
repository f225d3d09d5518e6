package utxo

import "github.com/sashabeton/bitcoinvault/infrastructure/logger"

var log = logger.RegisterSubSystem("UTXO")
