package licenses

import "github.com/sashabeton/bitcoinvault/infrastructure/logger"

var log = logger.RegisterSubSystem("LCNS")
