package rpccontext

import (
	"github.com/sashabeton/bitcoinvault/domain"
	"github.com/sashabeton/bitcoinvault/domain/wallet"
	"github.com/sashabeton/bitcoinvault/infrastructure/config"
)

// Context represents the RPC context
type Context struct {
	Config *config.Config
	Domain domain.Domain
	Wallet *wallet.Wallet
}

// NewContext creates a new RPC context
func NewContext(cfg *config.Config, domain domain.Domain, wallet *wallet.Wallet) *Context {
	return &Context{
		Config: cfg,
		Domain: domain,
		Wallet: wallet,
	}
}
