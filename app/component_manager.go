package app

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/app/rpc"
	"github.com/sashabeton/bitcoinvault/domain"
	"github.com/sashabeton/bitcoinvault/domain/wallet"
	"github.com/sashabeton/bitcoinvault/infrastructure/config"
	infrastructuredatabase "github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

// ComponentManager is a wrapper for all the node services
type ComponentManager struct {
	cfg        *config.Config
	domain     domain.Domain
	wallet     *wallet.Wallet
	rpcManager *rpc.Manager

	started, shutdown int32
}

// Start launches all the node services. With --generate set it mines the
// requested blocks to the first mining address.
func (a *ComponentManager) Start() error {
	// Already started?
	if atomic.AddInt32(&a.started, 1) != 1 {
		return nil
	}

	log.Tracef("Starting bitcoinvault")

	log.Infof("Chain tip is %s at height %d", a.domain.TipHash(), a.domain.TipHeight())
	if a.cfg.Generate == 0 {
		return nil
	}
	hashes, err := a.domain.GenerateToAddress(int(a.cfg.Generate), a.cfg.MiningAddresses[0])
	if err != nil {
		return errors.Wrapf(err, "error generating %d blocks", a.cfg.Generate)
	}
	log.Infof("Generated %d blocks to %s, tip is now %s", len(hashes), a.cfg.MiningAddresses[0],
		a.domain.TipHash())
	return nil
}

// Stop gracefully shuts down all the node services.
func (a *ComponentManager) Stop() {
	// Make sure this only happens once.
	if atomic.AddInt32(&a.shutdown, 1) != 1 {
		log.Infof("bitcoinvault is already in the process of shutting down")
		return
	}

	log.Warnf("bitcoinvault shutting down")
}

// NewComponentManager returns a new ComponentManager instance.
// Use Start() to begin all services within this ComponentManager
func NewComponentManager(cfg *config.Config, db infrastructuredatabase.Database) (*ComponentManager, error) {
	domainInstance, err := domain.New(db, cfg.NetParams(), cfg.ChainConfig(), cfg.MempoolConfig())
	if err != nil {
		return nil, err
	}
	nodeWallet := wallet.New(domainInstance)

	return &ComponentManager{
		cfg:        cfg,
		domain:     domainInstance,
		wallet:     nodeWallet,
		rpcManager: rpc.NewManager(cfg, domainInstance, nodeWallet),
	}, nil
}

// Domain returns the node the ComponentManager runs
func (a *ComponentManager) Domain() domain.Domain {
	return a.domain
}

// RPCManager returns the RPC manager associated with this ComponentManager
func (a *ComponentManager) RPCManager() *rpc.Manager {
	return a.rpcManager
}
