package miningmanager

import (
	"github.com/sashabeton/bitcoinvault/domain/chain"
	"github.com/sashabeton/bitcoinvault/domain/miningmanager/blocktemplatebuilder"
	mempoolpkg "github.com/sashabeton/bitcoinvault/domain/miningmanager/mempool"
)

// Factory instantiates new mining managers
type Factory interface {
	NewMiningManager(chain *chain.Chain, mempoolConfig *mempoolpkg.Config) MiningManager
}

type factory struct{}

// NewMiningManager instantiate a new mining manager
func (f *factory) NewMiningManager(chain *chain.Chain, mempoolConfig *mempoolpkg.Config) MiningManager {
	mempool := mempoolpkg.New(mempoolConfig, chain)
	blockTemplateBuilder := blocktemplatebuilder.New(chain, mempool)

	return &miningManager{
		mempool:              mempool,
		blockTemplateBuilder: blockTemplateBuilder,
	}
}

// NewFactory creates a new mining manager factory
func NewFactory() Factory {
	return &factory{}
}
