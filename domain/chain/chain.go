// Package chain connects blocks to a single active chain and keeps the
// UTXO set and the vault stores consistent with its tip.
package chain

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/licenses"
	"github.com/sashabeton/bitcoinvault/domain/netparams"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/domain/utxo"
	"github.com/sashabeton/bitcoinvault/domain/vault/feeattribution"
	"github.com/sashabeton/bitcoinvault/domain/vault/ledger"
	"github.com/sashabeton/bitcoinvault/domain/vault/maturation"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

const defaultSigCacheMaxSize = 100_000

// Config holds the policy knobs of the chain.
type Config struct {
	// EnforceLicenses rejects blocks whose coinbase pays a miner that has
	// no license quota left in the current mining round.
	EnforceLicenses bool

	// SigCacheMaxSize is the number of verified signatures kept.
	SigCacheMaxSize uint
}

// DefaultConfig returns the default chain configuration.
func DefaultConfig() *Config {
	return &Config{SigCacheMaxSize: defaultSigCacheMaxSize}
}

// Chain is the active chain and the stores derived from it. It is not safe
// for concurrent use; callers serialize access.
type Chain struct {
	params *netparams.Params
	config *Config
	db     database.Database

	utxoSet   *utxo.Set
	ledger    *ledger.Ledger
	fees      *feeattribution.Ledger
	scheduler *maturation.Scheduler
	licenses  *licenses.Registry
	sigCache  *txscript.SigCache

	index  map[chainhash.Hash]*blockNode
	active []*blockNode
	tip    *blockNode
}

// New loads the chain stored in db, initializing it with the genesis block
// of params if db is empty.
func New(db database.Database, params *netparams.Params, config *Config) (*Chain, error) {
	utxoSet, err := utxo.New(db)
	if err != nil {
		return nil, err
	}
	vaultLedger, err := ledger.New(db)
	if err != nil {
		return nil, err
	}
	fees, err := feeattribution.New(db)
	if err != nil {
		return nil, err
	}
	registry, err := licenses.New(db, params)
	if err != nil {
		return nil, err
	}

	c := &Chain{
		params:    params,
		config:    config,
		db:        db,
		utxoSet:   utxoSet,
		ledger:    vaultLedger,
		fees:      fees,
		scheduler: maturation.New(params.AlertMaturity, vaultLedger, fees),
		licenses:  registry,
		sigCache:  txscript.NewSigCache(config.SigCacheMaxSize),
		index:     make(map[chainhash.Hash]*blockNode),
	}
	err = c.initChainState()
	if err != nil {
		return nil, err
	}
	log.Infof("Chain loaded at height %d, tip %s", c.tip.height, c.tip.hash)
	return c, nil
}

func (c *Chain) initChainState() error {
	tipHash, err := c.db.Get(tipKey)
	if database.IsNotFoundError(err) {
		return c.createChainState()
	}
	if err != nil {
		return err
	}
	err = c.loadBlockIndex()
	if err != nil {
		return err
	}
	hash, err := chainhash.NewHash(tipHash)
	if err != nil {
		return errors.WithStack(err)
	}
	tip, ok := c.index[*hash]
	if !ok {
		return errors.Errorf("tip %s is not in the block index", hash)
	}
	if tip.ancestor(0).hash != *c.params.Net.GenesisHash {
		return errors.Errorf("stored chain does not start at the %s genesis block", c.params.Name)
	}
	shard := &blockStagingShard{chain: c, newTip: tip}
	shard.OnCommitted()
	return nil
}

// createChainState stores the genesis block as the tip. The genesis
// coinbase is not spendable and leaves the UTXO set empty.
func (c *Chain) createChainState() error {
	genesis := newBlockNode(c.params.Net.GenesisBlock, nil)
	stagingArea := staging.NewArea()
	shard := c.stagingShard(stagingArea)
	shard.newBlocks = append(shard.newBlocks, genesis)
	shard.newTip = genesis
	return staging.CommitAllChanges(c.db, stagingArea)
}

// Params returns the network parameters of the chain.
func (c *Chain) Params() *netparams.Params {
	return c.params
}

// UTXOSet returns the UTXO set of the active chain.
func (c *Chain) UTXOSet() *utxo.Set {
	return c.utxoSet
}

// Ledger returns the vault ledger of the active chain.
func (c *Chain) Ledger() *ledger.Ledger {
	return c.ledger
}

// Fees returns the fee attribution ledger of the active chain.
func (c *Chain) Fees() *feeattribution.Ledger {
	return c.fees
}

// Scheduler returns the maturation scheduler of the active chain.
func (c *Chain) Scheduler() *maturation.Scheduler {
	return c.scheduler
}

// Licenses returns the miner license registry of the active chain.
func (c *Chain) Licenses() *licenses.Registry {
	return c.licenses
}

// SigCache returns the signature cache shared by block and mempool
// validation.
func (c *Chain) SigCache() *txscript.SigCache {
	return c.sigCache
}

// TipHeight returns the height of the active tip.
func (c *Chain) TipHeight() uint32 {
	return c.tip.height
}

// TipHash returns the hash of the active tip.
func (c *Chain) TipHash() chainhash.Hash {
	return c.tip.hash
}

// Tip returns the block at the active tip.
func (c *Chain) Tip() *wire.MsgBlock {
	return c.tip.block
}

// BlockByHeight returns the block of the active chain at height.
func (c *Chain) BlockByHeight(height uint32) (*wire.MsgBlock, bool) {
	if height > c.tip.height {
		return nil, false
	}
	return c.active[height].block, true
}

// BlockByHash returns a known block, active or not, and its height.
func (c *Chain) BlockByHash(hash chainhash.Hash) (*wire.MsgBlock, uint32, bool) {
	node, ok := c.index[hash]
	if !ok {
		return nil, 0, false
	}
	return node.block, node.height, true
}

// IsInActiveChain returns whether the block with the given hash is part of
// the active chain.
func (c *Chain) IsInActiveChain(hash chainhash.Hash) bool {
	node, ok := c.index[hash]
	return ok && c.isActive(node)
}

func (c *Chain) isActive(node *blockNode) bool {
	return node.height <= c.tip.height && c.active[node.height] == node
}
