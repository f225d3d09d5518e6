package chain

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

var (
	blocksBucket = database.MakeBucket([]byte("blocks"))
	tipKey       = database.MakeBucket([]byte("chain-state")).Key([]byte("tip"))
)

// blockNode is a block known to the chain together with its position in
// the block tree.
type blockNode struct {
	hash   chainhash.Hash
	height uint32
	parent *blockNode
	block  *wire.MsgBlock
}

func newBlockNode(block *wire.MsgBlock, parent *blockNode) *blockNode {
	node := &blockNode{hash: block.BlockHash(), block: block, parent: parent}
	if parent != nil {
		node.height = parent.height + 1
	}
	return node
}

func (node *blockNode) timestamp() time.Time {
	return node.block.Header.Timestamp
}

// ancestor returns the ancestor of node at height, or nil if height is
// above node.
func (node *blockNode) ancestor(height uint32) *blockNode {
	if height > node.height {
		return nil
	}
	n := node
	for n != nil && n.height != height {
		n = n.parent
	}
	return n
}

func serializeBlockNode(node *blockNode) ([]byte, error) {
	var buf bytes.Buffer
	var heightBytes [4]byte
	binary.LittleEndian.PutUint32(heightBytes[:], node.height)
	buf.Write(heightBytes[:])
	err := node.block.Serialize(&buf)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

func deserializeBlockRow(row []byte) (uint32, *wire.MsgBlock, error) {
	if len(row) < 4 {
		return 0, nil, errors.Errorf("malformed block row of %d bytes", len(row))
	}
	block := &wire.MsgBlock{}
	err := block.Deserialize(bytes.NewReader(row[4:]))
	if err != nil {
		return 0, nil, errors.WithStack(err)
	}
	return binary.LittleEndian.Uint32(row[:4]), block, nil
}

// loadBlockIndex reads every stored block and links it to its parent.
// Blocks are rows keyed by hash, so their parents are resolved after all
// rows are read.
func (c *Chain) loadBlockIndex() error {
	cursor, err := c.db.Cursor(blocksBucket)
	if err != nil {
		return err
	}
	defer cursor.Close()

	heights := make(map[chainhash.Hash]uint32)
	for ok := cursor.First(); ok; ok = cursor.Next() {
		value, err := cursor.Value()
		if err != nil {
			return err
		}
		height, block, err := deserializeBlockRow(value)
		if err != nil {
			return err
		}
		node := &blockNode{hash: block.BlockHash(), height: height, block: block}
		c.index[node.hash] = node
		heights[node.hash] = height
	}
	for _, node := range c.index {
		if node.height == 0 {
			continue
		}
		parent, ok := c.index[node.block.Header.PrevBlock]
		if !ok || heights[parent.hash]+1 != node.height {
			return errors.Errorf("block %s at height %d has no stored parent", node.hash, node.height)
		}
		node.parent = parent
	}
	return nil
}

// blockStagingShard stages the blocks written and the tip moved by one
// connect or disconnect.
type blockStagingShard struct {
	chain     *Chain
	newBlocks []*blockNode
	newTip    *blockNode
}

func (c *Chain) stagingShard(stagingArea *staging.Area) *blockStagingShard {
	return stagingArea.GetOrCreateShard("Chain", func() staging.Shard {
		return &blockStagingShard{chain: c}
	}).(*blockStagingShard)
}

func (bss *blockStagingShard) Commit(dbTx database.Transaction) error {
	for _, node := range bss.newBlocks {
		row, err := serializeBlockNode(node)
		if err != nil {
			return err
		}
		err = dbTx.Put(blocksBucket.Key(node.hash[:]), row)
		if err != nil {
			return err
		}
	}
	if bss.newTip == nil {
		return nil
	}
	return dbTx.Put(tipKey, bss.newTip.hash[:])
}

func (bss *blockStagingShard) OnCommitted() {
	c := bss.chain
	for _, node := range bss.newBlocks {
		c.index[node.hash] = node
	}
	if bss.newTip == nil {
		return
	}
	c.tip = bss.newTip
	c.active = c.active[:0]
	for node := c.tip; node != nil; node = node.parent {
		c.active = append(c.active, nil)
	}
	for node := c.tip; node != nil; node = node.parent {
		c.active[node.height] = node
	}
}

// storeSideBlock records node without connecting it.
func (c *Chain) storeSideBlock(node *blockNode) error {
	stagingArea := staging.NewArea()
	c.stagingShard(stagingArea).newBlocks = append(c.stagingShard(stagingArea).newBlocks, node)
	return staging.CommitAllChanges(c.db, stagingArea)
}

// removeBlocks forgets nodes and every descendant of them.
func (c *Chain) removeBlocks(nodes []*blockNode) error {
	doomed := make(map[chainhash.Hash]struct{})
	for _, node := range nodes {
		doomed[node.hash] = struct{}{}
	}
	for changed := true; changed; {
		changed = false
		for hash, node := range c.index {
			if _, ok := doomed[hash]; ok || node.parent == nil {
				continue
			}
			if _, ok := doomed[node.parent.hash]; ok {
				doomed[hash] = struct{}{}
				changed = true
			}
		}
	}

	dbTx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()
	for hash := range doomed {
		hash := hash
		err := dbTx.Delete(blocksBucket.Key(hash[:]))
		if err != nil {
			return err
		}
	}
	err = dbTx.Commit()
	if err != nil {
		return err
	}
	for hash := range doomed {
		delete(c.index, hash)
	}
	return nil
}
