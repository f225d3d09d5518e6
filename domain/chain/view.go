package chain

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

// BlockView is a block of the active chain as clients see it. Tx lists the
// transactions final in the block: its own non-alert transactions followed
// by the alerts that matured in it. Atx lists the alerts the block
// confirmed, which stay recoverable until they mature.
type BlockView struct {
	Hash      chainhash.Hash
	PrevHash  chainhash.Hash
	Height    uint32
	Timestamp time.Time
	Tx        []chainhash.Hash
	Atx       []chainhash.Hash
}

// BlockView returns the view of the active block at height.
func (c *Chain) BlockView(height uint32) (*BlockView, error) {
	if height > c.tip.height {
		return nil, errors.Errorf("block height %d is above the tip height %d", height, c.tip.height)
	}
	node := c.active[height]
	view := &BlockView{
		Hash:      node.hash,
		PrevHash:  node.block.Header.PrevBlock,
		Height:    height,
		Timestamp: node.timestamp(),
		Tx:        []chainhash.Hash{},
		Atx:       []chainhash.Hash{},
	}

	confirmed := make(map[chainhash.Hash]struct{})
	for _, alert := range c.ledger.AlertsConfirmedAt(height) {
		confirmed[alert.TxID] = struct{}{}
		view.Atx = append(view.Atx, alert.TxID)
	}
	for _, tx := range node.block.Transactions {
		txID := tx.TxHash()
		if _, ok := confirmed[txID]; ok {
			continue
		}
		view.Tx = append(view.Tx, txID)
	}
	for _, alert := range c.ledger.AlertsMaturedAt(height, c.params.AlertMaturity) {
		view.Tx = append(view.Tx, alert.TxID)
	}
	return view, nil
}
