package chain

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/licenses"
	"github.com/sashabeton/bitcoinvault/domain/netparams"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/domain/vault/classifier"
	"github.com/sashabeton/bitcoinvault/domain/vault/feeattribution"
	"github.com/sashabeton/bitcoinvault/domain/vault/maturation"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/infrastructure/logger"
)

// Changes lists the blocks a call moved out of and into the active chain.
// Disconnected is ordered from the old tip down, Connected from the fork
// up.
type Changes struct {
	Disconnected []*wire.MsgBlock
	Connected    []*wire.MsgBlock
}

// ProcessBlock validates block and connects it. A block extending the tip
// is connected directly. A block building a side branch longer than the
// active chain triggers a reorganization onto that branch. Shorter side
// branches are stored and not validated against chain state.
func (c *Chain) ProcessBlock(block *wire.MsgBlock) (*Changes, error) {
	blockHash := block.BlockHash()
	onEnd := logger.LogAndMeasureExecutionTime(log, fmt.Sprintf("ProcessBlock %s", blockHash))
	defer onEnd()

	if _, exists := c.index[blockHash]; exists {
		return nil, ruleerrors.Errorf(ruleerrors.ErrBadBlock, "already have block %s", blockHash)
	}
	parent, ok := c.index[block.Header.PrevBlock]
	if !ok {
		return nil, ruleerrors.Errorf(ruleerrors.ErrBadBlock, "block %s has unknown parent %s",
			blockHash, block.Header.PrevBlock)
	}
	node := newBlockNode(block, parent)
	err := checkBlockSanity(block, node.height)
	if err != nil {
		return nil, err
	}

	if parent == c.tip {
		err := c.connectBlock(node)
		if err != nil {
			return nil, err
		}
		log.Debugf("Accepted block %s at height %d", blockHash, node.height)
		return &Changes{Connected: []*wire.MsgBlock{block}}, nil
	}

	err = c.storeSideBlock(node)
	if err != nil {
		return nil, err
	}
	if node.height <= c.tip.height {
		log.Infof("Stored side branch block %s at height %d", blockHash, node.height)
		return &Changes{}, nil
	}
	return c.reorganize(node)
}

// reorganize disconnects the active chain down to the fork point with
// newTip and connects the branch of newTip. If a branch block fails, the
// branch from it up is forgotten and the old chain is restored.
func (c *Chain) reorganize(newTip *blockNode) (*Changes, error) {
	fork := newTip
	for !c.isActive(fork) {
		fork = fork.parent
	}
	var attach []*blockNode
	for node := newTip; node != fork; node = node.parent {
		attach = append([]*blockNode{node}, attach...)
	}
	var detach []*blockNode
	for node := c.tip; node != fork; node = node.parent {
		detach = append(detach, node)
	}
	log.Infof("Reorganizing from %s at height %d to %s at height %d, fork at height %d",
		c.tip.hash, c.tip.height, newTip.hash, newTip.height, fork.height)

	changes := &Changes{}
	for range detach {
		block, err := c.DisconnectTip()
		if err != nil {
			return nil, err
		}
		changes.Disconnected = append(changes.Disconnected, block)
	}
	for i, node := range attach {
		err := c.connectBlock(node)
		if err == nil {
			changes.Connected = append(changes.Connected, node.block)
			continue
		}
		log.Warnf("Reorganization to %s failed at block %s: %s", newTip.hash, node.hash, err)
		restoreErr := c.restore(attach[:i], detach)
		if restoreErr != nil {
			return nil, restoreErr
		}
		removeErr := c.removeBlocks(attach[i:i+1])
		if removeErr != nil {
			return nil, removeErr
		}
		return nil, err
	}
	return changes, nil
}

// restore undoes a partially applied reorganization.
func (c *Chain) restore(connected []*blockNode, disconnected []*blockNode) error {
	for range connected {
		_, err := c.DisconnectTip()
		if err != nil {
			return errors.Wrap(err, "restoring the chain after a failed reorganization")
		}
	}
	for i := len(disconnected) - 1; i >= 0; i-- {
		err := c.connectBlock(disconnected[i])
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.ErrLedgerCorruption,
				errors.Wrapf(err, "reconnecting block %s after a failed reorganization", disconnected[i].hash))
		}
	}
	return nil
}

// DisconnectTip pops the active tip and returns its block.
func (c *Chain) DisconnectTip() (*wire.MsgBlock, error) {
	node := c.tip
	if node.parent == nil {
		return nil, errors.New("cannot disconnect the genesis block")
	}
	onEnd := logger.LogAndMeasureExecutionTime(log, fmt.Sprintf("DisconnectTip %s", node.hash))
	defer onEnd()

	stagingArea := staging.NewArea()
	err := c.ledger.DisconnectBlock(stagingArea, &node.hash)
	if err != nil {
		return nil, err
	}
	err = c.fees.DisconnectBlock(stagingArea, &node.hash)
	if err != nil {
		return nil, err
	}
	err = c.utxoSet.DisconnectBlock(stagingArea, &node.hash)
	if err != nil {
		return nil, err
	}
	err = c.licenses.DisconnectBlock(stagingArea, &node.hash)
	if err != nil {
		return nil, err
	}
	c.stagingShard(stagingArea).newTip = node.parent
	err = staging.CommitAllChanges(c.db, stagingArea)
	if err != nil {
		return nil, err
	}
	log.Debugf("Disconnected block %s at height %d", node.hash, node.height)
	return node.block, nil
}

// connectBlock validates node against the tip state and commits its
// changes to every store in one database transaction.
func (c *Chain) connectBlock(node *blockNode) error {
	if node.parent != c.tip {
		return errors.Errorf("block %s does not extend the tip %s", node.hash, c.tip.hash)
	}
	block := node.block
	height := node.height
	coinbase := block.Transactions[0]
	if len(coinbase.TxOut) == 0 {
		return ruleerrors.Errorf(ruleerrors.ErrBadBlock, "coinbase of block %s has no outputs", node.hash)
	}
	minerScript := coinbase.TxOut[0].PkScript

	if c.config.EnforceLicenses {
		round := c.roundState(height, node.timestamp())
		if !c.licenses.CanMine(minerScript, height, round) {
			return ruleerrors.Errorf(ruleerrors.ErrBadBlock, "miner %x has no license quota left at height %d",
				licenses.MinerKey(minerScript), height)
		}
	}

	stagingArea := staging.NewArea()
	c.utxoSet.StartBlock(stagingArea, &node.hash)
	c.ledger.StartBlock(stagingArea, &node.hash, height)
	c.fees.StartBlock(stagingArea, &node.hash, height)
	c.licenses.StartBlock(stagingArea, &node.hash)

	var totalFees int64
	for _, tx := range block.Transactions[1:] {
		fee, err := c.connectTransaction(stagingArea, tx, height, minerScript)
		if err != nil {
			log.Tracef("Rejected transaction: %s", spew.Sdump(tx))
			return err
		}
		totalFees += fee
	}

	matured, err := c.scheduler.MatureAt(stagingArea, height)
	if err != nil {
		return err
	}
	for _, alert := range matured {
		c.utxoSet.AddTxOuts(stagingArea, alert.Alert.Tx, height, false)
		c.licenses.HandleTx(stagingArea, alert.Alert.Tx, alert.PrevOuts, height)
	}

	err = feeattribution.CheckCoinbasePayouts(coinbase, maturation.Payouts(matured))
	if err != nil {
		return err
	}
	maxReward := netparams.CalcBlockSubsidy(height) + totalFees
	if coinbase.TxOut[0].Value > maxReward {
		return ruleerrors.Errorf(ruleerrors.ErrBadBlock, "coinbase pays %d which is more than expected value of %d",
			coinbase.TxOut[0].Value, maxReward)
	}
	c.utxoSet.AddTxOuts(stagingArea, coinbase, height, true)
	c.licenses.HandleRoundEnd(stagingArea, height)

	shard := c.stagingShard(stagingArea)
	shard.newBlocks = append(shard.newBlocks, node)
	shard.newTip = node
	return staging.CommitAllChanges(c.db, stagingArea)
}

// connectTransaction stages tx as part of the block at height and returns
// the fee the block's miner may claim for it. Alert fees are not claimable
// by the confirming block; they are paid out when the alert matures.
func (c *Chain) connectTransaction(stagingArea *staging.Area, tx *wire.MsgTx, height uint32,
	minerScript []byte) (int64, error) {

	txID := tx.TxHash()
	outputs := c.stagedOutputs(stagingArea)
	result, err := classifier.New(outputs, c.ledger.ChainView(stagingArea)).Classify(tx)
	if err != nil {
		return 0, err
	}

	var prevOuts []*wire.TxOut
	if result.Kind == model.KindRecovery {
		prevOuts, err = c.recoveryPrevOuts(stagingArea, tx, result, height)
	} else {
		prevOuts, err = c.spendInputs(stagingArea, tx, height)
	}
	if err != nil {
		return 0, err
	}
	fee, err := CheckTransactionAmounts(tx, prevOuts)
	if err != nil {
		return 0, err
	}
	err = VerifyScripts(tx, prevOuts, c.sigCache)
	if err != nil {
		return 0, err
	}

	source := result.Source.UnwrapOr(model.SourceAddress{})
	switch result.Kind {
	case model.KindAlert:
		err = c.ledger.ConfirmAlert(stagingArea, tx, source, prevOuts, fee, minerScript)
		if err != nil {
			return 0, err
		}
		err = c.fees.Attribute(stagingArea, txID, fee, minerScript)
		if err != nil {
			return 0, err
		}
		// License announcements of an alert apply once it matures.
		return 0, nil

	case model.KindInstant:
		err = c.ledger.FinalizeInstant(stagingArea, tx, source, prevOuts)
		if err != nil {
			return 0, err
		}

	case model.KindRecovery:
		alertTxIDs := make([]chainhash.Hash, len(result.Alerts))
		for i, alert := range result.Alerts {
			alertTxIDs[i] = alert.TxID
		}
		err = c.ledger.Recover(stagingArea, txID, alertTxIDs)
		if err != nil {
			return 0, err
		}
		for _, alertTxID := range alertTxIDs {
			err = c.fees.Forfeit(stagingArea, alertTxID)
			if err != nil {
				return 0, err
			}
		}
	}

	c.utxoSet.AddTxOuts(stagingArea, tx, height, false)
	c.licenses.HandleTx(stagingArea, tx, prevOuts, height)
	return fee, nil
}

// spendInputs stages the removal of the outputs tx spends and returns them
// in input order.
func (c *Chain) spendInputs(stagingArea *staging.Area, tx *wire.MsgTx, height uint32) ([]*wire.TxOut, error) {
	prevOuts := make([]*wire.TxOut, len(tx.TxIn))
	for i, txIn := range tx.TxIn {
		entry, err := c.utxoSet.Spend(stagingArea, txIn.PreviousOutPoint)
		if err != nil {
			return nil, errors.Wrapf(err, "transaction %s", tx.TxHash())
		}
		err = CheckCoinbaseMaturity(entry, txIn.PreviousOutPoint, height, c.params.CoinbaseMaturity)
		if err != nil {
			return nil, err
		}
		prevOuts[i] = entry.TxOut()
	}
	return prevOuts, nil
}

// recoveryPrevOuts returns the outputs a recovery reclaims. They left the
// UTXO set when the recovered alerts confirmed and are kept by the ledger.
func (c *Chain) recoveryPrevOuts(stagingArea *staging.Area, tx *wire.MsgTx, result *classifier.Result,
	height uint32) ([]*wire.TxOut, error) {

	for _, alert := range result.Alerts {
		if alert.State == model.StateConfirmedAlert && !c.scheduler.IsRecoverable(alert.ConfirmHeight, height) {
			return nil, ruleerrors.Errorf(ruleerrors.ErrAlreadyMatured,
				"alert %s confirmed at height %d cannot be recovered at height %d",
				alert.TxID, alert.ConfirmHeight, height)
		}
	}
	view := c.ledger.ChainView(stagingArea)
	prevOuts := make([]*wire.TxOut, len(tx.TxIn))
	for i, txIn := range tx.TxIn {
		entry, err := view.Entry(txIn.PreviousOutPoint).UnwrapOrErr(
			ruleerrors.Errorf(ruleerrors.ErrRecoveryInputsNotSpent, "input %s is not spent by an alert",
				txIn.PreviousOutPoint))
		if err != nil {
			return nil, err
		}
		prevOut := entry.PrevOut
		prevOuts[i] = &prevOut
	}
	return prevOuts, nil
}

// roundState summarizes the blocks of the active chain in the mining round
// of a candidate block at height with the given timestamp.
func (c *Chain) roundState(height uint32, timestamp time.Time) *licenses.RoundState {
	round := &licenses.RoundState{MinedBy: make(map[string]int)}
	start := c.licenses.RoundStart(height)
	previous := timestamp
	for h := height; h > start; h-- {
		node := c.active[h-1]
		gap := previous.Sub(node.timestamp())
		if gap > round.LongestGap {
			round.LongestGap = gap
		}
		previous = node.timestamp()
		minerScript := node.block.Transactions[0].TxOut[0].PkScript
		round.MinedBy[string(licenses.MinerKey(minerScript))]++
	}
	return round
}

// CanMineNext returns whether a block paying minerScript with the given
// timestamp may extend the tip. It always may when licenses are not
// enforced.
func (c *Chain) CanMineNext(minerScript []byte, timestamp time.Time) bool {
	if !c.config.EnforceLicenses {
		return true
	}
	height := c.tip.height + 1
	return c.licenses.CanMine(minerScript, height, c.roundState(height, timestamp))
}
