package blocktemplatebuilder

import (
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/chain"
	"github.com/sashabeton/bitcoinvault/domain/licenses"
	"github.com/sashabeton/bitcoinvault/domain/miningmanager/model"
	"github.com/sashabeton/bitcoinvault/domain/netparams"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	vaultmodel "github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/infrastructure/logger"
)

// CoinbaseFlags is added to the coinbase script of every generated block.
const CoinbaseFlags = "/bitcoinvault/"

// blockTemplateBuilder creates block templates for a miner to consume
type blockTemplateBuilder struct {
	chain   *chain.Chain
	mempool model.Mempool
}

// New creates a new blockTemplateBuilder
func New(chain *chain.Chain, mempool model.Mempool) model.BlockTemplateBuilder {
	return &blockTemplateBuilder{
		chain:   chain,
		mempool: mempool,
	}
}

// BuildBlockTemplate creates a block extending the current tip that mines
// every mempool transaction in arrival order. The coinbase pays the subsidy
// and the ordinary fees to payToScript, followed by the fees of the alerts
// maturing in the block, paid to the miners that confirmed them.
func (btb *blockTemplateBuilder) BuildBlockTemplate(payToScript []byte, extraNonce uint64) (*wire.MsgBlock, error) {
	onEnd := logger.LogAndMeasureExecutionTime(log, "BuildBlockTemplate")
	defer onEnd()

	height := btb.chain.TipHeight() + 1
	tip := btb.chain.Tip()
	timestamp := time.Unix(time.Now().Unix(), 0)
	if !timestamp.After(tip.Header.Timestamp) {
		timestamp = tip.Header.Timestamp.Add(time.Second)
	}

	if !btb.chain.CanMineNext(payToScript, timestamp) {
		return nil, ruleerrors.Errorf(ruleerrors.ErrBadBlock, "miner %x has no license quota left at height %d",
			licenses.MinerKey(payToScript), height)
	}

	candidates := btb.mempool.BlockCandidates()
	transactions := make([]*wire.MsgTx, 0, len(candidates)+1)
	recovered := make(map[chainhash.Hash]struct{})
	var totalFees int64
	for _, candidate := range candidates {
		transactions = append(transactions, candidate.Transaction)
		switch candidate.Kind {
		case vaultmodel.KindAlert:
			// Alert fees are paid when the alert matures.
		case vaultmodel.KindRecovery:
			for _, alertTxID := range candidate.Alerts {
				recovered[alertTxID] = struct{}{}
			}
			totalFees += candidate.Fee
		default:
			totalFees += candidate.Fee
		}
	}

	payouts := btb.chain.Scheduler().ExpectedPayouts(height, recovered)
	reward := netparams.CalcBlockSubsidy(height) + totalFees
	coinbase, err := createCoinbaseTx(payToScript, height, extraNonce, reward, payouts)
	if err != nil {
		return nil, err
	}
	transactions = append([]*wire.MsgTx{coinbase}, transactions...)

	utilTransactions := make([]*btcutil.Tx, len(transactions))
	for i, transaction := range transactions {
		utilTransactions[i] = btcutil.NewTx(transaction)
	}
	merkles := blockchain.BuildMerkleTreeStore(utilTransactions, false)

	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			PrevBlock:  btb.chain.TipHash(),
			MerkleRoot: *merkles[len(merkles)-1],
			Timestamp:  timestamp,
			Bits:       btb.chain.Params().Net.PowLimitBits,
		},
		Transactions: transactions,
	}
	log.Debugf("Created block template at height %d with %d transactions, %d matured alert payouts "+
		"and a reward of %d", height, len(candidates), len(payouts), reward)
	return block, nil
}

// standardCoinbaseScript returns a standard script suitable for use as the
// signature script of the coinbase transaction of a new block. In
// particular, it starts with the block height that is required by version 2
// blocks and adds the extra nonce as well as additional coinbase flags.
func standardCoinbaseScript(nextBlockHeight uint32, extraNonce uint64) ([]byte, error) {
	return txscript.NewScriptBuilder().AddInt64(int64(nextBlockHeight)).
		AddInt64(int64(extraNonce)).AddData([]byte(CoinbaseFlags)).
		Script()
}

// createCoinbaseTx returns a coinbase transaction paying reward to
// payToScript followed by the given payouts.
func createCoinbaseTx(payToScript []byte, nextBlockHeight uint32, extraNonce uint64, reward int64,
	payouts []*wire.TxOut) (*wire.MsgTx, error) {

	if len(payToScript) == 0 {
		return nil, errors.New("the coinbase must pay to a non-empty script")
	}
	coinbaseScript, err := standardCoinbaseScript(nextBlockHeight, extraNonce)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		// Coinbase transactions have no inputs, so previous outpoint is
		// zero hash and max index.
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex),
		SignatureScript: coinbaseScript,
		Sequence:        wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{
		Value:    reward,
		PkScript: payToScript,
	})
	for _, payout := range payouts {
		tx.AddTxOut(payout)
	}
	return tx, nil
}
