package chain

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
)

// VaultSource returns the source address of an input spending an output
// with script pkScript, if the input spends a vault output.
func VaultSource(pkScript []byte, txIn *wire.TxIn) fn.Option[model.SourceAddress] {
	template, _, ok := vaultscript.MatchInput(pkScript, txIn.SignatureScript, txIn.Witness)
	if !ok {
		return fn.None[model.SourceAddress]()
	}
	source, err := model.SourceOf(template)
	if err != nil {
		return fn.None[model.SourceAddress]()
	}
	return fn.Some(source)
}

// stagedOutputs resolves previous outputs as staged by the block being
// connected. Outputs consumed by recorded alerts are resolved from the
// ledger, which keeps them for recoveries.
type stagedOutputs struct {
	chain       *Chain
	stagingArea *staging.Area
}

func (c *Chain) stagedOutputs(stagingArea *staging.Area) *stagedOutputs {
	return &stagedOutputs{chain: c, stagingArea: stagingArea}
}

func (o *stagedOutputs) prevOut(outpoint wire.OutPoint) (*wire.TxOut, bool) {
	if entry, ok := o.chain.utxoSet.StagedEntry(o.stagingArea, outpoint); ok {
		return entry.TxOut(), true
	}
	entry := o.chain.ledger.ChainView(o.stagingArea).Entry(outpoint)
	if entry.IsNone() {
		return nil, false
	}
	prevOut := entry.UnwrapOr(nil).PrevOut
	return &prevOut, true
}

func (o *stagedOutputs) VaultOutput(outpoint wire.OutPoint, txIn *wire.TxIn) fn.Option[model.SourceAddress] {
	prevOut, ok := o.prevOut(outpoint)
	if !ok {
		return fn.None[model.SourceAddress]()
	}
	return VaultSource(prevOut.PkScript, txIn)
}
