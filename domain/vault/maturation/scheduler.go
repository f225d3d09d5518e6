// Package maturation turns confirmed alerts into final spends once they
// have stayed unrecovered for the alert maturity period.
package maturation

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/domain/vault/feeattribution"
	"github.com/sashabeton/bitcoinvault/domain/vault/ledger"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
)

// MaturedAlert is an alert that matured in a block, with the fee record
// the block's coinbase pays out for it and the outputs the alert spends.
type MaturedAlert struct {
	Alert    *model.AlertRecord
	Fee      *feeattribution.Record
	PrevOuts []*wire.TxOut
}

// Scheduler matures the alerts confirmed alertMaturity blocks before the
// block being connected.
type Scheduler struct {
	alertMaturity uint32
	ledger        *ledger.Ledger
	fees          *feeattribution.Ledger
}

// New returns a scheduler over the given ledgers.
func New(alertMaturity uint32, vaultLedger *ledger.Ledger, fees *feeattribution.Ledger) *Scheduler {
	return &Scheduler{
		alertMaturity: alertMaturity,
		ledger:        vaultLedger,
		fees:          fees,
	}
}

// AlertMaturity returns the number of blocks an alert stays recoverable.
func (s *Scheduler) AlertMaturity() uint32 {
	return s.alertMaturity
}

// MaturityHeight returns the height at which an alert confirmed at
// confirmHeight matures.
func (s *Scheduler) MaturityHeight(confirmHeight uint32) uint32 {
	return confirmHeight + s.alertMaturity
}

// IsRecoverable returns whether an alert confirmed at confirmHeight can
// still be recovered by a transaction mined at height.
func (s *Scheduler) IsRecoverable(confirmHeight, height uint32) bool {
	return height < s.MaturityHeight(confirmHeight)
}

// MatureAt stages the maturation of every alert confirmed at
// height-alertMaturity that is still ConfirmedAlert in stagingArea. It must
// run after the block's own transactions are staged, so that a recovery in
// the same block wins. The matured alerts are returned in confirmation
// order.
func (s *Scheduler) MatureAt(stagingArea *staging.Area, height uint32) ([]*MaturedAlert, error) {
	if height < s.alertMaturity {
		return nil, nil
	}
	confirmHeight := height - s.alertMaturity
	view := s.ledger.ChainView(stagingArea)
	var matured []*MaturedAlert
	for _, alert := range s.ledger.ConfirmedAlerts(stagingArea, confirmHeight) {
		if alert.State != model.StateConfirmedAlert {
			continue
		}
		prevOuts, err := alertPrevOuts(view, alert)
		if err != nil {
			return nil, err
		}
		err = s.ledger.Mature(stagingArea, alert.TxID)
		if err != nil {
			return nil, err
		}
		fee, err := s.fees.Pay(stagingArea, alert.TxID)
		if err != nil {
			return nil, errors.Wrapf(err, "maturing alert %s", alert.TxID)
		}
		alert.State = model.StateMatured
		alert.ResolveHeight = height
		matured = append(matured, &MaturedAlert{Alert: alert, Fee: fee, PrevOuts: prevOuts})
	}
	if len(matured) > 0 {
		log.Debugf("%d alerts confirmed at height %d matured at height %d", len(matured), confirmHeight, height)
	}
	return matured, nil
}

func alertPrevOuts(view model.EntryLookup, alert *model.AlertRecord) ([]*wire.TxOut, error) {
	prevOuts := make([]*wire.TxOut, len(alert.Tx.TxIn))
	for i, outpoint := range alert.Inputs() {
		entry, err := view.Entry(outpoint).UnwrapOrErr(
			ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption, "alert %s spends unrecorded input %s",
				alert.TxID, outpoint))
		if err != nil {
			return nil, err
		}
		prevOut := entry.PrevOut
		prevOuts[i] = &prevOut
	}
	return prevOuts, nil
}

// Payouts returns the coinbase fee outputs owed for matured.
func Payouts(matured []*MaturedAlert) []*wire.TxOut {
	records := make([]*feeattribution.Record, len(matured))
	for i, alert := range matured {
		records[i] = alert.Fee
	}
	return feeattribution.Payouts(records)
}

// ExpectedMaturations predicts, from the committed ledger, the alerts that
// mature in a block at height whose own transactions recover the alerts in
// recovered.
func (s *Scheduler) ExpectedMaturations(height uint32, recovered map[chainhash.Hash]struct{}) []*MaturedAlert {
	if height < s.alertMaturity {
		return nil
	}
	var expected []*MaturedAlert
	for _, alert := range s.ledger.AlertsConfirmedAt(height - s.alertMaturity) {
		if alert.State != model.StateConfirmedAlert {
			continue
		}
		if _, ok := recovered[alert.TxID]; ok {
			continue
		}
		fee, ok := s.fees.Record(alert.TxID)
		if !ok {
			fee = &feeattribution.Record{AlertTxID: alert.TxID}
		}
		expected = append(expected, &MaturedAlert{Alert: alert, Fee: fee})
	}
	return expected
}

// ExpectedPayouts returns the coinbase fee outputs of the alerts
// ExpectedMaturations predicts.
func (s *Scheduler) ExpectedPayouts(height uint32, recovered map[chainhash.Hash]struct{}) []*wire.TxOut {
	return Payouts(s.ExpectedMaturations(height, recovered))
}
