package ledger

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
)

// Lifecycle events. Every forward event has an inverse used when a block is
// disconnected.
const (
	eventPend      = "pend"
	eventUnpend    = "unpend"
	eventConfirm   = "confirm"
	eventUnconfirm = "unconfirm"
	eventFinalize  = "finalize"
	eventUnfinal   = "unfinalize"
	eventMature    = "mature"
	eventUnmature  = "unmature"
	eventRecover   = "recover"
	eventUnrecover = "unrecover"
)

var (
	unspent   = model.StateUnspent.String()
	pending   = model.StatePendingAlert.String()
	confirmed = model.StateConfirmedAlert.String()
	matured   = model.StateMatured.String()
	recovered = model.StateRecovered.String()
)

var lifecycleEvents = fsm.Events{
	{Name: eventPend, Src: []string{unspent}, Dst: pending},
	{Name: eventUnpend, Src: []string{pending}, Dst: unspent},
	{Name: eventConfirm, Src: []string{unspent, pending}, Dst: confirmed},
	{Name: eventUnconfirm, Src: []string{confirmed}, Dst: unspent},
	{Name: eventFinalize, Src: []string{unspent, pending}, Dst: matured},
	{Name: eventUnfinal, Src: []string{matured}, Dst: unspent},
	{Name: eventMature, Src: []string{confirmed}, Dst: matured},
	{Name: eventUnmature, Src: []string{matured}, Dst: confirmed},
	{Name: eventRecover, Src: []string{pending, confirmed}, Dst: recovered},
	{Name: eventUnrecover, Src: []string{recovered}, Dst: confirmed},
}

// inverseEvents maps a (current, prior) state pair seen while undoing a
// block to the event that performs it.
var inverseEvents = map[[2]model.State]string{
	{model.StateConfirmedAlert, model.StateUnspent}:   eventUnconfirm,
	{model.StateMatured, model.StateUnspent}:          eventUnfinal,
	{model.StateMatured, model.StateConfirmedAlert}:   eventUnmature,
	{model.StateRecovered, model.StateConfirmedAlert}: eventUnrecover,
	{model.StateRecovered, model.StateUnspent}:        eventUnrecover,
	{model.StatePendingAlert, model.StateUnspent}:     eventUnpend,
}

var stateByName = map[string]model.State{
	unspent:   model.StateUnspent,
	pending:   model.StatePendingAlert,
	confirmed: model.StateConfirmedAlert,
	matured:   model.StateMatured,
	recovered: model.StateRecovered,
}

// lifecycle validates state transitions against the transition table.
type lifecycle struct {
	machine *fsm.FSM
}

func newLifecycle() *lifecycle {
	return &lifecycle{machine: fsm.NewFSM(unspent, lifecycleEvents, fsm.Callbacks{})}
}

// transition returns the state reached from `from` by event, or
// ErrLedgerCorruption if the table has no such transition.
func (l *lifecycle) transition(from model.State, event string) (model.State, error) {
	l.machine.SetState(from.String())
	if !l.machine.Can(event) {
		return from, ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption,
			"event %s is not allowed in state %s", event, from)
	}
	err := l.machine.Event(context.Background(), event)
	if err != nil {
		return from, ruleerrors.Wrap(ruleerrors.ErrLedgerCorruption, err)
	}
	return stateByName[l.machine.Current()], nil
}

// revert checks that a record in state current may be returned to prior.
// An unspent prior and a recovered current reverts through the confirmed
// state, the path of an alert confirmed and recovered in the same block.
func (l *lifecycle) revert(current, prior model.State) error {
	event, ok := inverseEvents[[2]model.State{current, prior}]
	if !ok {
		return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption,
			"cannot revert state %s to %s", current, prior)
	}
	state, err := l.transition(current, event)
	if err != nil {
		return err
	}
	if state == prior {
		return nil
	}
	if state == model.StateConfirmedAlert && prior == model.StateUnspent {
		_, err = l.transition(state, eventUnconfirm)
		return err
	}
	return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption,
		"reverting %s reached %s instead of %s", current, state, prior)
}
