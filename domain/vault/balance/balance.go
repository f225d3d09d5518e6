// Package balance computes the wallet balance views over a snapshot of the
// outputs a wallet owns.
package balance

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind selects one of the balance views.
type Kind uint8

// Balance views.
const (
	// KindRegular sums outputs on non-vault scripts.
	KindRegular Kind = iota

	// KindAlert sums outputs on vault scripts of either address type.
	// Both are spendable through the alert path.
	KindAlert

	// KindInstant sums outputs on instant address scripts.
	KindInstant
)

var kindStrings = map[Kind]string{
	KindRegular: "regular",
	KindAlert:   "alert",
	KindInstant: "instant",
}

func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Kind (%d)", uint8(k))
}

// AddressKind is the kind of script an output pays to.
type AddressKind uint8

// Address kinds.
const (
	AddressRegular AddressKind = iota
	AddressAlert
	AddressInstant
)

// Output is an unspent output owned by the wallet.
type Output struct {
	Value   int64
	Address AddressKind

	// Confirmed outputs count their confirmations from Height: the height
	// of the confirming block, or the maturation height for the outputs
	// of an alert.
	Confirmed bool
	Height    uint32

	IsCoinbase bool

	// FromWallet marks unconfirmed outputs of transactions the wallet
	// funded itself, including confirmed alerts that have not matured.
	FromWallet bool
}

// AnyLabel is the only label balance queries accept.
const AnyLabel = "*"

// ErrLabelUnsupported is returned for balance queries scoped to a label.
var ErrLabelUnsupported = errors.New("dummy first argument must be excluded or set to \"*\"")

// CheckLabel validates the label argument of a balance query. An empty
// label stands for an omitted argument.
func CheckLabel(label string) error {
	if label != "" && label != AnyLabel {
		return errors.Wrapf(ErrLabelUnsupported, "label %q", label)
	}
	return nil
}

// Accountant sums balance views.
type Accountant struct {
	coinbaseMaturity uint32
}

// NewAccountant returns an accountant that withholds coinbase outputs
// until they can be spent in the next block, which takes more than
// coinbaseMaturity confirmations.
func NewAccountant(coinbaseMaturity uint32) *Accountant {
	return &Accountant{coinbaseMaturity: coinbaseMaturity}
}

// Confirmations returns the confirmation count of output at tip height.
func Confirmations(output *Output, tip uint32) uint32 {
	if !output.Confirmed || output.Height > tip {
		return 0
	}
	return tip - output.Height + 1
}

// Balance returns the sum of the outputs in the given view with at least
// minConf confirmations at tip height. A minConf of 0 adds the unconfirmed
// outputs of the wallet's own transactions.
func (a *Accountant) Balance(outputs []*Output, kind Kind, minConf uint32, tip uint32) int64 {
	var sum int64
	for _, output := range outputs {
		if !matches(output.Address, kind) {
			continue
		}
		confirmations := Confirmations(output, tip)
		if output.IsCoinbase && confirmations <= a.coinbaseMaturity {
			continue
		}
		if confirmations == 0 && !output.FromWallet {
			continue
		}
		if confirmations < minConf {
			continue
		}
		sum += output.Value
	}
	return sum
}

func matches(address AddressKind, kind Kind) bool {
	switch kind {
	case KindRegular:
		return address == AddressRegular
	case KindAlert:
		return address == AddressAlert || address == AddressInstant
	case KindInstant:
		return address == AddressInstant
	}
	return false
}
