package ruleerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind identifies the class of a rule violation.
type ErrorKind int

// These constants identify the kinds of rule violations.
const (
	KindMissingKey ErrorKind = iota + 1
	KindTemplateMismatch
	KindMixedAlertSources
	KindNonAlertInputs
	KindRecoveryInputMismatch
	KindRecoveryInputsNotSpent
	KindAlreadyMatured
	KindMempoolConflict
	KindInputsSpent
	KindInsufficientFunds
	KindUnknownAddressType
	KindScriptVerify
	KindMissingInputs
	KindBadCoinbaseFeePayout
	KindInvalidTransactionType
	KindLedgerCorruption
	KindBadTransaction
	KindBadBlock
)

var kindStrings = map[ErrorKind]string{
	KindMissingKey:             "MissingKey",
	KindTemplateMismatch:       "TemplateMismatch",
	KindMixedAlertSources:      "MixedAlertSources",
	KindNonAlertInputs:         "NonAlertInputs",
	KindRecoveryInputMismatch:  "RecoveryInputMismatch",
	KindRecoveryInputsNotSpent: "RecoveryInputsNotSpent",
	KindAlreadyMatured:         "AlreadyMatured",
	KindMempoolConflict:        "MempoolConflict",
	KindInputsSpent:            "InputsSpent",
	KindInsufficientFunds:      "InsufficientFunds",
	KindUnknownAddressType:     "UnknownAddressType",
	KindScriptVerify:           "ScriptVerify",
	KindMissingInputs:          "MissingInputs",
	KindBadCoinbaseFeePayout:   "BadCoinbaseFeePayout",
	KindInvalidTransactionType: "InvalidTransactionType",
	KindLedgerCorruption:       "LedgerCorruption",
	KindBadTransaction:         "BadTransaction",
	KindBadBlock:               "BadBlock",
}

func (k ErrorKind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ErrorKind (%d)", int(k))
}

// These values are used to identify a specific RuleError. Each carries the
// reject reason reported to clients.
var (
	// ErrMissingKey indicates a vault witness lacks a signature its branch
	// needs, has a stack that does not match the branch, or mixes signing
	// roles across inputs.
	ErrMissingKey = newRuleError(KindMissingKey, "bad-txns-vault-missing-key")

	// ErrTemplateMismatch indicates a witness script is not a vault template
	// or does not match the keys it was checked against.
	ErrTemplateMismatch = newRuleError(KindTemplateMismatch, "bad-txns-vault-template-mismatch")

	// ErrMixedAlertSources indicates the vault inputs of a transaction come
	// from more than one source address.
	ErrMixedAlertSources = newRuleError(KindMixedAlertSources, "bad-tx-alert-type")

	// ErrNonAlertInputs indicates a transaction mixes vault and non-vault
	// inputs.
	ErrNonAlertInputs = newRuleError(KindNonAlertInputs,
		"Produced invalid transaction type, type vaultalert was expected")

	// ErrRecoveryInputMismatch indicates a recovery does not consume exactly
	// the inputs of the alerts it targets.
	ErrRecoveryInputMismatch = newRuleError(KindRecoveryInputMismatch, "bad-txn-recovery")

	// ErrRecoveryInputsNotSpent indicates a recovery spends an input that no
	// recorded alert spends.
	ErrRecoveryInputsNotSpent = newRuleError(KindRecoveryInputsNotSpent, "bad-txn-inputs-not-spent")

	// ErrAlreadyMatured indicates a recovery targets an alert that has
	// already matured.
	ErrAlreadyMatured = newRuleError(KindAlreadyMatured, "bad-txns-inputs-missingorspent")

	// ErrMempoolConflict indicates an input is already claimed by another
	// mempool transaction.
	ErrMempoolConflict = newRuleError(KindMempoolConflict, "txn-mempool-conflict")

	// ErrInputsSpent indicates an input was consumed by a recorded alert or
	// instant spend.
	ErrInputsSpent = newRuleError(KindInputsSpent, "bad-txn-inputs-spent")

	// ErrInsufficientFunds indicates the wallet cannot fund a spend.
	ErrInsufficientFunds = newRuleError(KindInsufficientFunds, "Insufficient funds")

	// ErrUnknownAddressType indicates an address type other than bech32 or
	// p2sh-segwit was requested.
	ErrUnknownAddressType = newRuleError(KindUnknownAddressType, "Unknown address type")

	// ErrScriptVerify indicates the script interpreter rejected an input.
	ErrScriptVerify = newRuleError(KindScriptVerify, "non-mandatory-script-verify-flag")

	// ErrMissingInputs indicates an input references an output that is not
	// in the UTXO set.
	ErrMissingInputs = newRuleError(KindMissingInputs, "bad-txns-inputs-missingorspent")

	// ErrBadCoinbaseFeePayout indicates a coinbase omits, reorders or
	// redirects the fee payout of an alert maturing in its block.
	ErrBadCoinbaseFeePayout = newRuleError(KindBadCoinbaseFeePayout, "bad-cb-alert-fee-payout")

	// ErrInvalidTransactionType indicates a signing request produced a
	// transaction of another kind than the one requested.
	ErrInvalidTransactionType = newRuleError(KindInvalidTransactionType, "Produced invalid transaction type")

	// ErrLedgerCorruption indicates the vault ledger was asked to perform a
	// transition its state does not allow. It is fatal for block connection.
	ErrLedgerCorruption = newRuleError(KindLedgerCorruption, "vault-ledger-corruption")

	// ErrBadTransaction indicates a transaction breaks a context free rule
	// such as having no inputs or spending more than it consumes.
	ErrBadTransaction = newRuleError(KindBadTransaction, "bad-txns")

	// ErrBadBlock indicates a block breaks a structural rule.
	ErrBadBlock = newRuleError(KindBadBlock, "bad-blk")
)

// RuleError identifies a rule violation. It is used to indicate that
// processing of a block or transaction failed due to one of the many
// validation rules. The caller can use errors.As to extract the RuleError
// and its Kind, or errors.Is against one of the Err values above.
type RuleError struct {
	kind   ErrorKind
	reason string
	inner  error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.inner != nil {
		return e.reason + ": " + e.inner.Error()
	}
	return e.reason
}

// Kind returns the kind of the violation.
func (e RuleError) Kind() ErrorKind {
	return e.kind
}

// Reason returns the reject reason reported to clients.
func (e RuleError) Reason() string {
	return e.reason
}

// Is reports whether target is a RuleError of the same kind.
func (e RuleError) Is(target error) bool {
	var other RuleError
	if !errors.As(target, &other) {
		return false
	}
	return other.kind == e.kind
}

// Unwrap satisfies the errors.Unwrap interface
func (e RuleError) Unwrap() error {
	return e.inner
}

// Cause satisfies the github.com/pkg/errors.Cause interface
func (e RuleError) Cause() error {
	return e.inner
}

func newRuleError(kind ErrorKind, reason string) RuleError {
	return RuleError{kind: kind, reason: reason}
}

// Errorf returns base annotated with a formatted detail message, wrapped
// with a stack trace.
func Errorf(base RuleError, format string, args ...interface{}) error {
	return errors.WithStack(RuleError{
		kind:   base.kind,
		reason: base.reason,
		inner:  errors.Errorf(format, args...),
	})
}

// Wrap returns base with err as its inner error, wrapped with a stack trace.
func Wrap(base RuleError, err error) error {
	return errors.WithStack(RuleError{
		kind:   base.kind,
		reason: base.reason,
		inner:  err,
	})
}

// KindOf returns the kind of the RuleError in err's chain, if any.
func KindOf(err error) (ErrorKind, bool) {
	var ruleErr RuleError
	if !errors.As(err, &ruleErr) {
		return 0, false
	}
	return ruleErr.kind, true
}

// IsRuleError returns whether err's chain contains a RuleError.
func IsRuleError(err error) bool {
	_, ok := KindOf(err)
	return ok
}
