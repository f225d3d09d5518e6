package vaultscript

import (
	"bytes"

	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
)

// Role is the signing branch a vault witness takes. It is one of OwnerRole,
// InstantRole, RecoveryRole or UnknownRole.
type Role interface {
	isRole()
	String() string
}

// OwnerRole is the owner-only branch. Spends through it are alerts.
type OwnerRole struct{}

// InstantRole is the owner and instant key branch of an instant template.
type InstantRole struct{}

// RecoveryRole is the recovery branch.
type RecoveryRole struct{}

// UnknownRole is a witness that selects no valid branch. Err is a rule error
// of kind MissingKey or TemplateMismatch.
type UnknownRole struct {
	Err error
}

func (OwnerRole) isRole()    {}
func (InstantRole) isRole()  {}
func (RecoveryRole) isRole() {}
func (UnknownRole) isRole()  {}

func (OwnerRole) String() string    { return "owner" }
func (InstantRole) String() string  { return "instant" }
func (RecoveryRole) String() string { return "recovery" }
func (r UnknownRole) String() string {
	if r.Err == nil {
		return "unknown"
	}
	return "unknown(" + r.Err.Error() + ")"
}

var branchTrue = []byte{0x01}

// branch describes where the signatures of a witness sit.
type branch struct {
	role Role
	sigs [][]byte
}

// ClassifySignature determines the role of a witness stack spending
// witnessScript. stack is the witness without the trailing script.
func ClassifySignature(witnessScript []byte, stack [][]byte) Role {
	template, err := ParseTemplate(witnessScript)
	if err != nil {
		return UnknownRole{Err: err}
	}
	b, err := template.selectBranch(stack)
	if err != nil {
		return UnknownRole{Err: err}
	}
	for _, sig := range b.sigs {
		if len(sig) != 0 {
			return b.role
		}
	}
	return UnknownRole{Err: ruleerrors.Errorf(ruleerrors.ErrMissingKey,
		"%s branch carries no signature", b.role)}
}

// ClassifyWitness is ClassifySignature on a full witness whose last item is
// the witness script.
func ClassifyWitness(witness [][]byte) Role {
	if len(witness) == 0 {
		return UnknownRole{Err: ruleerrors.Errorf(ruleerrors.ErrMissingKey, "empty witness")}
	}
	last := len(witness) - 1
	return ClassifySignature(witness[last], witness[:last])
}

// IsComplete returns whether witness selects a valid branch and fills every
// signature slot of it.
func IsComplete(witness [][]byte) bool {
	if len(witness) == 0 {
		return false
	}
	last := len(witness) - 1
	template, err := ParseTemplate(witness[last])
	if err != nil {
		return false
	}
	b, err := template.selectBranch(witness[:last])
	if err != nil {
		return false
	}
	for _, sig := range b.sigs {
		if len(sig) == 0 {
			return false
		}
	}
	return true
}

func (t *Template) selectBranch(stack [][]byte) (*branch, error) {
	if len(stack) == 0 {
		return nil, ruleerrors.Errorf(ruleerrors.ErrMissingKey, "empty signature stack")
	}
	top := len(stack) - 1
	outer, err := selector(stack[top])
	if err != nil {
		return nil, err
	}

	if outer {
		if len(stack) != 3 {
			return nil, stackSizeError(OwnerRole{}, 3, len(stack))
		}
		return checkDummy(&branch{role: OwnerRole{}, sigs: stack[1:2]}, stack)
	}

	if t.Type == TemplateAlert {
		if len(stack) != 3 {
			return nil, stackSizeError(RecoveryRole{}, 3, len(stack))
		}
		return checkDummy(&branch{role: RecoveryRole{}, sigs: stack[1:2]}, stack)
	}

	if len(stack) != 5 {
		return nil, ruleerrors.Errorf(ruleerrors.ErrMissingKey,
			"instant template else branch needs a stack of 5 items, got %d", len(stack))
	}
	inner, err := selector(stack[top-1])
	if err != nil {
		return nil, err
	}
	var role Role = RecoveryRole{}
	if inner {
		role = InstantRole{}
	}
	return checkDummy(&branch{role: role, sigs: stack[1:3]}, stack)
}

func selector(item []byte) (bool, error) {
	switch {
	case len(item) == 0:
		return false, nil
	case bytes.Equal(item, branchTrue):
		return true, nil
	}
	return false, ruleerrors.Errorf(ruleerrors.ErrMissingKey, "non-minimal branch selector %x", item)
}

func checkDummy(b *branch, stack [][]byte) (*branch, error) {
	if len(stack[0]) != 0 {
		return nil, ruleerrors.Errorf(ruleerrors.ErrMissingKey, "non-null multisig dummy")
	}
	return b, nil
}

func stackSizeError(role Role, expected, actual int) error {
	return ruleerrors.Errorf(ruleerrors.ErrMissingKey,
		"%s branch needs a stack of %d items, got %d", role, expected, actual)
}
