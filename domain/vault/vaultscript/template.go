package vaultscript

import (
	"bytes"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
)

// TemplateType distinguishes the two vault address kinds.
type TemplateType uint8

// Template types.
const (
	TemplateAlert TemplateType = iota + 1
	TemplateInstant
)

func (t TemplateType) String() string {
	switch t {
	case TemplateAlert:
		return "vaultalert"
	case TemplateInstant:
		return "vaultinstant"
	}
	return "unknown"
}

// Template is a vault witness script described by its keys. Alert templates
// have no instant key.
type Template struct {
	Type        TemplateType
	OwnerKey    *btcec.PublicKey
	InstantKey  *btcec.PublicKey
	RecoveryKey *btcec.PublicKey
}

// NewAlertTemplate returns the alert template of the given keys.
func NewAlertTemplate(owner, recovery *btcec.PublicKey) *Template {
	return &Template{Type: TemplateAlert, OwnerKey: owner, RecoveryKey: recovery}
}

// NewInstantTemplate returns the instant template of the given keys.
func NewInstantTemplate(owner, instant, recovery *btcec.PublicKey) *Template {
	return &Template{Type: TemplateInstant, OwnerKey: owner, InstantKey: instant, RecoveryKey: recovery}
}

// Script returns the witness script of the template.
//
// Alert:
//
//	OP_IF 1 <owner> 1 OP_CHECKMULTISIG
//	OP_ELSE 1 <recovery> 1 OP_CHECKMULTISIG OP_ENDIF
//
// Instant:
//
//	OP_IF 1 <owner> 1 OP_CHECKMULTISIG
//	OP_ELSE
//	  OP_IF 2 <owner> <instant> 2 OP_CHECKMULTISIG
//	  OP_ELSE 2 <instant> <recovery> 2 OP_CHECKMULTISIG OP_ENDIF
//	OP_ENDIF
func (t *Template) Script() ([]byte, error) {
	if t.OwnerKey == nil || t.RecoveryKey == nil {
		return nil, ruleerrors.Errorf(ruleerrors.ErrTemplateMismatch, "template is missing owner or recovery key")
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_IF)
	addMultiSig(builder, 1, t.OwnerKey)
	builder.AddOp(txscript.OP_ELSE)

	switch t.Type {
	case TemplateAlert:
		addMultiSig(builder, 1, t.RecoveryKey)
	case TemplateInstant:
		if t.InstantKey == nil {
			return nil, ruleerrors.Errorf(ruleerrors.ErrTemplateMismatch, "instant template is missing the instant key")
		}
		builder.AddOp(txscript.OP_IF)
		addMultiSig(builder, 2, t.OwnerKey, t.InstantKey)
		builder.AddOp(txscript.OP_ELSE)
		addMultiSig(builder, 2, t.InstantKey, t.RecoveryKey)
		builder.AddOp(txscript.OP_ENDIF)
	default:
		return nil, ruleerrors.Errorf(ruleerrors.ErrTemplateMismatch, "unknown template type %d", t.Type)
	}

	builder.AddOp(txscript.OP_ENDIF)
	return builder.Script()
}

func addMultiSig(builder *txscript.ScriptBuilder, required int64, keys ...*btcec.PublicKey) {
	builder.AddInt64(required)
	for _, key := range keys {
		builder.AddData(key.SerializeCompressed())
	}
	builder.AddInt64(int64(len(keys)))
	builder.AddOp(txscript.OP_CHECKMULTISIG)
}

// ScriptHash returns sha256 of the witness script, the P2WSH program.
func (t *Template) ScriptHash() ([32]byte, error) {
	script, err := t.Script()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(script), nil
}

// Equal returns whether both templates describe the same script.
func (t *Template) Equal(other *Template) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Type == other.Type &&
		keysEqual(t.OwnerKey, other.OwnerKey) &&
		keysEqual(t.InstantKey, other.InstantKey) &&
		keysEqual(t.RecoveryKey, other.RecoveryKey)
}

func keysEqual(a, b *btcec.PublicKey) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IsEqual(b)
}

// ParseTemplate recognizes script as one of the vault templates.
// Anything else yields ErrTemplateMismatch.
func ParseTemplate(script []byte) (*Template, error) {
	var keys []*btcec.PublicKey
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		data := tokenizer.Data()
		if len(data) != btcec.PubKeyBytesLenCompressed {
			continue
		}
		key, err := btcec.ParsePubKey(data)
		if err != nil {
			return nil, ruleerrors.Wrap(ruleerrors.ErrTemplateMismatch, err)
		}
		keys = append(keys, key)
	}
	if err := tokenizer.Err(); err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.ErrTemplateMismatch, err)
	}

	var candidate *Template
	switch len(keys) {
	case 2:
		candidate = NewAlertTemplate(keys[0], keys[1])
	case 5:
		// owner, then owner and instant, then instant and recovery
		candidate = NewInstantTemplate(keys[0], keys[2], keys[4])
	default:
		return nil, ruleerrors.Errorf(ruleerrors.ErrTemplateMismatch, "script carries %d keys", len(keys))
	}

	expected, err := candidate.Script()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(expected, script) {
		return nil, ruleerrors.Errorf(ruleerrors.ErrTemplateMismatch, "script is not a vault template")
	}
	return candidate, nil
}

// Matches returns ErrTemplateMismatch unless script is exactly the script
// of t.
func (t *Template) Matches(script []byte) error {
	parsed, err := ParseTemplate(script)
	if err != nil {
		return err
	}
	if !parsed.Equal(t) {
		return ruleerrors.Errorf(ruleerrors.ErrTemplateMismatch, "script keys differ from the address keys")
	}
	return nil
}
