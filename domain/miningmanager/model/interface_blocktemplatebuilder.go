package model

import (
	"github.com/btcsuite/btcd/wire"
)

// BlockTemplateBuilder builds block templates for miners to consume
type BlockTemplateBuilder interface {
	BuildBlockTemplate(payToScript []byte, extraNonce uint64) (*wire.MsgBlock, error)
}
