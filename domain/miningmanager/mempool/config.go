package mempool

import (
	"github.com/btcsuite/btcd/btcutil"
)

const (
	defaultMaximumTransactionCount = 1_000_000
)

// Config represents a mempool configuration
type Config struct {
	MaximumTransactionCount    int
	AcceptNonStandard          bool
	MaximumTransactionVersion  int32
	MinimumRelayTransactionFee btcutil.Amount
}

// DefaultConfig returns the default mempool configuration
func DefaultConfig() *Config {
	return &Config{
		MaximumTransactionCount:    defaultMaximumTransactionCount,
		AcceptNonStandard:          false,
		MaximumTransactionVersion:  DefaultMaxTxVersion,
		MinimumRelayTransactionFee: DefaultMinRelayTxFee,
	}
}
