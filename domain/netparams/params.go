package netparams

import (
	"encoding/hex"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// DefaultAlertMaturity is the number of blocks an alert transaction stays
// recoverable after its confirming block.
const DefaultAlertMaturity = 144

// Params defines a vault network by its parameters.
type Params struct {
	// Name is the human-readable name of the network.
	Name string

	// Net holds the underlying bitcoin network parameters: address
	// encodings, genesis block and default ports.
	Net *chaincfg.Params

	// AlertMaturity is the number of blocks after which a confirmed alert
	// transaction becomes final unless recovered.
	AlertMaturity uint32

	// CoinbaseMaturity is the number of blocks required before newly mined
	// coins can be spent.
	CoinbaseMaturity uint32

	// MiningRoundSize is the number of blocks in one miner license round.
	MiningRoundSize uint32

	// FirstMiningRoundHeight is the height from which license rounds are
	// counted.
	FirstMiningRoundHeight uint32

	// MaxClosedRoundTime is the time gap between consecutive blocks after
	// which a closed license round opens to every licensed miner.
	MaxClosedRoundTime time.Duration

	// LicenseIssuerScript is the script whose spends carry miner license
	// announcements.
	LicenseIssuerScript []byte
}

func mustDecodeHex(s string) []byte {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return decoded
}

func licenseIssuerScript(scriptHash []byte) []byte {
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(scriptHash).
		AddOp(txscript.OP_EQUAL).
		Script()
	if err != nil {
		panic(err)
	}
	return script
}

var defaultLicenseIssuerScript = licenseIssuerScript(mustDecodeHex("1ce8c0d99a03210c680ca2c56ff71c332d39f237"))

// MainnetParams defines the network parameters for the main network.
var MainnetParams = Params{
	Name:                   "mainnet",
	Net:                    &chaincfg.MainNetParams,
	AlertMaturity:          DefaultAlertMaturity,
	CoinbaseMaturity:       100,
	MiningRoundSize:        100,
	FirstMiningRoundHeight: 50000,
	MaxClosedRoundTime:     8 * time.Hour,
	LicenseIssuerScript:    defaultLicenseIssuerScript,
}

// TestnetParams defines the network parameters for the test network.
var TestnetParams = Params{
	Name:                   "testnet",
	Net:                    &chaincfg.TestNet3Params,
	AlertMaturity:          DefaultAlertMaturity,
	CoinbaseMaturity:       100,
	MiningRoundSize:        100,
	FirstMiningRoundHeight: 50000,
	MaxClosedRoundTime:     8 * time.Hour,
	LicenseIssuerScript:    defaultLicenseIssuerScript,
}

// RegressionNetParams defines the network parameters for the regression
// test network, where blocks are generated on demand.
var RegressionNetParams = Params{
	Name:                   "regtest",
	Net:                    &chaincfg.RegressionNetParams,
	AlertMaturity:          DefaultAlertMaturity,
	CoinbaseMaturity:       100,
	MiningRoundSize:        100,
	FirstMiningRoundHeight: 0,
	MaxClosedRoundTime:     8 * time.Hour,
	LicenseIssuerScript:    defaultLicenseIssuerScript,
}
