package testutils

import (
	"testing"

	"github.com/sashabeton/bitcoinvault/domain/netparams"
)

// ForAllNets runs the passed testFunc with all available networks
func ForAllNets(t *testing.T, testFunc func(*testing.T, *netparams.Params)) {
	allParams := []netparams.Params{
		netparams.MainnetParams,
		netparams.TestnetParams,
		netparams.RegressionNetParams,
	}

	for _, params := range allParams {
		params := params
		t.Run(params.Name, func(t *testing.T) {
			t.Parallel()
			t.Logf("Running test for %s", params.Name)
			testFunc(t, &params)
		})
	}
}
