package balance

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const coin = 100000000

// minedOutputs returns the coinbase outputs of blocks 1 to count paying 175
// coins to address.
func minedOutputs(count uint32, address AddressKind) []*Output {
	outputs := make([]*Output, 0, count)
	for height := uint32(1); height <= count; height++ {
		outputs = append(outputs, &Output{
			Value:      175 * coin,
			Address:    address,
			Confirmed:  true,
			Height:     height,
			IsCoinbase: true,
		})
	}
	return outputs
}

func TestAlertBalanceWithUnconfirmedChange(t *testing.T) {
	accountant := NewAccountant(100)
	// Block 1's coinbase is spent by an alert still in the mempool.
	outputs := minedOutputs(200, AddressInstant)[1:]
	outputs = append(outputs, &Output{Value: 16499990000, Address: AddressInstant, FromWallet: true})

	tests := []struct {
		minConf  uint32
		expected int64
	}{
		{0, 1748999990000},
		{1, 17325 * coin},
		{2, 17325 * coin},
		{666, 0},
	}
	for _, test := range tests {
		balance := accountant.Balance(outputs, KindAlert, test.minConf, 200)
		if balance != test.expected {
			t.Fatalf("TestAlertBalanceWithUnconfirmedChange: minconf %d: expected %d, got %d",
				test.minConf, test.expected, balance)
		}
	}
	require.Zero(t, accountant.Balance(outputs, KindRegular, 0, 200))
	require.Equal(t, int64(1748999990000), accountant.Balance(outputs, KindInstant, 0, 200))
}

func TestUnmaturedAlertChange(t *testing.T) {
	accountant := NewAccountant(100)
	// The alert spending block 1's coinbase confirmed in block 201 and its
	// change waits for maturation.
	outputs := minedOutputs(201, AddressInstant)[1:]
	outputs = append(outputs, &Output{Value: 16499990000, Address: AddressInstant, FromWallet: true})

	require.Equal(t, int64(17664*coin+99990000), accountant.Balance(outputs, KindAlert, 0, 201))
	require.Equal(t, int64(17500*coin), accountant.Balance(outputs, KindAlert, 1, 201))
}

func TestForeignUnconfirmedOutputsAreIgnored(t *testing.T) {
	accountant := NewAccountant(100)
	outputs := []*Output{
		{Value: 10 * coin, Address: AddressRegular},
		{Value: 5 * coin, Address: AddressRegular, Confirmed: true, Height: 345},
	}
	require.Equal(t, int64(5*coin), accountant.Balance(outputs, KindRegular, 0, 345))
	require.Zero(t, accountant.Balance(outputs, KindRegular, 2, 345))
	require.Zero(t, accountant.Balance(outputs, KindAlert, 0, 345))
}

func TestCheckLabel(t *testing.T) {
	require.NoError(t, CheckLabel(""))
	require.NoError(t, CheckLabel(AnyLabel))
	err := CheckLabel("label")
	if !errors.Is(err, ErrLabelUnsupported) {
		t.Fatalf("TestCheckLabel: expected ErrLabelUnsupported, got %v", err)
	}
}
