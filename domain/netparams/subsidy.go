package netparams

import "github.com/btcsuite/btcd/btcutil"

const (
	initialSubsidy          int64 = 175 * btcutil.SatoshiPerBitcoin
	bootstrapStepSubsidy    int64 = 25 * btcutil.SatoshiPerBitcoin
	bootstrapFirstPeriod          = 29950
	bootstrapPeriodLength         = 26600
	bootstrapStepCount            = 6
	bootstrapHalvingPeriods       = 2
	subsidyHalvingPeriod          = 210000
)

// bootstrapEnd is the first height after the expedited schedule.
const bootstrapEnd = bootstrapFirstPeriod + (bootstrapStepCount+bootstrapHalvingPeriods)*bootstrapPeriodLength

// CalcBlockSubsidy returns the subsidy amount, in satoshi, a block at the
// provided height may claim.
//
// The first 29950 blocks pay 175 coins. Every following period of 26600
// blocks pays 25 coins less until the reward reaches 25 coins, and the two
// periods after that pay 12.5 and 6.25 coins. From height 242750 the reward
// is 3.125 coins and halves every 210000 blocks.
func CalcBlockSubsidy(height uint32) int64 {
	if height < bootstrapFirstPeriod {
		return initialSubsidy
	}
	period := (height - bootstrapFirstPeriod) / bootstrapPeriodLength
	if period < bootstrapStepCount {
		return initialSubsidy - int64(period+1)*bootstrapStepSubsidy
	}
	if height < bootstrapEnd {
		return bootstrapStepSubsidy >> (period - bootstrapStepCount + 1)
	}

	halvings := bootstrapHalvingPeriods + 1 + (height-bootstrapEnd)/subsidyHalvingPeriod
	if halvings >= 64 {
		return 0
	}
	return bootstrapStepSubsidy >> halvings
}
