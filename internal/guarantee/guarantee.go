// Package guarantee sizes the mandatory reward-token reserve a publisher must
// deposit before an issuance may be irreversibly closed.
//
// All arithmetic is arbitrary-precision integer math. Floating point never
// appears here: any decimal formatting is a display concern and must not feed
// the sufficiency gate.
package guarantee

import "math/big"

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

// SecondsPerYear uses a 365-day year, matching the ledger's accrual math.
const SecondsPerYear = 365 * 24 * 60 * 60

// RequiredReserve is the full-year yield obligation against complete
// subscription: maxSupply × unitPriceWei × annualYieldBps / 10000.
func RequiredReserve(maxSupply, unitPriceWei *big.Int, annualYieldBps uint32) *big.Int {
	reserve := new(big.Int).Mul(maxSupply, unitPriceWei)
	reserve.Mul(reserve, big.NewInt(int64(annualYieldBps)))
	return reserve.Div(reserve, big.NewInt(BpsDenominator))
}

// IsSufficient reports whether the deposited balance covers the required
// reserve. The boundary is inclusive: deposited == required passes.
func IsSufficient(deposited, required *big.Int) bool {
	return deposited.Cmp(required) >= 0
}

// SuggestedTopUp prorates the annual obligation over elapsed seconds:
// annualYield × elapsedSeconds / secondsPerYear.
func SuggestedTopUp(maxSupply, unitPriceWei *big.Int, annualYieldBps uint32, elapsedSeconds uint64) *big.Int {
	topUp := RequiredReserve(maxSupply, unitPriceWei, annualYieldBps)
	topUp.Mul(topUp, new(big.Int).SetUint64(elapsedSeconds))
	return topUp.Div(topUp, big.NewInt(SecondsPerYear))
}

// Shortfall returns required − deposited, floored at zero.
func Shortfall(deposited, required *big.Int) *big.Int {
	if IsSufficient(deposited, required) {
		return new(big.Int)
	}
	return new(big.Int).Sub(required, deposited)
}
