package arcade

import (
	"math/big"
)

// BasisPoints is the denominator of fee rates.
const BasisPoints = 10_000

// SplitFee splits payment into the protocol fee, rounded down, and the
// operator share. The rounding remainder goes to the operator, and the two
// parts always sum to payment.
func SplitFee(payment *big.Int, feeBps uint64) (protocolFee, operatorShare *big.Int) {
	if payment == nil || payment.Sign() <= 0 {
		return new(big.Int), new(big.Int)
	}
	protocolFee = new(big.Int).Mul(payment, new(big.Int).SetUint64(feeBps))
	protocolFee.Quo(protocolFee, big.NewInt(BasisPoints))
	operatorShare = new(big.Int).Sub(payment, protocolFee)
	return protocolFee, operatorShare
}

// TicketsFor returns floor(maxTickets * score / maxScore), capped at
// maxTickets. A score of 0 or a maxScore of 0 yields nothing.
func TicketsFor(maxTickets, score, maxScore uint64) uint64 {
	if maxScore == 0 || score == 0 || maxTickets == 0 {
		return 0
	}
	if score >= maxScore {
		return maxTickets
	}
	n := new(big.Int).Mul(new(big.Int).SetUint64(maxTickets), new(big.Int).SetUint64(score))
	n.Quo(n, new(big.Int).SetUint64(maxScore))
	return n.Uint64()
}

// ApplyAdjustment subtracts a game's flat adjustment, flooring at zero.
func ApplyAdjustment(amount, adjustment uint64) uint64 {
	if adjustment >= amount {
		return 0
	}
	return amount - adjustment
}
