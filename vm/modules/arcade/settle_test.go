package arcade

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		name             string
		payment          int64
		bps              uint64
		protocol, player int64
	}{
		{"ten percent", 1000, 1000, 100, 900},
		{"rounds down", 999, 1000, 99, 900},
		{"zero fee", 1000, 0, 0, 1000},
		{"full fee", 1000, BasisPoints, 1000, 0},
		{"zero payment", 0, 1000, 0, 0},
		{"dust", 1, 9999, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := require.New(t)
			fee, share := SplitFee(big.NewInt(tt.payment), tt.bps)
			r.Equal(big.NewInt(tt.protocol).String(), fee.String())
			r.Equal(big.NewInt(tt.player).String(), share.String())
			r.Equal(tt.payment, new(big.Int).Add(fee, share).Int64())
		})
	}
}

func TestTicketsFor(t *testing.T) {
	tests := []struct {
		name                        string
		maxTickets, score, maxScore uint64
		want                        uint64
	}{
		{"half score", 100, 50, 100, 50},
		{"floors", 10, 1, 3, 3},
		{"max score", 100, 100, 100, 100},
		{"zero score", 100, 0, 100, 0},
		{"no tickets configured", 0, 10, 100, 0},
		{"no overflow", math.MaxUint64, math.MaxUint64 - 1, math.MaxUint64, math.MaxUint64 - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, TicketsFor(tt.maxTickets, tt.score, tt.maxScore))
		})
	}
}

func TestApplyAdjustment(t *testing.T) {
	r := require.New(t)
	r.Equal(uint64(20), ApplyAdjustment(50, 30))
	r.Equal(uint64(0), ApplyAdjustment(50, 50))
	r.Equal(uint64(0), ApplyAdjustment(50, 80))
	r.Equal(uint64(50), ApplyAdjustment(50, 0))
}

func TestOneEtherPlay(t *testing.T) {
	r := require.New(t)
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	fee, share := SplitFee(oneEther, 500)
	r.Equal("50000000000000000", fee.String())
	r.Equal("950000000000000000", share.String())

	tickets := TicketsFor(1000, 5000, 10000)
	r.Equal(uint64(500), tickets)
	r.Zero(TicketsFor(1000, 0, 10000))
	r.Equal(uint64(0), ApplyAdjustment(tickets, 700))
}
