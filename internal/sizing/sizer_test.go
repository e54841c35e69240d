package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dexpilot/internal/domain"
)

func TestSuggest(t *testing.T) {
	tests := []struct {
		name         string
		masterAmount float64
		cfg          domain.CopyTradingConfig
		want         float64
	}{
		{
			name:         "fixed ignores master amount",
			masterAmount: 99999,
			cfg: domain.CopyTradingConfig{
				SizingMode:        domain.SizingFixed,
				FixedPositionSize: 25,
			},
			want: 25,
		},
		{
			name:         "proportional 10 percent",
			masterAmount: 1000,
			cfg: domain.CopyTradingConfig{
				SizingMode:             domain.SizingProportional,
				ProportionalPercentage: 10,
			},
			want: 100,
		},
		{
			name:         "proportional default percentage",
			masterAmount: 1000,
			cfg: domain.CopyTradingConfig{
				SizingMode: domain.SizingProportional,
			},
			want: 100,
		},
		{
			name:         "proportional clamped by max position size",
			masterAmount: 1000,
			cfg: domain.CopyTradingConfig{
				SizingMode:             domain.SizingProportional,
				ProportionalPercentage: 10,
				MaxPositionSize:        50,
			},
			want: 50,
		},
		{
			name:         "clamped by allocated capital",
			masterAmount: 1000,
			cfg: domain.CopyTradingConfig{
				SizingMode:             domain.SizingProportional,
				ProportionalPercentage: 10,
				MaxPositionSize:        80,
				AllocatedCapital:       30,
			},
			want: 30,
		},
		{
			name:         "kelly falls back to flat 10 percent",
			masterAmount: 500,
			cfg: domain.CopyTradingConfig{
				SizingMode: domain.SizingKelly,
			},
			want: 50,
		},
		{
			name:         "custom falls back to flat 10 percent",
			masterAmount: 500,
			cfg: domain.CopyTradingConfig{
				SizingMode: domain.SizingCustom,
			},
			want: 50,
		},
		{
			name:         "fixed still clamped",
			masterAmount: 10,
			cfg: domain.CopyTradingConfig{
				SizingMode:        domain.SizingFixed,
				FixedPositionSize: 200,
				MaxPositionSize:   150,
			},
			want: 150,
		},
		{
			name:         "negative master amount yields zero",
			masterAmount: -10,
			cfg: domain.CopyTradingConfig{
				SizingMode: domain.SizingProportional,
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Suggest(tt.masterAmount, &tt.cfg)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
