package strategy

import (
	"testing"

	"perpRiskBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid config", cfg: DefaultConfig()},
		{name: "zero period", cfg: Config{FastEMAPeriod: 0, SlowEMAPeriod: 50}, wantErr: true},
		{name: "fast not below slow", cfg: Config{FastEMAPeriod: 50, SlowEMAPeriod: 50}, wantErr: true},
		{name: "negative rsi", cfg: Config{FastEMAPeriod: 5, SlowEMAPeriod: 10, RSIPeriod: -1}, wantErr: true},
		{name: "with rsi filter", cfg: Config{FastEMAPeriod: 5, SlowEMAPeriod: 10, RSIPeriod: 14, RSIOverbought: 70, RSIOversold: 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestRequiredDataPoints(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 60, s.RequiredDataPoints())

	s, err = New(Config{FastEMAPeriod: 5, SlowEMAPeriod: 10, RSIPeriod: 14})
	require.NoError(t, err)
	assert.Equal(t, 15, s.RequiredDataPoints())
}

func TestDecide(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)

	tests := []struct {
		name   string
		closes []float64
		want   domain.Signal
	}{
		{name: "short history", closes: series(59, 100, 1), want: domain.SignalHold},
		{name: "uptrend", closes: series(80, 100, 1), want: domain.SignalBuy},
		{name: "downtrend", closes: series(80, 200, -1), want: domain.SignalSell},
		{name: "flat", closes: series(80, 100, 0), want: domain.SignalHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Decide(tt.closes))
		})
	}
}

func TestDecide_RSIFilter(t *testing.T) {
	s, err := New(Config{FastEMAPeriod: 5, SlowEMAPeriod: 10, MinCloses: 20, RSIPeriod: 14, RSIOverbought: 70, RSIOversold: 30})
	require.NoError(t, err)

	// a straight line up is RSI 100, a straight line down is RSI 0
	assert.Equal(t, domain.SignalHold, s.Decide(series(40, 100, 1)))
	assert.Equal(t, domain.SignalHold, s.Decide(series(40, 200, -1)))
}
