package zoran

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromUnixSaturates(t *testing.T) {
	tests := []struct {
		name string
		unix int64
		want uint32
	}{
		{"before epoch saturates to 0", StartOfZoranEpoch - 1000, 0},
		{"at epoch is 0", StartOfZoranEpoch, 0},
		{"one second in", StartOfZoranEpoch + 1, 1},
		{"far future saturates to max", StartOfZoranEpoch + int64(MaxZoran) + 1000, MaxZoran},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromUnix(tt.unix))
		})
	}
}

func TestRoundTripWithinRange(t *testing.T) {
	for _, unix := range []int64{StartOfZoranEpoch, StartOfZoranEpoch + 1, StartOfZoranEpoch + 86400} {
		z := FromUnix(unix)
		assert.Equal(t, unix, ToUnix(z))
	}
}

func TestInRange(t *testing.T) {
	assert.False(t, InRange(StartOfZoranEpoch-1))
	assert.True(t, InRange(StartOfZoranEpoch))
	assert.True(t, InRange(StartOfZoranEpoch+int64(MaxZoran)))
	assert.False(t, InRange(StartOfZoranEpoch+int64(MaxZoran)+1))
}
