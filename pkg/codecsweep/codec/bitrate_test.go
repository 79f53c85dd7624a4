package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/CodecSweep/pkg/models"
)

func TestBitrateResolve(t *testing.T) {
	evsNearest := EVSBitrates
	evsNearest.Policy = PolicyNearest
	rangeNearest := BitrateSpec{Min: 16000, Max: 64000, Policy: PolicyNearest}

	tests := []struct {
		name     string
		spec     BitrateSpec
		in       int
		want     int
		wantKind models.ErrorKind
	}{
		{"discrete exact hit", EVSBitrates, 13200, 13200, models.KindNone},
		{"discrete exact miss", EVSBitrates, 12000, 0, models.KindConfiguration},
		{"discrete nearest", evsNearest, 12000, 13200, models.KindNone},
		{"discrete nearest tie goes low", BitrateSpec{Allowed: []int{8000, 12000}, Policy: PolicyNearest}, 10000, 8000, models.KindNone},
		{"range inside", LC3Bitrates, 32000, 32000, models.KindNone},
		{"range below exact", LC3Bitrates, 8000, 0, models.KindConfiguration},
		{"range clamp low", rangeNearest, 8000, 16000, models.KindNone},
		{"range clamp high", rangeNearest, 96000, 64000, models.KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Resolve("codec", tt.in)
			assert.Equal(t, tt.wantKind, models.KindOf(err))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBitrateValidate(t *testing.T) {
	require.NoError(t, EVSBitrates.Validate())
	require.NoError(t, OpusBitrates.Validate())
	assert.Error(t, BitrateSpec{Min: 10, Max: 5}.Validate())
	assert.Error(t, BitrateSpec{Allowed: []int{-1}}.Validate())
	assert.Error(t, BitrateSpec{Min: 1, Max: 2, Policy: "closest"}.Validate())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyExact, p)

	p, err = ParsePolicy("Nearest")
	require.NoError(t, err)
	assert.Equal(t, PolicyNearest, p)
}
