package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIgnition(t *testing.T) {
	tests := []struct {
		raw  string
		want IgnitionState
	}{
		{"true", IgnitionOn},
		{"TRUE", IgnitionOn},
		{"1", IgnitionOn},
		{"on", IgnitionOn},
		{"ON", IgnitionOn},
		{" on ", IgnitionOn},
		{"false", IgnitionOff},
		{"FALSE", IgnitionOff},
		{"0", IgnitionOff},
		{"off", IgnitionOff},
		{"OFF", IgnitionOff},
		{"", IgnitionUnknown},
		{"maybe", IgnitionUnknown},
		{"2", IgnitionUnknown},
		{"null", IgnitionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeIgnition(tt.raw))
		})
	}
}

func TestIgnitionStateBool(t *testing.T) {
	on := IgnitionOn.Bool()
	if assert.NotNil(t, on) {
		assert.True(t, *on)
	}

	off := IgnitionOff.Bool()
	if assert.NotNil(t, off) {
		assert.False(t, *off)
	}

	assert.Nil(t, IgnitionUnknown.Bool())
}
