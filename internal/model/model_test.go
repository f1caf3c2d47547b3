package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/poorman/alphafunnel/internal/model"
)

func TestParams_HasNoExit_TrueWhenNeitherTPNorTimeExitSet(t *testing.T) {
	p := model.Params{SLPct: 0.02}
	assert.True(t, p.HasNoExit())
}

func TestParams_HasNoExit_FalseWhenTPSet(t *testing.T) {
	p := model.Params{SLPct: 0.02, TPPct: 0.04}
	assert.False(t, p.HasNoExit())
}

func TestParams_HasNoExit_FalseWhenTimeExitSet(t *testing.T) {
	p := model.Params{SLPct: 0.02, ExitBars: 20}
	assert.False(t, p.HasNoExit())
}
