package flowcell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFlowcellSingleBlock(t *testing.T) {
	blocks, err := GenerateFlowcell(512, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Len(t, blocks[0], 512)
}

func TestGenerateFlowcellEvenSplit(t *testing.T) {
	blocks, err := GenerateFlowcell(512, 4)
	require.NoError(t, err)
	require.Len(t, blocks, 4)
	total := 0
	seen := map[int]bool{}
	for _, b := range blocks {
		assert.Len(t, b, 128)
		for _, ch := range b {
			assert.False(t, seen[ch], "channel %d assigned twice", ch)
			seen[ch] = true
			total++
		}
	}
	assert.Equal(t, 512, total)
}

func TestGenerateFlowcellUnevenSplit(t *testing.T) {
	_, err := GenerateFlowcell(512, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid splits")
}

func TestGenerateFlowcellUnknownSize(t *testing.T) {
	_, err := GenerateFlowcell(128, 1)
	require.Error(t, err)
}

func TestGenerateFlowcellFlongleAndPromethion(t *testing.T) {
	blocks, err := GenerateFlowcell(126, 2)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)

	blocks, err = GenerateFlowcell(3000, 5)
	require.NoError(t, err)
	assert.Len(t, blocks, 5)
	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	assert.Equal(t, 3000, total)
}
