package chains_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/mintdeploy/internal/chains"
	"github.com/pendergraft/mintdeploy/internal/chains/evm"
)

func TestSplitFullyQualifiedName(t *testing.T) {
	tests := []struct {
		input      string
		wantSource string
		wantName   string
	}{
		{"ERC721AMinter", "", "ERC721AMinter"},
		{"contracts/ERC721AMinter.sol:ERC721AMinter", "contracts/ERC721AMinter.sol", "ERC721AMinter"},
		{"src/a:b/C.sol:C", "src/a:b/C.sol", "C"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			source, name := chains.SplitFullyQualifiedName(tt.input)
			assert.Equal(t, tt.wantSource, source)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestRegistry(t *testing.T) {
	registry := chains.NewRegistry()
	registry.Register(evm.NewChain())

	c, ok := registry.Get("evm")
	require.True(t, ok)
	assert.Equal(t, "Ethereum/EVM", c.DisplayName())

	_, b, err := registry.FindBuilder("foundry")
	require.NoError(t, err)
	assert.Equal(t, "foundry", b.Name())

	_, _, err = registry.FindBuilder("truffle")
	assert.Error(t, err)

	t.Run("detects hardhat", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "hardhat.config.ts"), []byte("export default {}"), 0644))

		_, b, err := registry.DetectChainAndBuilder(dir)
		require.NoError(t, err)
		assert.Equal(t, "hardhat", b.Name())
	})

	t.Run("nothing to detect", func(t *testing.T) {
		_, _, err := registry.DetectChainAndBuilder(t.TempDir())
		assert.ErrorIs(t, err, chains.ErrNoBuilder)
	})
}

func TestArtifact_FullyQualifiedName(t *testing.T) {
	a := &chains.Artifact{Name: "ERC721AMinter"}
	assert.Equal(t, "ERC721AMinter", a.FullyQualifiedName())

	a.EVM = &chains.EVMArtifact{SourcePath: "contracts/ERC721AMinter.sol"}
	assert.Equal(t, "contracts/ERC721AMinter.sol:ERC721AMinter", a.FullyQualifiedName())
}
