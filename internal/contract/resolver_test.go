package contract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/mintdeploy/internal/chains"
	"github.com/pendergraft/mintdeploy/internal/chains/evm/hardhat"
)

func TestResolver(t *testing.T) {
	dir := t.TempDir()
	artifactDir := filepath.Join(dir, "artifacts", "contracts", "ERC721AMinter.sol")
	require.NoError(t, os.MkdirAll(artifactDir, 0755))

	data, err := json.Marshal(map[string]any{
		"_format":          "hh-sol-artifact-1",
		"contractName":     "ERC721AMinter",
		"sourceName":       "contracts/ERC721AMinter.sol",
		"abi":              json.RawMessage(minterABI),
		"bytecode":         "0x6001600c60003960016000f300",
		"deployedBytecode": "0x00",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(artifactDir, "ERC721AMinter.json"), data, 0644))

	r := NewResolver(hardhat.New(), dir)
	assert.Equal(t, "hardhat", r.Builder().Name())

	f, err := r.Factory("ERC721AMinter")
	require.NoError(t, err)
	assert.Equal(t, "contracts/ERC721AMinter.sol:ERC721AMinter", f.FullyQualifiedName())

	_, err = r.Factory("Unknown")
	assert.ErrorIs(t, err, chains.ErrContractNotFound)

	_, err = r.VerificationInput(f)
	assert.ErrorIs(t, err, chains.ErrBuildInfoNotFound)
}
