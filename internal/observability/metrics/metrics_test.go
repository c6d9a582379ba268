package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledIsNoop(t *testing.T) {
	Init(false)

	assert.False(t, Enabled())
	assert.Nil(t, Registry())

	// Recording must not panic with nil collectors
	Deploy("hardhat", "ERC721AMinter", "confirmed")
	DeployConfirmed("hardhat", "ERC721AMinter", time.Second, 21000)
	Verify("sepolia", "verified")
	JournalWrite("pending")

	path := filepath.Join(t.TempDir(), "mintdeploy.prom")
	require.NoError(t, WriteTextfile(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "disabled metrics should not write a textfile")
}

func TestCounters(t *testing.T) {
	Init(true)
	t.Cleanup(func() { Init(false) })

	Deploy("hardhat", "ERC721AMinter", "confirmed")
	Deploy("hardhat", "ERC721AMinter", "confirmed")
	Deploy("hardhat", "ERC721AMinter", "reverted")
	Verify("sepolia", "already_verified")
	JournalWrite("pending")
	DeployConfirmed("hardhat", "ERC721AMinter", 3*time.Second, 2_500_000)

	assert.Equal(t, 2.0, testutil.ToFloat64(deployTotal.WithLabelValues("hardhat", "ERC721AMinter", "confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(deployTotal.WithLabelValues("hardhat", "ERC721AMinter", "reverted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(verifyTotal.WithLabelValues("sepolia", "already_verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(journalWritesTotal.WithLabelValues("pending")))
	assert.Equal(t, 2_500_000.0, testutil.ToFloat64(deployGasUsed.WithLabelValues("hardhat", "ERC721AMinter")))
}

func TestWriteTextfile(t *testing.T) {
	Init(true)
	t.Cleanup(func() { Init(false) })

	Deploy("sepolia", "ERC721AMinter", "confirmed")

	path := filepath.Join(t.TempDir(), "mintdeploy.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `mintdeploy_deploy_total{contract="ERC721AMinter",network="sepolia",status="confirmed"} 1`)
}

func TestInstrumentTransport(t *testing.T) {
	Init(true)
	t.Cleanup(func() { Init(false) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: InstrumentTransport(nil)}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(explorerRequestsTotal.WithLabelValues("200", "get")))
}
