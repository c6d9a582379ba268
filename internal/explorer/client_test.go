package explorer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(w http.ResponseWriter, status, result string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  status,
		"message": map[string]string{"1": "OK", "0": "NOTOK"}[status],
		"result":  result,
	})
}

func newTestClient(url string, opts ...Option) *Client {
	base := []Option{
		WithChainID(11155111),
		WithPollInterval(time.Millisecond),
		WithPollTimeout(time.Second),
		WithRetryInterval(time.Millisecond),
		WithRateLimit(0),
	}
	return New(url, "test-key", append(base, opts...)...)
}

func testRequest() VerifyRequest {
	return VerifyRequest{
		Address:         "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		ContractName:    "contracts/ERC721AMinter.sol:ERC721AMinter",
		CompilerVersion: "0.8.9+commit.e5eed63a",
		StandardJSON:    []byte(`{"language":"Solidity"}`),
		ConstructorArgs: []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func TestVerify_PendingThenPass(t *testing.T) {
	var checks atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "11155111", r.URL.Query().Get("chainid"))

		if r.Method == http.MethodPost {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "test-key", r.PostForm.Get("apikey"))
			assert.Equal(t, "verifysourcecode", r.PostForm.Get("action"))
			assert.Equal(t, "solidity-standard-json-input", r.PostForm.Get("codeformat"))
			assert.Equal(t, "contracts/ERC721AMinter.sol:ERC721AMinter", r.PostForm.Get("contractname"))
			assert.Equal(t, "v0.8.9+commit.e5eed63a", r.PostForm.Get("compilerversion"))
			assert.Equal(t, "deadbeef", r.PostForm.Get("constructorArguements"))
			assert.Equal(t, `{"language":"Solidity"}`, r.PostForm.Get("sourceCode"))
			reply(w, "1", "guid-123")
			return
		}

		assert.Equal(t, "checkverifystatus", r.URL.Query().Get("action"))
		assert.Equal(t, "guid-123", r.URL.Query().Get("guid"))
		if checks.Add(1) < 3 {
			reply(w, "0", "Pending in queue")
			return
		}
		reply(w, "1", "Pass - Verified")
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Verify(t.Context(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(3), checks.Load())
}

func TestVerify_AlreadyVerifiedOnSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply(w, "0", "Contract source code already verified")
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Verify(t.Context(), testRequest())
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		result     string
		wantStatus Status
		wantErr    error
	}{
		{"pending", "0", "Pending in queue", StatusPending, nil},
		{"pass", "1", "Pass - Verified", StatusVerified, nil},
		{"already verified", "1", "Already Verified", StatusPending, ErrAlreadyVerified},
		{"fail", "0", "Fail - Unable to verify. Compiled contract deployment bytecode does NOT match", StatusPending, ErrVerificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reply(w, tt.status, tt.result)
			}))
			defer srv.Close()

			status, err := newTestClient(srv.URL).CheckStatus(t.Context(), "guid")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestVerify_FailSurfacesReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			reply(w, "1", "guid")
			return
		}
		reply(w, "0", "Fail - Unable to verify")
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Verify(t.Context(), testRequest())
	require.ErrorIs(t, err, ErrVerificationFailed)
	assert.Contains(t, err.Error(), "Fail - Unable to verify")
}

func TestDo_RetriesRateLimitAndServerErrors(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			reply(w, "0", "Max rate limit reached, please use API Key for higher rate limit")
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 3:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			reply(w, "1", "guid-after-retry")
		}
	}))
	defer srv.Close()

	guid, err := newTestClient(srv.URL).Submit(t.Context(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "guid-after-retry", guid)
	assert.Equal(t, int32(4), calls.Load())
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		reply(w, "0", "Max rate limit reached")
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, WithMaxRetries(2)).Submit(t.Context(), testRequest())
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Submit(t.Context(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWaitForVerification_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply(w, "0", "Pending in queue")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithPollInterval(5*time.Millisecond), WithPollTimeout(50*time.Millisecond))
	err := c.WaitForVerification(t.Context(), "guid")
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestVerify_WaitsForIndexing(t *testing.T) {
	var submits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if submits.Add(1) == 1 {
				reply(w, "0", "Unable to locate ContractCode at 0x5FbDB2315678afecb367f032d93F642f64180aa3")
				return
			}
			reply(w, "1", "guid")
			return
		}
		reply(w, "1", "Pass - Verified")
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).Verify(t.Context(), testRequest()))
	assert.Equal(t, int32(2), submits.Load())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "verified", StatusVerified.String())
}
