package license_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/adchain-network/settlements/pkg/license"
)

func TestReaderEnvFallback(t *testing.T) {
	t.Setenv("LICENSE_URL", "")
	t.Setenv("LICENSE_FEE", "0.01")
	t.Setenv("LICENSE_ACCOUNT", "0xlicense")

	r := license.NewReader(zaptest.NewLogger(t))

	fee, err := r.GetFee(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.01, fee)

	addr, err := r.GetAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xlicense", addr)
}

func TestReaderEnvFallbackMissingAccount(t *testing.T) {
	t.Setenv("LICENSE_URL", "")
	t.Setenv("LICENSE_ACCOUNT", "")

	r := license.NewReader(zaptest.NewLogger(t))

	_, err := r.GetAddress(context.Background())
	assert.Error(t, err)
}

func TestReaderFetchesAndCachesTerms(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"fee":0.02,"account":"0xremote"}`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("LICENSE_URL", srv.URL)
	r := license.NewReader(zaptest.NewLogger(t))

	fee, err := r.GetFee(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.02, fee)

	addr, err := r.GetAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xremote", addr)

	// Second read comes from the cached terms.
	assert.Equal(t, int64(1), hits.Load())
}

func TestReaderServesStaleTermsWhenServerDown(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"fee":0.02,"account":"0xremote"}`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("LICENSE_URL", srv.URL)
	t.Setenv("LICENSE_REFRESH", "0s")
	r := license.NewReader(zaptest.NewLogger(t))

	_, err := r.GetFee(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	fee, err := r.GetFee(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.02, fee)
}

func TestReaderRejectsOutOfRangeFee(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"fee":1.2,"account":"0xremote"}`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("LICENSE_URL", srv.URL)
	r := license.NewReader(zaptest.NewLogger(t))

	_, err := r.GetFee(context.Background())
	assert.Error(t, err)
}
