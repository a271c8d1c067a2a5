package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"agent_erpsync/app/jobs"
	"agent_erpsync/app/utility"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) (*ERPClient, *utility.AdaptiveRateLimiter) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	limiter := utility.NewAdaptiveRateLimiter("erp-test", time.Millisecond, time.Millisecond, 20*time.Millisecond)
	return NewERPClient(srv.URL, "secret", 2*time.Second, limiter), limiter
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSyncDeltaSendsSinceAndDecodes(t *testing.T) {
	r := chi.NewRouter()
	var gotSince *string
	var gotAuth string
	r.Post("/sync/{domain}/delta", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "stock", chi.URLParam(req, "domain"))
		gotAuth = req.Header.Get("Authorization")
		var body struct {
			Since *string `json:"since"`
		}
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		gotSince = body.Since
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"processedCount": 4,
			"errors":         []map[string]string{{"entityId": "SKU-1", "message": "kho không tồn tại"}},
		})
	})
	c, _ := newTestClient(t, r)

	since := time.Date(2024, 6, 1, 9, 0, 0, 0, time.FixedZone("TRT", 3*3600))
	res, err := c.Domain(jobs.DomainStock).SyncDelta(context.Background(), &since)
	require.NoError(t, err)

	assert.Equal(t, 4, res.ProcessedCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "SKU-1", res.Errors[0].EntityID)
	require.NotNil(t, gotSince)
	assert.Equal(t, "2024-06-01T06:00:00Z", *gotSince)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestSyncDeltaWithoutSinceSendsNull(t *testing.T) {
	var raw map[string]interface{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewDecoder(req.Body).Decode(&raw)
		writeJSON(w, http.StatusOK, map[string]interface{}{"processedCount": 0})
	}))

	_, err := c.Domain(jobs.DomainPrice).SyncDelta(context.Background(), nil)
	require.NoError(t, err)
	v, ok := raw["since"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestGetStateDefaults(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Equal(t, "/sync/customer/state", req.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{"lastSyncTime": nil})
	}))

	st, err := c.Domain(jobs.DomainCustomer).GetState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "customer", st.SyncType)
	assert.Equal(t, jobs.SyncStatusNever, st.LastStatus)
	assert.Nil(t, st.LastSyncTime)
	assert.True(t, st.Healthy())
}

func TestPushOrderRejectedMapsToResult(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/orders/o-1/push", req.URL.Path)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "stok kodu bulunamadı"})
	}))

	res, err := c.PushOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "stok kodu bulunamadı")
}

func TestPushOrderServerErrorIsError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.PushOrder(context.Background(), "o-2")
	assert.Error(t, err)
}

func TestUpsertCustomer(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/customers/42/upsert", req.URL.Path)
		writeJSON(w, http.StatusOK, jobs.PushResult{Success: true, DocumentRef: "CARI-42"})
	}))

	res, err := c.UpsertCustomer(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "CARI-42", res.DocumentRef)
}

func TestTooManyRequestsIncreasesDelay(t *testing.T) {
	var calls int32
	c, limiter := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"processedCount": 1})
	}))

	before := limiter.GetCurrentDelay()
	_, err := c.Domain(jobs.DomainStock).SyncFull(context.Background())
	require.Error(t, err)
	assert.Greater(t, limiter.GetCurrentDelay(), before)

	res, err := c.Domain(jobs.DomainStock).SyncFull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProcessedCount)
}

func TestCancelledContextStopsRequest(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Domain(jobs.DomainStock).SyncDelta(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
