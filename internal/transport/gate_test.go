package transport

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Pnishada/service-desk/internal/config"
	"github.com/Pnishada/service-desk/internal/domain"
	"github.com/Pnishada/service-desk/internal/observability"
	"github.com/Pnishada/service-desk/internal/session"
	"github.com/Pnishada/service-desk/pkg/util"
)

type gateHarness struct {
	gate      *Gate
	sessions  *session.Store
	metrics   *observability.Metrics
	logouts   int32
	refreshes int32
}

// newGateHarness runs a backend where only freshAccess opens tickets/ and
// the refresh endpoint trades refresh-token for it after a configurable
// delay. refreshStatus controls whether the trade succeeds.
func newGateHarness(t *testing.T, freshAccess string, refreshStatus int, refreshDelay time.Duration) *gateHarness {
	t.Helper()
	h := &gateHarness{metrics: observability.NewMetrics()}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		atomic.AddInt32(&h.refreshes, 1)
		time.Sleep(refreshDelay)
		if refreshStatus != http.StatusOK {
			w.WriteHeader(refreshStatus)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "token is invalid or expired"})
			return
		}
		var body struct {
			Refresh string `json:"refresh"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Refresh != "refresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": freshAccess})
	})
	mux.HandleFunc("/tickets/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+freshAccess {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "token expired"})
			return
		}
		_ = json.NewEncoder(w).Encode([]any{})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	h.sessions = session.NewStore(filepath.Join(t.TempDir(), "session.json"), nil, zap.NewNop())
	cfg := config.ClientConfig{BaseURL: srv.URL + "/", RequestTimeoutSeconds: 5}
	h.gate = NewGate(cfg, h.sessions, h.metrics, zap.NewNop(), func() {
		atomic.AddInt32(&h.logouts, 1)
	})
	return h
}

func (h *gateHarness) login(access string) {
	_ = h.sessions.Set(
		domain.User{ID: 2, Username: "tech", Role: domain.RoleTechnician},
		domain.Tokens{Access: access, Refresh: "refresh-token"},
	)
}

func getTickets(req *resty.Request) (*resty.Response, error) {
	return req.Get("tickets/")
}

func TestGateRefreshesAndRetriesOnce(t *testing.T) {
	h := newGateHarness(t, "fresh-access", http.StatusOK, 0)
	h.login("stale-access")

	resp, err := h.gate.Do(context.Background(), getTickets)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())

	assert.EqualValues(t, 1, atomic.LoadInt32(&h.refreshes))
	assert.EqualValues(t, 0, atomic.LoadInt32(&h.logouts))
	assert.Equal(t, "fresh-access", h.sessions.Get().Tokens.Access, "rotated token stored")
}

func TestGateSingleFlightRefresh(t *testing.T) {
	// All callers fail on the stale token inside the refresh window and must
	// share the one in-flight refresh.
	h := newGateHarness(t, "fresh-access", http.StatusOK, 300*time.Millisecond)
	h.login("stale-access")

	const callers = 6
	var wg sync.WaitGroup
	statuses := make([]int, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := h.gate.Do(context.Background(), getTickets)
			errs[i] = err
			if resp != nil {
				statuses[i] = resp.StatusCode()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, statuses[i])
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&h.refreshes), "concurrent expiry coalesces into one refresh")
	assert.EqualValues(t, 1, h.metrics.Refreshes())
}

func TestGateFailedRefreshEndsSession(t *testing.T) {
	h := newGateHarness(t, "fresh-access", http.StatusUnauthorized, 0)
	h.login("stale-access")

	resp, err := h.gate.Do(context.Background(), getTickets)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode(), "caller sees the original failure")
	assert.EqualValues(t, 1, atomic.LoadInt32(&h.logouts))
	assert.Nil(t, h.sessions.Get(), "session cleared in one step")
}

func TestGateMissingRefreshTokenEndsSession(t *testing.T) {
	h := newGateHarness(t, "fresh-access", http.StatusOK, 0)
	_ = h.sessions.Set(domain.User{ID: 2}, domain.Tokens{Access: "stale-access"})

	resp, err := h.gate.Do(context.Background(), getTickets)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	assert.EqualValues(t, 0, atomic.LoadInt32(&h.refreshes), "nothing to refresh with")
	assert.EqualValues(t, 1, atomic.LoadInt32(&h.logouts))
}

func TestGateUnauthenticatedCallPassesThrough(t *testing.T) {
	h := newGateHarness(t, "fresh-access", http.StatusOK, 0)

	resp, err := h.gate.Do(context.Background(), getTickets)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	assert.EqualValues(t, 0, atomic.LoadInt32(&h.refreshes))
	assert.EqualValues(t, 0, atomic.LoadInt32(&h.logouts), "a rejected login never clears anything")
}

func TestGateNetworkFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	sessions := session.NewStore(filepath.Join(t.TempDir(), "session.json"), nil, zap.NewNop())
	gate := NewGate(config.ClientConfig{BaseURL: "http://" + addr + "/", RequestTimeoutSeconds: 2},
		sessions, observability.NewMetrics(), zap.NewNop(), nil)

	_, err = gate.Do(context.Background(), getTickets)
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindNetworkUnavailable))
}
