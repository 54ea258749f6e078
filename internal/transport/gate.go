package transport

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Pnishada/service-desk/internal/config"
	"github.com/Pnishada/service-desk/internal/observability"
	"github.com/Pnishada/service-desk/internal/session"
	"github.com/Pnishada/service-desk/pkg/util"
)

// refreshKey is the single-flight key: one refresh in flight system-wide.
const refreshKey = "token-refresh"

// Gate wraps every outbound request and transparently keeps the access
// token valid. On a 401/403 it performs a single-flight refresh and retries
// the original request exactly once; a failed or impossible refresh clears
// the session and hands the caller the original response untouched.
type Gate struct {
	rest     *resty.Client
	sessions *session.Store
	group    singleflight.Group
	metrics  *observability.Metrics
	logger   *zap.Logger
	onLogout func()
}

// NewGate builds the gate around a resty client bound to the backend base
// URL. onLogout is invoked after the session is cleared and stands in for
// the login-boundary redirect; it may be nil.
func NewGate(cfg config.ClientConfig, sessions *session.Store, metrics *observability.Metrics, logger *zap.Logger, onLogout func()) *Gate {
	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout()).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	g := &Gate{
		rest:     rest,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		onLogout: onLogout,
	}

	// The bearer header is read from the store at send time, so the retry
	// of a request automatically carries the refreshed token.
	rest.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if sess := g.sessions.Get(); sess.Authenticated() {
			req.SetHeader("Authorization", "Bearer "+sess.Tokens.Access)
		}
		return nil
	})

	return g
}

// Do sends the request built by send, refreshing and retrying once on an
// authorization failure. Network-level failures are reported as
// NETWORK_UNAVAILABLE; HTTP statuses are returned to the caller for
// endpoint-specific mapping.
func (g *Gate) Do(ctx context.Context, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	resp, err := send(g.rest.R().SetContext(ctx))
	if err != nil {
		return nil, util.NewNetworkUnavailable(requestLabel(resp), err)
	}
	g.record(resp)

	if !authFailed(resp) {
		return resp, nil
	}

	sess := g.sessions.Get()
	if sess == nil {
		// Unauthenticated call (login) rejected; nothing to refresh.
		return resp, nil
	}
	if sess.Tokens.Refresh == "" {
		g.forceLogout()
		return resp, nil
	}

	// Concurrent requests that hit an auth failure while a refresh is
	// already in flight await that refresh's outcome instead of issuing
	// their own.
	if _, refreshErr, _ := g.group.Do(refreshKey, func() (any, error) {
		return nil, g.refreshAccessToken(ctx, sess.Tokens.Refresh)
	}); refreshErr != nil {
		g.logger.Warn("token refresh failed, ending session", zap.Error(refreshErr))
		g.forceLogout()
		// Callers see the original request's failure, never the
		// refresh-internal error.
		return resp, nil
	}

	retry, err := send(g.rest.R().SetContext(ctx))
	if err != nil {
		return nil, util.NewNetworkUnavailable(requestLabel(retry), err)
	}
	g.record(retry)
	return retry, nil
}

// refreshAccessToken posts the refresh token and stores the replacement
// access token. It bypasses Do: a refresh is never itself retried.
func (g *Gate) refreshAccessToken(ctx context.Context, refreshToken string) error {
	var out struct {
		Access string `json:"access"`
	}
	resp, err := g.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"refresh": refreshToken}).
		SetResult(&out).
		Post("auth/refresh/")
	if err != nil {
		g.metrics.RecordRefresh("failure")
		return util.NewNetworkUnavailable("POST auth/refresh/", err)
	}
	if !resp.IsSuccess() || out.Access == "" {
		g.metrics.RecordRefresh("failure")
		return util.NewAuthInvalid("refresh token rejected")
	}
	g.metrics.RecordRefresh("success")

	if err := g.sessions.UpdateAccessToken(out.Access); err != nil {
		// Storage trouble is non-fatal; the in-memory token is current.
		g.logger.Warn("could not persist refreshed token", zap.Error(err))
	}
	return nil
}

func (g *Gate) forceLogout() {
	g.sessions.Clear()
	if g.onLogout != nil {
		g.onLogout()
	}
}

func (g *Gate) record(resp *resty.Response) {
	if resp == nil || resp.Request == nil {
		return
	}
	g.metrics.RecordRequest(resp.Request.Method, resp.Request.URL, resp.StatusCode())
}

func authFailed(resp *resty.Response) bool {
	return resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden
}

func requestLabel(resp *resty.Response) string {
	if resp == nil || resp.Request == nil {
		return "request"
	}
	return resp.Request.Method + " " + resp.Request.URL
}
