package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/uaagate/internal/authn"
	uaajwt "github.com/dropDatabas3/uaagate/internal/jwt"
	"github.com/dropDatabas3/uaagate/internal/rate"
	"github.com/dropDatabas3/uaagate/internal/tenant"
)

type fakeExchanger struct {
	calls  int
	tenant string
	params map[string]string
	err    error
}

func (f *fakeExchanger) Exchange(_ context.Context, tk, raw string, params map[string]string) (*authn.Result, error) {
	f.calls++
	f.tenant = tk
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return authn.NewResult(authn.Principal{Tenant: tk, UserKey: "u-1", Login: "alice@corp.com", RoleKey: "ROLE-USER"},
		[]string{"ROLE-USER"}, params), nil
}

type harness struct {
	srv       *httptest.Server
	issuer    *uaajwt.Issuer
	exchanger *fakeExchanger
	seenTk    string
	lastRes   *authn.Result
}

func newHarness(t *testing.T, pwErr error, ready func(context.Context) error, opts ...func(*Deps)) *harness {
	t.Helper()
	ks, err := uaajwt.NewKeySet("")
	require.NoError(t, err)
	h := &harness{issuer: uaajwt.NewIssuer("http://uaa.test", ks, 0), exchanger: &fakeExchanger{}}

	passwords := authn.ProviderFunc(func(ctx context.Context, principal, credential string) (*authn.Result, error) {
		tk, err := tenant.FromContext(ctx)
		if err != nil {
			return nil, err
		}
		h.seenTk = tk
		if pwErr != nil {
			return nil, pwErr
		}
		h.lastRes = authn.NewResult(authn.Principal{Tenant: tk, UserKey: "u-2", Login: principal, RoleKey: "ROLE-ADMIN"},
			[]string{"ROLE-ADMIN"}, nil).WithCredentials(credential)
		return h.lastRes, nil
	})

	reg := prometheus.NewRegistry()
	d := Deps{
		Passwords:  passwords,
		Exchanger:  h.exchanger,
		Tokens:     h.issuer,
		JWKS:       ks.JWKSJSON(),
		Registerer: reg,
		Gatherer:   reg,
		Ready:      ready,
	}
	for _, o := range opts {
		o(&d)
	}
	handler, err := NewRouter(d)
	require.NoError(t, err)
	h.srv = httptest.NewServer(handler)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) postForm(t *testing.T, tenantKey string, form url.Values) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/oauth/token", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if tenantKey != "" {
		req.Header.Set("X-Tenant", tenantKey)
	}
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestToken_PasswordGrant(t *testing.T) {
	h := newHarness(t, nil, nil)

	resp, body := h.postForm(t, " xm ", url.Values{
		"grant_type": {"password"}, "username": {"bob@corp.com"}, "password": {"s3cret"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "XM", h.seenTk)
	assert.Equal(t, "Bearer", body["token_type"])

	claims, err := h.issuer.Parse(body["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "u-2", claims["sub"])
	assert.Equal(t, "XM", claims["tenant"])
	assert.Equal(t, "ROLE-ADMIN", claims["role"])

	require.NotNil(t, h.lastRes)
	assert.Empty(t, h.lastRes.Credentials(), "credential erased after issuing")
}

func TestToken_IdpGrantJSON(t *testing.T) {
	h := newHarness(t, nil, nil)

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/oauth/token",
		strings.NewReader(`{"grant_type":"idp_token","token":"eyJ.x.y","client_id":"acme"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("X-Tenant", "XM")

	resp, body := do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["access_token"])
	assert.Equal(t, 1, h.exchanger.calls)
	assert.Equal(t, "XM", h.exchanger.tenant)
	assert.Equal(t, map[string]string{"grant_type": "idp_token", "client_id": "acme"}, h.exchanger.params)
}

func TestToken_FailuresAreUndifferentiated(t *testing.T) {
	for _, cause := range []error{
		fmt.Errorf("%w: bad password", authn.ErrAuthenticationFailed),
		fmt.Errorf("%w: %w", authn.ErrTokenInvalid, authn.ErrKeyNotFound),
		fmt.Errorf("%w: audience mismatch", authn.ErrTokenInvalid),
	} {
		h := newHarness(t, nil, nil)
		h.exchanger.err = cause

		resp, body := h.postForm(t, "XM", url.Values{"grant_type": {"idp_token"}, "token": {"t"}})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, cause.Error())
		assert.Equal(t, "invalid_grant", body["error"])
		assert.Equal(t, "authentication failed", body["error_description"])
	}
}

func TestToken_PasswordRejected(t *testing.T) {
	h := newHarness(t, fmt.Errorf("%w: unknown user", authn.ErrAuthenticationFailed), nil)
	resp, body := h.postForm(t, "XM", url.Values{
		"grant_type": {"password"}, "username": {"nobody"}, "password": {"x"},
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "authentication failed", body["error_description"])
}

func TestToken_ServerErrorsAreGeneric(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.exchanger.err = fmt.Errorf("%w: no default role for XM", authn.ErrTenantMisconfigured)

	resp, body := h.postForm(t, "XM", url.Values{"grant_type": {"idp_token"}, "token": {"t"}})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "server_error", body["error"])
	assert.Equal(t, "server error", body["error_description"])
}

func TestToken_BadRequests(t *testing.T) {
	h := newHarness(t, nil, nil)

	tests := []struct {
		name   string
		tenant string
		form   url.Values
		code   string
	}{
		{"no tenant", "", url.Values{"grant_type": {"password"}, "username": {"a"}, "password": {"b"}}, "invalid_request"},
		{"no grant", "XM", url.Values{"username": {"a"}}, "invalid_request"},
		{"unknown grant", "XM", url.Values{"grant_type": {"client_credentials"}}, "unsupported_grant_type"},
		{"password without credential", "XM", url.Values{"grant_type": {"password"}, "username": {"a"}}, "invalid_request"},
		{"idp without token", "XM", url.Values{"grant_type": {"idp_token"}}, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.postForm(t, tt.tenant, tt.form)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, body["error"])
		})
	}
	assert.Zero(t, h.exchanger.calls)
}

func TestToken_Throttled(t *testing.T) {
	h := newHarness(t, fmt.Errorf("%w: bad password", authn.ErrAuthenticationFailed), nil, func(d *Deps) {
		d.Limiter = rate.NewMemoryLimiter(2, time.Hour)
	})
	form := url.Values{"grant_type": {"password"}, "username": {"Bob"}, "password": {"guess"}}

	for i := 0; i < 2; i++ {
		resp, _ := h.postForm(t, "XM", form)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, body := h.postForm(t, "XM", form)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "too_many_requests", body["error"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// otro sujeto no comparte ventana
	other := url.Values{"grant_type": {"password"}, "username": {"carol"}, "password": {"guess"}}
	resp, _ = h.postForm(t, "XM", other)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestReadyz(t *testing.T) {
	h := newHarness(t, nil, nil)
	resp, body := do(t, mustGet(t, h.srv.URL+"/readyz"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	down := newHarness(t, nil, func(context.Context) error { return errors.New("db down") })
	resp, body = do(t, mustGet(t, down.srv.URL+"/readyz"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unavailable", body["status"])
}

func TestMetricsAndJWKS(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.postForm(t, "XM", url.Values{"grant_type": {"password"}, "username": {"a"}, "password": {"b"}})

	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(raw), `http_requests_total{method="POST",route="/oauth/token",status="200"} 1`)

	resp, body := do(t, mustGet(t, h.srv.URL+"/.well-known/jwks.json"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["keys"], 1)
}

func mustGet(t *testing.T, u string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, u, nil)
	require.NoError(t, err)
	return req
}
