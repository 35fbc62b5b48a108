package http

import (
	"encoding/json"
	"math"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/uaagate/internal/authn"
	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	"github.com/dropDatabas3/uaagate/internal/rate"
	"github.com/dropDatabas3/uaagate/internal/tenant"
)

const (
	grantPassword = "password"
	grantIdpToken = "idp_token"
)

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Token     string `json:"token"`
	ClientID  string `json:"client_id"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type tokenHandler struct {
	passwords Authenticator
	exchanger Exchanger
	tokens    TokenIssuer
	limiter   rate.Limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// throttled aplica el límite por tenant|ip|sujeto. Si el limiter falla se deja pasar.
func (h *tokenHandler) throttled(w http.ResponseWriter, r *http.Request, tk string, req tokenRequest) bool {
	if h.limiter == nil {
		return false
	}
	subject := "idp"
	if req.GrantType == grantPassword {
		subject = strings.ToLower(req.Username)
	}
	res, err := h.limiter.Allow(r.Context(), tk+"|"+clientIP(r)+"|"+subject)
	if err != nil {
		logger.From(r.Context()).Warn("rate limiter unavailable", logger.Layer("http"), logger.Err(err))
		return false
	}
	if res.Allowed {
		return false
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
	WriteError(w, http.StatusTooManyRequests, "too_many_requests", "too many attempts")
	return true
}

// readTokenRequest acepta form-urlencoded (OAuth2) o JSON. Body máx 64KB.
func readTokenRequest(w http.ResponseWriter, r *http.Request) (tokenRequest, bool) {
	var req tokenRequest
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	defer r.Body.Close()

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, false
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, false
		}
		req = tokenRequest{
			GrantType: r.PostForm.Get("grant_type"),
			Username:  r.PostForm.Get("username"),
			Password:  r.PostForm.Get("password"),
			Token:     r.PostForm.Get("token"),
			ClientID:  r.PostForm.Get("client_id"),
		}
	}
	req.GrantType = strings.TrimSpace(req.GrantType)
	req.Username = strings.TrimSpace(req.Username)
	req.Token = strings.TrimSpace(req.Token)
	return req, true
}

func (h *tokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("http"), logger.Op("token"))

	tk, err := tenant.FromContext(ctx)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "tenant required")
		return
	}
	req, ok := readTokenRequest(w, r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	if (req.GrantType == grantPassword || req.GrantType == grantIdpToken) && h.throttled(w, r, tk, req) {
		return
	}

	var res *authn.Result
	switch req.GrantType {
	case grantPassword:
		if req.Username == "" || req.Password == "" {
			WriteError(w, http.StatusBadRequest, "invalid_request", "username and password required")
			return
		}
		res, err = h.passwords.Authenticate(ctx, req.Username, req.Password)
	case grantIdpToken:
		if req.Token == "" {
			WriteError(w, http.StatusBadRequest, "invalid_request", "token required")
			return
		}
		params := map[string]string{"grant_type": grantIdpToken}
		if req.ClientID != "" {
			params["client_id"] = req.ClientID
		}
		res, err = h.exchanger.Exchange(ctx, tk, req.Token, params)
	case "":
		WriteError(w, http.StatusBadRequest, "invalid_request", "grant_type required")
		return
	default:
		WriteError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant_type")
		return
	}
	if err != nil {
		log.Debug("grant rejected", logger.String("grant_type", req.GrantType), logger.Err(err))
		writeAuthError(w, err)
		return
	}
	res.EraseCredentials()

	access, exp, err := h.tokens.IssueAccess(res)
	if err != nil {
		log.Error("issue access failed", logger.Err(err))
		WriteError(w, http.StatusInternalServerError, "server_error", "server error")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(exp).Seconds()),
	})
}
