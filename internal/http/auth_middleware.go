package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type authContextKey string

type authInfo struct {
	UserID string
	Email  string
	Name   string
	// Source is "bearer" or "cookie".
	Source string
}

const contextKeyAuth authContextKey = "tfd-auth-info"

var errNoCredentials = errors.New("no credentials presented")

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// requireDeviceSession is requireAuth for the device approval page, which
// answers in the {success, message} shape instead of {error}.
func (r *Router) requireDeviceSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		info, err := r.authenticate(req)
		if err != nil {
			if !errors.Is(err, errNoCredentials) {
				r.logger.Warn("device verify credential rejected", "error", err, "path", req.URL.Path)
			}
			writeVerifyResult(w, http.StatusUnauthorized, false, verifyMessageUnauthenticated)
			return
		}
		ctx := context.WithValue(req.Context(), contextKeyAuth, info)
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the request credentials and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	info, err := r.authenticate(req)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		if errors.Is(err, errNoCredentials) {
			writeError(w, http.StatusUnauthorized, "authentication required")
		} else {
			writeError(w, http.StatusUnauthorized, "authentication failed")
		}
		return req.Context(), authInfo{}, false
	}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, true
}

// optionalAuth resolves credentials when present. Invalid credentials are
// treated as absent.
func (r *Router) optionalAuth(req *http.Request) (authInfo, bool) {
	info, err := r.authenticate(req)
	if err != nil {
		if !errors.Is(err, errNoCredentials) {
			r.logger.Debug("ignoring invalid optional credential", "error", err, "path", req.URL.Path)
		}
		return authInfo{}, false
	}
	return info, true
}

// authenticate checks the Authorization header first and falls back to the
// browser session cookie. Signatures are always verified.
func (r *Router) authenticate(req *http.Request) (authInfo, error) {
	source := "bearer"
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		if strings.TrimSpace(req.Header.Get("Authorization")) != "" {
			return authInfo{}, err
		}
		cookie, cookieErr := req.Cookie(r.auth.SessionCookieName())
		if cookieErr != nil || strings.TrimSpace(cookie.Value) == "" {
			return authInfo{}, errNoCredentials
		}
		token = cookie.Value
		source = "cookie"
	}
	user, _, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		return authInfo{}, err
	}
	return authInfo{UserID: user.ID, Email: user.Email, Name: user.Name, Source: source}, nil
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
