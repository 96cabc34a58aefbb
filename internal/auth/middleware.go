package auth

import (
	"net/http"
	"strings"
)

// Skipper allows callers to bypass authentication for specific requests.
type Skipper func(r *http.Request) bool

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	Config  Config
	Skipper Skipper
}

// NewMiddleware constructs Middleware. Requests matched by PublicRoutes pass
// through unauthenticated, but still get claims attached when a valid token is sent.
func NewMiddleware(cfg Config) Middleware {
	return Middleware{Config: cfg, Skipper: PublicRoutes}
}

// PublicRoutes matches health, metrics, the AI status probe, cause reads and
// message listings.
func PublicRoutes(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics", "/v1/ai/status":
		return true
	}
	if r.Method != http.MethodGet {
		return false
	}
	if r.URL.Path == "/v1/causes" || r.URL.Path == "/v1/causes/most-active" {
		return true
	}
	if rest, ok := strings.CutPrefix(r.URL.Path, "/v1/causes/"); ok {
		return rest != "" && !strings.Contains(rest, "/")
	}
	if rest, ok := strings.CutPrefix(r.URL.Path, "/v1/messages/"); ok {
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 2 && (parts[0] == "cause" || parts[0] == "user"):
			return parts[1] != ""
		case len(parts) == 3 && parts[0] == "cause" && parts[2] == "top":
			return parts[1] != ""
		}
	}
	return false
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			if claims, err := m.parseRequest(r); err == nil {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.parseRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m Middleware) parseRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, ErrInvalidToken
	}
	return Parse(header[len("Bearer "):], m.Config)
}
