package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware. The coupon API only serves
// GET and POST, so the allowed methods are fixed; what varies per
// deployment is which storefront origins may call it.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to make cross-origin requests.
	// An empty list or the single entry "*" allows all origins.
	AllowOrigins []string

	// AllowHeaders lists the request headers clients may send. When empty,
	// the middleware echoes back Access-Control-Request-Headers from the
	// preflight request.
	AllowHeaders []string

	// AllowCredentials exposes responses to credentialed requests. The
	// wildcard origin must not be combined with credentials; when both are
	// set, the middleware echoes the specific origin instead.
	AllowCredentials bool

	// MaxAge is how long (in seconds) preflight results may be cached.
	// Zero omits the header; a negative value sends "0".
	MaxAge int
}

const corsAllowMethods = "GET, POST, OPTIONS"

// CORS returns a middleware that handles Cross-Origin Resource Sharing:
// case-insensitive origin matching with original-case echo-back, Vary
// headers so shared caches never serve one origin's response to another,
// and preflight detection via Access-Control-Request-Method.
func CORS(cfg CORSConfig) Middleware {
	allowAll := len(cfg.AllowOrigins) == 0
	allowed := make(map[string]string, len(cfg.AllowOrigins)) // lowercase -> original
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			allowAll = true
			break
		}
		allowed[strings.ToLower(o)] = o
	}

	if cfg.AllowCredentials && allowAll {
		// Credentials + wildcard is forbidden; echo the specific origin.
		allowAll = false
	}

	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")

	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	} else if cfg.MaxAge < 0 {
		maxAge = "0"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// No Origin header means the request is outside CORS scope, but
			// caches still need Vary so a later CORS request is not served a
			// stale header-less response.
			if origin == "" {
				if !allowAll {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			allowOrigin := matchOrigin(origin, allowAll, allowed)

			// Preflight: OPTIONS carrying Access-Control-Request-Method.
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Add("Vary", "Origin")
				w.Header().Add("Vary", "Access-Control-Request-Method")
				w.Header().Add("Vary", "Access-Control-Request-Headers")

				if allowOrigin == "" {
					// Disallowed origin: 204 with no CORS headers.
					w.WriteHeader(http.StatusNoContent)
					return
				}

				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)

				if allowHeaders != "" {
					w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
					w.Header().Set("Access-Control-Allow-Headers", rh)
				}

				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if maxAge != "" {
					w.Header().Set("Access-Control-Max-Age", maxAge)
				}

				w.WriteHeader(http.StatusNoContent)
				return
			}

			// Simple / actual CORS request.
			if !allowAll {
				w.Header().Add("Vary", "Origin")
			}

			if allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not allowed. Matching is case-insensitive; the
// echoed value keeps the configured casing.
func matchOrigin(origin string, allowAll bool, allowed map[string]string) string {
	if allowAll {
		return "*"
	}
	if orig, ok := allowed[strings.ToLower(origin)]; ok {
		return orig
	}
	return ""
}
