package middleware

import "net/http"

// Chain wraps h so the middlewares run in the order given, the first one
// outermost. The server uses
//
//	Chain(mux, RequestLogging, Config(cfg), RateLimit(counter, n, window), CSRFProtection, Auth(authService))
//
// so panics and 429s are still logged and the rate limit applies before any
// token is parsed.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
