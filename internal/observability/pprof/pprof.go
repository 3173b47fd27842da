// Package pprof mounts net/http/pprof handlers under a configurable prefix.
package pprof

import (
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Mount registers the profiling endpoints on r. A non-empty token guards them.
func Mount(r chi.Router, prefix, token string) {
	prefix = NormalizePrefix(prefix)
	base := strings.TrimSuffix(prefix, "/")
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(token, h) }

	r.Get(base, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, prefix, http.StatusPermanentRedirect)
	})
	r.Get(base+"/cmdline", wrap(hpprof.Cmdline))
	r.Get(base+"/profile", wrap(hpprof.Profile))
	r.Get(base+"/symbol", wrap(hpprof.Symbol))
	r.Post(base+"/symbol", wrap(hpprof.Symbol))
	r.Get(base+"/trace", wrap(hpprof.Trace))
	r.Get(prefix+"*", wrap(indexAt(prefix)))
}

func NormalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// hpprof.Index resolves profiles relative to /debug/pprof/, so custom
// prefixes are rewritten before delegating.
func indexAt(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, prefix)
		hpprof.Index(w, r2)
	}
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(ah[len(p):]) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
