package main

import (
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
)

func newRouter(cfg AppConfig, hub *sessionHub) (http.Handler, error) {
	proxy, err := newAPIProxy(cfg.Upstream.APIBase)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(withLogging)
	r.Get("/healthz", hub.handleHealth)
	r.Get("/live", hub.handleWebSocket)
	r.Handle("/api/*", proxy)
	r.Handle("/*", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	return r, nil
}

// newAPIProxy forwards /api/<path> to <base>/api/<path>.
func newAPIProxy(base string) (http.Handler, error) {
	target, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("upstream api base: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream api base %q is not an absolute url", base)
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Printf("proxy %s: %v", r.URL.Path, err)
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		},
	}, nil
}

func withLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s", r.Method, r.URL.Path)
		h.ServeHTTP(w, r)
	})
}
