package speedtracer

import (
	"net/http"
	"net/http/pprof"

	"goji.io"
	"goji.io/pat"

	"github.com/stripe/speedtracer/util/build"
	"github.com/stripe/speedtracer/util/config"
)

// Handler returns the Handler responsible for routing request processing.
// Anything not matched by the server's own routes goes to the traced
// application.
func (s *Server) Handler() http.Handler {
	mux := goji.NewMux()

	mux.HandleFunc(pat.Get("/healthcheck"), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	mux.HandleFunc(pat.Get("/builddate"), build.HandleBuildDate)
	mux.HandleFunc(pat.Get("/version"), build.HandleVersion)

	mux.HandleFunc(pat.Get("/config/json"), config.HandleConfigJson(s.Config))
	mux.HandleFunc(pat.Get("/config/yaml"), config.HandleConfigYaml(s.Config))

	mux.Handle(pat.Get("/debug/pprof/cmdline"), http.HandlerFunc(pprof.Cmdline))
	mux.Handle(pat.Get("/debug/pprof/profile"), http.HandlerFunc(pprof.Profile))
	mux.Handle(pat.Get("/debug/pprof/symbol"), http.HandlerFunc(pprof.Symbol))
	mux.Handle(pat.Get("/debug/pprof/trace"), http.HandlerFunc(pprof.Trace))
	// TODO match without trailing slash as well
	mux.Handle(pat.Get("/debug/pprof/*"), http.HandlerFunc(pprof.Index))

	mux.Handle(pat.New("/*"), s.Middleware.Wrap(s.app))

	return mux
}
