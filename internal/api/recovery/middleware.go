package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/ryosuke1832/remind/internal/api/respond"
)

// routeVars are the path variables worth attaching to a panic report.
var routeVars = []string{"userId", "avatarId", "sessionId"}

// Middleware turns a handler panic into a 500 and logs the route and the
// ids it was serving. A response that already started, such as a snapshot
// stream, is left as is since its status cannot change.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			evt := log.Error().
				Interface("panic", rec).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Bool("response_started", tw.started).
				Bytes("stack", debug.Stack())
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					evt = evt.Str("route", tpl)
				}
			}
			vars := mux.Vars(r)
			for _, k := range routeVars {
				if v, ok := vars[k]; ok {
					evt = evt.Str(k, v)
				}
			}
			evt.Msg("handler panic")

			if !tw.started {
				respond.WriteInternalError(w, "unexpected error")
			}
		}()
		next.ServeHTTP(tw, r)
	})
}

type trackingWriter struct {
	http.ResponseWriter
	started bool
}

func (t *trackingWriter) WriteHeader(code int) {
	t.started = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.started = true
	return t.ResponseWriter.Write(b)
}

// Flush keeps streaming handlers working behind the wrapper.
func (t *trackingWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		t.started = true
		f.Flush()
	}
}
