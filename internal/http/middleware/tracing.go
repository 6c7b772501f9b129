package middleware

import (
	"net/http"

	"go.opencensus.io/plugin/ochttp"
	"go.opencensus.io/trace"
)

// TracingMiddleware opens an OpenCensus span per request, named after the RPC route
func TracingMiddleware(next http.Handler) http.Handler {
	annotated := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if span := trace.FromContext(r.Context()); span != nil {
			span.AddAttributes(
				trace.StringAttribute("http.method", r.Method),
				trace.StringAttribute("http.path", r.URL.Path),
			)
			if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
				span.AddAttributes(trace.StringAttribute("http.request_id", requestID))
			}
			w = &statusRecorder{ResponseWriter: w, span: span}
		}
		next.ServeHTTP(w, r)
	})

	return &ochttp.Handler{
		Handler: annotated,
		FormatSpanName: func(r *http.Request) string {
			return r.Method + " " + r.URL.Path
		},
		IsPublicEndpoint: true,
	}
}

// statusRecorder marks the span failed on 4xx and 5xx responses
type statusRecorder struct {
	http.ResponseWriter
	span *trace.Span
}

func (s *statusRecorder) WriteHeader(code int) {
	s.span.AddAttributes(trace.Int64Attribute("http.status_code", int64(code)))
	if code >= 400 {
		s.span.SetStatus(trace.Status{Code: trace.StatusCodeUnknown, Message: http.StatusText(code)})
	}
	s.ResponseWriter.WriteHeader(code)
}
