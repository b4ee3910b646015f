package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware returns middleware that instruments HTTP requests with
// OpenTelemetry. If telemetry is disabled, it acts as a pass-through.
func HTTPMiddleware(tel *Telemetry, serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			tracer := tel.TracerProvider().Tracer(serviceName)

			attrs := []attribute.KeyValue{
				AttrHTTPMethod.String(r.Method),
				AttrHTTPTarget.String(r.URL.Path),
				AttrHTTPScheme.String(r.URL.Scheme),
			}
			if r.Host != "" {
				attrs = append(attrs, AttrHTTPHost.String(r.Host))
			}
			if r.RemoteAddr != "" {
				attrs = append(attrs, AttrHTTPRemoteAddr.String(r.RemoteAddr))
			}

			spanName := r.Method + " " + r.URL.Path
			ctx, span := tracer.Start(
				r.Context(),
				spanName,
				trace.WithAttributes(attrs...),
			)

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			duration := time.Since(start)

			if m := tel.Metrics(); m != nil {
				attrs := []attribute.KeyValue{
					AttrHTTPMethod.String(r.Method),
					AttrHTTPStatusCode.Int(rw.status),
				}
				m.HTTPRequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
				m.HTTPRequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
				if rw.size > 0 {
					m.HTTPResponseSize.Record(ctx, int64(rw.size), metric.WithAttributes(attrs...))
				}
			}

			if rw.status >= 400 {
				span.SetStatus(codes.Error, http.StatusText(rw.status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.SetAttributes(AttrHTTPStatusCode.Int(rw.status))
			span.End()
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Hijack lets the WebSocket upgrade take over the underlying connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}
