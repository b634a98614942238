package middleware

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const CorrelationIDHeader = "X-Cacheproxy-Correlation-ID"

func newLoggingMiddleware(handler http.Handler, logger *zerolog.Logger) http.Handler {
	logHandler := hlog.NewHandler(*logger)

	correlationID := hlog.RequestIDHandler("id", CorrelationIDHeader)

	urlHandler := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := zerolog.Ctx(r.Context())
			log.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("url", r.URL.Redacted())
			})
			next.ServeHTTP(w, r)
		})
	}

	access := hlog.AccessHandler(func(req *http.Request, status, size int, duration time.Duration) {
		level := zerolog.InfoLevel
		if status == 0 {
			level = zerolog.ErrorLevel
		} else if status >= http.StatusInternalServerError {
			level = zerolog.WarnLevel
		}

		l := hlog.FromRequest(req).WithLevel(level) //nolint:zerologlint
		if ua := req.Header.Get("User-Agent"); ua != "" {
			l = l.Str("user-agent", ua)
		}
		l.
			Str("ip", req.RemoteAddr).
			Str("method", req.Method).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Processed request")
	})

	return logHandler(correlationID(access(urlHandler(handler))))
}

func newTraceMiddleware(next http.Handler, logger *zerolog.Logger) http.Handler {
	if logger.GetLevel() > zerolog.TraceLevel {
		logger.Debug().Msg("Tracing disabled, not adding trace middleware")
		return next
	}

	return http.HandlerFunc(func(respw http.ResponseWriter, req *http.Request) {
		headers := req.Header.Clone()
		headers.Del("Authorization")

		hlog.FromRequest(req).Trace().
			Any("headers", headers).
			Str("method", req.Method).
			Msg("Received request")
		defer func() {
			hlog.FromRequest(req).Trace().Any("headers", respw.Header()).Msg("Returned response")
		}()
		next.ServeHTTP(respw, req)
	})
}

func newMetricsMiddleware(
	next http.Handler,
	serviceName string,
	logger *zerolog.Logger,
	registry prometheus.Registerer,
) http.Handler {
	labels := prometheus.Labels{"service": serviceName}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "cacheproxy",
		Subsystem:   "http",
		Name:        "requests_total",
		Help:        "Number of HTTP requests handled, by status code and method",
		ConstLabels: labels,
	}, []string{"code", "method"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "cacheproxy",
		Subsystem:   "http",
		Name:        "request_duration_seconds",
		Help:        "Time taken to answer HTTP requests",
		ConstLabels: labels,
		Buckets:     prometheus.DefBuckets,
	}, []string{"code", "method"})

	for _, collector := range []prometheus.Collector{requests, duration} {
		if err := registry.Register(collector); err != nil {
			logger.Warn().Err(err).Msg("unable to register HTTP metrics, not instrumenting")
			return next
		}
	}

	return promhttp.InstrumentHandlerDuration(
		duration,
		promhttp.InstrumentHandlerCounter(requests, next),
	)
}

func ApplyAllMiddlewares(
	handler http.Handler,
	serviceName string,
	logger *zerolog.Logger,
	registry prometheus.Registerer,
) http.Handler {
	return newLoggingMiddleware(
		newMetricsMiddleware(newTraceMiddleware(handler, logger), serviceName, logger, registry),
		logger,
	)
}
