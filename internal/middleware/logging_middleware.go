package middleware

import (
	"time"

	"github.com/annel0/skyplots/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Ключи gin.Context
const (
	TraceIDKey  = "trace_id"
	OperatorKey = "operator" // имя оператора из JWT, заполняется в api
)

// DefaultSlowRequest — порог медленного запроса
const DefaultSlowRequest = time.Second

// RequestLogger снабжает каждый HTTP-запрос trace-ID и пишет краткие логи
// в логгер компонента api.
type RequestLogger struct {
	log  *logging.Logger
	slow time.Duration
}

func NewRequestLogger() *RequestLogger {
	return &RequestLogger{log: logging.GetAPILogger(), slow: DefaultSlowRequest}
}

// WithSlowThreshold задаёт порог, после которого запрос логируется как медленный
func (rl *RequestLogger) WithSlowThreshold(d time.Duration) *RequestLogger {
	rl.slow = d
	return rl
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// trace-id берём из OpenTelemetry, если span уже создан
		traceID := uuid.NewString()
		if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
			traceID = sc.TraceID().String()
		}
		c.Set(TraceIDKey, traceID)
		c.Header("X-Trace-ID", traceID)

		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		operator := c.GetString(OperatorKey)
		if operator == "" {
			operator = "-"
		}

		switch {
		case status >= 500:
			rl.log.Error("[HTTP] %s %s %d %s op=%s ip=%s trace=%s", c.Request.Method, path, status, latency, operator, c.ClientIP(), traceID)
		case status >= 400:
			rl.log.Warn("[HTTP] %s %s %d %s op=%s ip=%s trace=%s", c.Request.Method, path, status, latency, operator, c.ClientIP(), traceID)
		case latency > rl.slow:
			rl.log.Warn("🐢 [HTTP] медленный запрос %s %s %s op=%s trace=%s", c.Request.Method, path, latency, operator, traceID)
		default:
			rl.log.Info("[HTTP] %s %s %d %s op=%s trace=%s", c.Request.Method, path, status, latency, operator, traceID)
		}
	}
}
