package logger

import (
	"bytes"
	"io"
	log "log/slog"
	"net/http"
	"time"
)

const bodyLogLimit = 512

// HTTPTransport 记录外部 HTTP 调用的耗时与响应
type HTTPTransport struct {
	Transport http.RoundTripper
	Name      string
}

func NewHTTPTransport(name string) *HTTPTransport {
	return &HTTPTransport{Transport: http.DefaultTransport, Name: name}
}

func (t *HTTPTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Transport.RoundTrip(req)
	elapsed := time.Since(start)

	fields := []any{
		log.String("upstream", t.Name),
		log.String("method", req.Method),
		log.String("url", req.URL.Redacted()),
		log.Duration("latency", elapsed),
	}

	if err != nil {
		log.ErrorContext(req.Context(), "HTTP Upstream Error", append(fields, log.Any("err", err))...)
		return nil, err
	}
	fields = append(fields, log.Int("status", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest && resp.Body != nil {
		body, _ := io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewBuffer(body))
		if len(body) > bodyLogLimit {
			body = append(body[:bodyLogLimit], "...[truncated]"...)
		}
		log.WarnContext(req.Context(), "HTTP Upstream Failed", append(fields, log.String("res_body", string(body)))...)
		return resp, nil
	}

	if elapsed > 500*time.Millisecond {
		log.WarnContext(req.Context(), "HTTP Upstream Slow", fields...)
	}
	return resp, nil
}
