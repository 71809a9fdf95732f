package apiclient

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// sensitiveFields are header name fragments that must never reach the logs
var sensitiveFields = []string{
	"authorization",
	"token",
	"cookie",
	"secret",
	"api_key",
	"session",
	"credential",
}

func logRequest(lg *slog.Logger, req *http.Request) {
	lg.Debug("api request",
		"request_id", req.Header.Get(HeaderRequestID),
		"method", req.Method,
		"path", req.URL.Path,
		"query", req.URL.RawQuery,
		"headers", filterSensitiveHeaders(req.Header),
	)
}

func logResponse(lg *slog.Logger, req *http.Request, statusCode, size int, duration time.Duration) {
	logLevel := slog.LevelDebug
	if statusCode >= 500 {
		logLevel = slog.LevelWarn
	}

	lg.Log(req.Context(), logLevel, "api response",
		"request_id", req.Header.Get(HeaderRequestID),
		"method", req.Method,
		"path", req.URL.Path,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", size,
	)
}

// filterSensitiveHeaders masks headers that carry credentials
func filterSensitiveHeaders(headers http.Header) map[string]string {
	filtered := make(map[string]string, len(headers))

	for name, values := range headers {
		lowerName := strings.ToLower(name)

		isSensitive := false
		for _, sensitiveField := range sensitiveFields {
			if strings.Contains(lowerName, sensitiveField) {
				isSensitive = true
				break
			}
		}

		if isSensitive {
			filtered[name] = "[FILTERED]"
		} else {
			filtered[name] = strings.Join(values, ", ")
		}
	}

	return filtered
}
