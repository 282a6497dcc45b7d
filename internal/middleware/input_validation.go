package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/BradenHooton/farmguard/internal/services"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

// InputScreener flags malicious payloads in decoded request data
type InputScreener interface {
	ValidateStructure(data any, root string) services.StructureResult
	ReportViolation(ctx context.Context, issues []services.InputIssue, info services.RequestInfo) error
}

// InputValidation screens query parameters and JSON bodies. A positive
// detection is reported and rejected with a generic message; the payload
// is never echoed back. Multipart bodies are left to the upload scanner,
// and bodies that are not valid JSON are left to the handler.
func InputValidation(screener InputScreener, resolver *pkghttp.IPResolver, maxBodyBytes int64, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var issues []services.InputIssue

			if len(r.URL.RawQuery) > 0 {
				result := screener.ValidateStructure(queryValues(r), "query")
				issues = append(issues, result.Issues...)
			}

			if hasJSONBody(r) {
				raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
				_ = r.Body.Close()
				if err != nil {
					pkghttp.WriteBadRequest(w, "Could not read request body")
					return
				}
				if int64(len(raw)) > maxBodyBytes {
					pkghttp.WriteError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(raw))

				var body any
				if err := json.Unmarshal(raw, &body); err == nil {
					result := screener.ValidateStructure(body, "body")
					issues = append(issues, result.Issues...)
				}
			}

			if len(issues) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			if err := screener.ReportViolation(r.Context(), issues, requestInfo(r, resolver)); err != nil {
				logger.ErrorContext(r.Context(), "failed to report input violation", slog.Any("error", err))
				pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
				return
			}
			pkghttp.WriteBadRequest(w, "Invalid input detected.")
		})
	}
}

func queryValues(r *http.Request) map[string]any {
	out := make(map[string]any)
	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			out[key] = values[0]
			continue
		}
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		out[key] = list
	}
	return out
}

func hasJSONBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
