package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/partner-portal/backend/internal/audit"
)

// maxRecordedBody caps how much of a request body is attached to an
// audit entry's details.
const maxRecordedBody = 64 * 1024

// AuditRecorder is the ingress adapter: it observes every completed
// request and hands it to the audit pipeline. Recording is fire-and-forget
// relative to the request it describes; nothing here can fail the
// business response.
func AuditRecorder(recorder *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		errorCode := ""
		if status >= 400 {
			errorCode = http.StatusText(status)
		}

		recorder.Record(audit.RequestInfo{
			Method:     c.Method(),
			Path:       c.Path(),
			Status:     status,
			ActorID:    GetActorID(c),
			TenantID:   GetTenantID(c),
			IPAddress:  c.IP(),
			UserAgent:  c.Get("User-Agent"),
			DurationMs: time.Since(start).Milliseconds(),
			ErrorCode:  errorCode,
			Details:    requestDetails(c),
		})

		return err
	}
}

// requestDetails merges query parameters and a JSON request body into one
// payload. Sanitization happens downstream in the recorder.
func requestDetails(c *fiber.Ctx) map[string]any {
	details := make(map[string]any)

	for k, v := range c.Queries() {
		details[k] = v
	}

	body := c.Body()
	if len(body) > 0 && len(body) <= maxRecordedBody {
		var parsed map[string]any
		if err := json.Unmarshal(body, &parsed); err == nil {
			for k, v := range parsed {
				details[k] = v
			}
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}
