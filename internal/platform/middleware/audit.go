package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/reprotech/pregtrack/internal/platform/auth"
	"github.com/reprotech/pregtrack/internal/platform/db"
)

// AuditEntry records one change made through the API.
type AuditEntry struct {
	Timestamp    time.Time
	RequestID    string
	UserID       string
	UserName     string
	UserRoles    []string
	BranchID     string
	Action       string // create, update, delete
	Resource     string
	ResourceID   string
	CheckpointID string
	Method       string
	Path         string
	RemoteIP     string
	StatusCode   int
}

type AuditRecorder interface {
	RecordChange(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordChange(entry AuditEntry) error {
	return f(entry)
}

const apiPrefix = "/api/v1/"

// Audit logs every state-changing request under /api/v1/ once the handler
// has run. Reads are not audited. A nil recorder only logs.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := methodAction(req.Method)
			if action == "" || !strings.HasPrefix(req.URL.Path, apiPrefix) {
				return next(c)
			}

			err := next(c)

			status := responseStatus(c, err)
			ctx := req.Context()
			branch := db.BranchFromContext(ctx)
			if branch == "" {
				branch, _ = c.Get(auth.BranchClaimKey).(string)
			}
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				RequestID:  requestID(c),
				UserID:     auth.UserIDFromContext(ctx),
				UserName:   auth.UserNameFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				BranchID:   branch,
				Action:     action,
				Method:     req.Method,
				Path:       req.URL.Path,
				RemoteIP:   c.RealIP(),
				StatusCode: status,
			}
			entry.Resource, entry.ResourceID, entry.CheckpointID = splitResourcePath(req.URL.Path)

			if recorder != nil {
				if recErr := recorder.RecordChange(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("branch_id", entry.BranchID).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("checkpoint_id", entry.CheckpointID).
				Int("status", entry.StatusCode).
				Msg("change")

			return err
		}
	}
}

func methodAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return ""
}

// splitResourcePath reads /api/v1/<resource>[/<id>[/checkpoints/<checkpoint>]].
func splitResourcePath(path string) (resource, id, checkpoint string) {
	segs := strings.Split(strings.Trim(strings.TrimPrefix(path, apiPrefix), "/"), "/")
	if len(segs) > 0 {
		resource = segs[0]
	}
	if len(segs) > 1 {
		id = segs[1]
	}
	if len(segs) > 3 && segs[2] == "checkpoints" {
		checkpoint = segs[3]
	}
	return resource, id, checkpoint
}
