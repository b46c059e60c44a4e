package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/reprotech/pregtrack/internal/platform/auth"
)

type contextKey string

const (
	BranchIDKey contextKey = "branch_id"
	DBConnKey   contextKey = "db_conn"
)

// BranchHeader selects the branch when the token carries none.
const BranchHeader = "X-Branch-ID"

var branchIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidBranchID reports whether id is safe to use in a schema name.
func ValidBranchID(id string) bool {
	return branchIDPattern.MatchString(id)
}

// SchemaName returns the Postgres schema holding a branch's records.
func SchemaName(branchID string) string {
	return "branch_" + branchID
}

// BranchMiddleware acquires a connection scoped to the caller's branch schema
// and stores it on the request context for the repositories.
func BranchMiddleware(pool *pgxpool.Pool, defaultBranch string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			branchID := extractBranchID(c, defaultBranch)
			if !ValidBranchID(branchID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid branch identifier")
			}

			ctx := c.Request().Context()
			conn, err := acquireBranchConn(ctx, pool, branchID)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			ctx = context.WithValue(ctx, BranchIDKey, branchID)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(string(BranchIDKey), branchID)

			return next(c)
		}
	}
}

func acquireBranchConn(ctx context.Context, pool *pgxpool.Pool, branchID string) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", SchemaName(branchID))); err != nil {
		conn.Release()
		return nil, fmt.Errorf("set search_path for branch %s: %w", branchID, err)
	}
	return conn, nil
}

// extractBranchID resolves the branch from the token claim, then the header,
// then the default.
func extractBranchID(c echo.Context, defaultBranch string) string {
	if id, ok := c.Get(auth.BranchClaimKey).(string); ok && id != "" {
		return id
	}
	if id := c.Request().Header.Get(BranchHeader); id != "" {
		return id
	}
	return defaultBranch
}

// WithBranch runs fn with a branch-scoped connection on its context. It is the
// non-HTTP counterpart of BranchMiddleware, used by CLI commands.
func WithBranch(ctx context.Context, pool *pgxpool.Pool, branchID string, fn func(ctx context.Context) error) error {
	if !ValidBranchID(branchID) {
		return fmt.Errorf("invalid branch identifier: %q", branchID)
	}
	conn, err := acquireBranchConn(ctx, pool, branchID)
	if err != nil {
		return err
	}
	defer conn.Release()

	ctx = context.WithValue(ctx, BranchIDKey, branchID)
	ctx = context.WithValue(ctx, DBConnKey, conn)
	return fn(ctx)
}

// ConnFromContext retrieves the branch-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

func BranchFromContext(ctx context.Context) string {
	id, _ := ctx.Value(BranchIDKey).(string)
	return id
}

// CreateBranchSchema creates the schema for a branch and applies every
// migration to it. A nil migrator only creates the schema.
func CreateBranchSchema(ctx context.Context, pool *pgxpool.Pool, branchID string, migrator *Migrator) error {
	if !ValidBranchID(branchID) {
		return fmt.Errorf("invalid branch identifier: %q", branchID)
	}
	schema := SchemaName(branchID)

	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	if migrator != nil {
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}
	return nil
}
