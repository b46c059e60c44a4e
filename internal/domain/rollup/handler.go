package rollup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/reprotech/pregtrack/internal/domain/pregnancy"
	"github.com/reprotech/pregtrack/internal/platform/auth"
	"github.com/reprotech/pregtrack/internal/platform/db"
)

// TransferSource lists the transfers a rollup is computed over.
type TransferSource interface {
	ListAllTransfers(ctx context.Context, filter pregnancy.TransferFilter) ([]*pregnancy.Transfer, error)
}

// ReportCache stores computed reports between requests.
type ReportCache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) error
}

const defaultBranchKey = "default"

type Handler struct {
	source TransferSource
	cache  ReportCache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewHandler(source TransferSource, logger zerolog.Logger) *Handler {
	return &Handler{source: source, logger: logger}
}

// SetCache enables report caching. Entries live for ttl and are dropped for
// a branch whenever its transfers change.
func (h *Handler) SetCache(c ReportCache, ttl time.Duration) {
	h.cache = c
	h.ttl = ttl
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/analytics/rollup", h.GetRollup, auth.RequireRole(auth.ReadRoles...))
}

func branchKey(ctx context.Context) string {
	if b := db.BranchFromContext(ctx); b != "" {
		return b
	}
	return defaultBranchKey
}

func cacheKey(ctx context.Context, key GroupKey, f pregnancy.TransferFilter) string {
	day := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("20060102")
	}
	return fmt.Sprintf("rollup:%s:%s:%s|%s|%s|%s|%s",
		branchKey(ctx), key, f.Status, f.Veterinarian, f.DonorID, day(f.From), day(f.To))
}

// Report computes the rollup for filter, served from the cache when one is
// configured and holds a fresh entry.
func (h *Handler) Report(ctx context.Context, key GroupKey, filter pregnancy.TransferFilter) (*Report, error) {
	ck := cacheKey(ctx, key, filter)
	if h.cache != nil {
		var cached Report
		hit, err := h.cache.GetJSON(ctx, ck, &cached)
		if err != nil {
			h.logger.Warn().Err(err).Str("key", ck).Msg("rollup cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	transfers, err := h.source.ListAllTransfers(ctx, filter)
	if err != nil {
		return nil, err
	}
	report := Rollup(key, GroupBy(transfers, key))

	if h.cache != nil {
		if err := h.cache.SetJSON(ctx, ck, report, h.ttl); err != nil {
			h.logger.Warn().Err(err).Str("key", ck).Msg("rollup cache write failed")
		}
	}
	return report, nil
}

// TransfersChanged drops the cached reports of the caller's branch.
func (h *Handler) TransfersChanged(ctx context.Context) {
	if h.cache == nil {
		return
	}
	pattern := "rollup:" + branchKey(ctx) + ":*"
	if err := h.cache.DeletePattern(ctx, pattern); err != nil {
		h.logger.Warn().Err(err).Str("pattern", pattern).Msg("rollup cache invalidation failed")
	}
}

func (h *Handler) GetRollup(c echo.Context) error {
	key, err := ParseGroupKey(c.QueryParam("group_by"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	filter, err := pregnancy.FilterFromContext(c)
	if err != nil {
		return err
	}

	field := c.QueryParam("sort")
	if field == "" {
		field = "name"
	}
	asc := true
	switch strings.ToLower(c.QueryParam("order")) {
	case "", "asc":
	case "desc":
		asc = false
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "order must be asc or desc")
	}

	report, err := h.Report(c.Request().Context(), key, filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	rows := FilterSummaries(report.Groups, c.QueryParam("q"))
	if err := SortSummaries(rows, field, asc); err != nil {
		if errors.Is(err, ErrUnknownField) {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("%s; sort must be one of: %s", err, strings.Join(SortFields(), ", ")))
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	report.Groups = rows
	return c.JSON(http.StatusOK, report)
}
