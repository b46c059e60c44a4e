package pregnancy

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/reprotech/pregtrack/internal/platform/auth"
	"github.com/reprotech/pregtrack/internal/platform/calendar"
	"github.com/reprotech/pregtrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.ReadRoles...))
	readGroup.GET("/transfers", h.ListTransfers)
	readGroup.GET("/transfers/:id", h.GetTransfer)
	readGroup.GET("/transfers/:id/tracking", h.GetTracking)
	readGroup.GET("/schedule", h.PreviewSchedule)
	readGroup.GET("/calendar/events", h.CalendarEvents)
	readGroup.GET("/calendar.ics", h.ExportCalendar)
	readGroup.GET("/dashboard", h.Dashboard)

	writeGroup := api.Group("", auth.RequireRole(auth.WriteRoles...))
	writeGroup.POST("/transfers", h.CreateTransfer)
	writeGroup.DELETE("/transfers/:id", h.DeleteTransfer)
	writeGroup.PUT("/transfers/:id/checkpoints/:checkpoint_id", h.UpdateCheckpoint)
}

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, verr.Fields)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidResult), errors.Is(err, ErrInvalidView):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// FilterFromContext reads the transfer filter query parameters.
func FilterFromContext(c echo.Context) (TransferFilter, error) {
	f := TransferFilter{
		Status:       TrackingState(c.QueryParam("status")),
		Veterinarian: c.QueryParam("veterinarian"),
		DonorID:      c.QueryParam("donor_id"),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := c.QueryParam(p.name)
		if v == "" {
			continue
		}
		t, err := ParseAnchorDate(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name+" date")
		}
		*p.dst = &t
	}
	return f, nil
}

// -- Transfer Handlers --

// transferRequest accepts transfer_date as YYYY-MM-DD or RFC 3339.
type transferRequest struct {
	Transfer
	TransferDate string `json:"transfer_date"`
}

func (h *Handler) CreateTransfer(c echo.Context) error {
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t := req.Transfer
	if req.TransferDate != "" {
		d, err := ParseAnchorDate(req.TransferDate)
		if err != nil {
			return httpError(err)
		}
		t.TransferDate = d
	}
	if err := h.svc.CreateTransfer(c.Request().Context(), &t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTransfer(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetTransfer(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTransfers(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter, err := FilterFromContext(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListTransfers(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Transfer{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) DeleteTransfer(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTransfer(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Tracking Handlers --

func (h *Handler) GetTracking(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Tracking(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) UpdateCheckpoint(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in ResultInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cp, err := h.svc.UpdateCheckpoint(c.Request().Context(), id, c.Param("checkpoint_id"), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cp)
}

type schedulePreview struct {
	AnchorDate           time.Time    `json:"anchor_date"`
	ExpectedDeliveryDate time.Time    `json:"expected_delivery_date"`
	Checkpoints          []Checkpoint `json:"checkpoints"`
}

func (h *Handler) PreviewSchedule(c echo.Context) error {
	anchor, err := ParseAnchorDate(c.QueryParam("anchor"))
	if err != nil {
		return httpError(err)
	}
	checkpoints, err := GenerateSchedule(anchor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, schedulePreview{
		AnchorDate:           dayOf(anchor),
		ExpectedDeliveryDate: checkpoints[len(checkpoints)-1].ScheduledDate,
		Checkpoints:          checkpoints,
	})
}

// -- Dashboard and Calendar Handlers --

func (h *Handler) Dashboard(c echo.Context) error {
	filter, err := FilterFromContext(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Dashboard(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) CalendarEvents(c echo.Context) error {
	view, err := ParseCalendarView(c.QueryParam("view"))
	if err != nil {
		return httpError(err)
	}
	filter, err := FilterFromContext(c)
	if err != nil {
		return err
	}
	events, err := h.svc.CalendarEvents(c.Request().Context(), filter, view)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"view":   view,
		"total":  len(events),
		"events": events,
	})
}

func (h *Handler) ExportCalendar(c echo.Context) error {
	filter, err := FilterFromContext(c)
	if err != nil {
		return err
	}
	text, err := h.svc.ExportCalendar(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="pregnancy-checks.ics"`)
	return c.Blob(http.StatusOK, calendar.ContentType, []byte(text))
}
