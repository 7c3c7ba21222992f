package provider

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/service/availability"
	"github.com/jwalitptl/consult-api/internal/service/provider"
	"github.com/jwalitptl/consult-api/pkg/httputil"
)

// Handler serves provider profiles and their availability calendars.
type Handler struct {
	providers    *provider.Service
	availability *availability.Service
}

func NewHandler(providers *provider.Service, availability *availability.Service) *Handler {
	return &Handler{providers: providers, availability: availability}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	providers := r.Group("/providers/:id")
	{
		providers.GET("", h.Get)
		providers.PUT("", h.Upsert)

		calendar := providers.Group("/availability")
		calendar.GET("", h.ListDays)
		calendar.PUT("", h.ReplaceAll)
		calendar.PUT("/week", h.ReplaceWeek)
		calendar.POST("/week/build", h.BuildWeek)
		calendar.GET("/:date", h.GetDay)
		calendar.GET("/:date/open-slots", h.OpenSlots)
	}
}

func (h *Handler) Get(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	p, err := h.providers.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, p)
}

// Upsert is how the profile service pushes fee and working hours.
func (h *Handler) Upsert(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.UpsertProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	p, err := h.providers.Upsert(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, p)
}

func (h *Handler) ListDays(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	days, err := h.availability.ListDays(c.Request.Context(), id, c.Query("from"), c.Query("to"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, days)
}

func (h *Handler) ReplaceAll(c *gin.Context) {
	h.replace(c, h.availability.ReplaceAll)
}

func (h *Handler) ReplaceWeek(c *gin.Context) {
	h.replace(c, h.availability.ReplaceWeek)
}

type replaceFunc = func(ctx context.Context, providerID uuid.UUID, days []model.Day) ([]model.Day, error)

func (h *Handler) replace(c *gin.Context, fn replaceFunc) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.ReplaceDaysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	days, err := fn(c.Request.Context(), id, req.Days)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, days)
}

// BuildWeek previews a week from default working hours. Nothing is stored.
func (h *Handler) BuildWeek(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.BuildWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	days, err := h.availability.BuildWeek(c.Request.Context(), id, req.WeekStart, req.OpenDates)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, days)
}

func (h *Handler) GetDay(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	day, err := h.availability.Lookup(c.Request.Context(), id, c.Param("date"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, day)
}

func (h *Handler) OpenSlots(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	slots, err := h.availability.OpenSlots(c.Request.Context(), id, c.Param("date"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, slots)
}
