package booking

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/internal/middleware"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/service/booking"
	"github.com/jwalitptl/consult-api/internal/service/flag"
	"github.com/jwalitptl/consult-api/pkg/httputil"
)

type Handler struct {
	service *booking.Service
	flags   *flag.Service
}

func NewHandler(service *booking.Service, flags *flag.Service) *Handler {
	return &Handler{service: service, flags: flags}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("", h.Create)
		bookings.GET("/transactions", h.Transactions)
		bookings.GET("/requester/:requesterId", h.ListByRequester)
		bookings.GET("/provider/:providerId", h.ListByProvider)
		bookings.GET("/provider/:providerId/date/:date", h.ListActiveByProviderAndDate)
		bookings.GET("/:id", h.Get)
		bookings.PATCH("/:id/status", h.UpdateStatus)
		bookings.PATCH("/:id/payment-status", h.UpdatePaymentStatus)
		bookings.DELETE("/:id", h.Delete)
		bookings.GET("/:id/flags", h.ListFlags)
		bookings.POST("/:id/flags", h.AddFlag)
		bookings.DELETE("/:id/flags/:flagId", h.RemoveFlag)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	// A verified token outranks whatever the body claims.
	if requester := middleware.RequesterID(c); requester != nil {
		req.RequesterID = requester
	}

	booking, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, booking)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	booking, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, booking)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	booking, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, booking)
}

// UpdatePaymentStatus is called back by the payment gateway.
func (h *Handler) UpdatePaymentStatus(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.UpdatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	booking, err := h.service.UpdatePaymentStatus(c.Request.Context(), id, req.PaymentStatus)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, booking)
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if err := h.service.Remove(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{"id": id})
}

func (h *Handler) ListByRequester(c *gin.Context) {
	requesterID, err := httputil.UUIDParam(c, "requesterId")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	bookings, err := h.service.ListByRequester(c.Request.Context(), requesterID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, bookings)
}

func (h *Handler) ListByProvider(c *gin.Context) {
	providerID, err := httputil.UUIDParam(c, "providerId")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	bookings, err := h.service.ListByProvider(c.Request.Context(), providerID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, bookings)
}

func (h *Handler) ListActiveByProviderAndDate(c *gin.Context) {
	providerID, err := httputil.UUIDParam(c, "providerId")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	bookings, err := h.service.ListActiveByProviderAndDate(c.Request.Context(), providerID, c.Param("date"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, bookings)
}

func (h *Handler) Transactions(c *gin.Context) {
	var filter model.TransactionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	var err error
	if filter.ProviderID, err = httputil.UUIDQuery(c, "providerId"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.RequesterID, err = httputil.UUIDQuery(c, "requesterId"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	page, err := h.service.Transactions(c.Request.Context(), &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{
		"transactions": page.Transactions,
		"summary":      page.Summary,
		"pagination":   httputil.NewPagination(filter.Page, filter.PageSize, page.Total),
	})
}

func (h *Handler) ListFlags(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	flags, err := h.flags.List(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, flags)
}

func (h *Handler) AddFlag(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.AddFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	if req.CreatedBy == "" {
		if requester := middleware.RequesterID(c); requester != nil {
			req.CreatedBy = requester.String()
		}
	}

	flag, err := h.flags.Append(c.Request.Context(), id, req.Type, req.Message, req.CreatedBy)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, flag)
}

func (h *Handler) RemoveFlag(c *gin.Context) {
	id, err := httputil.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	flagID, err := httputil.UUIDParam(c, "flagId")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if err := h.flags.Remove(c.Request.Context(), id, flagID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{"id": flagID})
}
