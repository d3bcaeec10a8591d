package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/civicsense/backend/internal/db"
	"github.com/civicsense/backend/internal/models"
	"github.com/civicsense/backend/internal/service"
)

type Handler struct {
	Store        *db.Store
	Orchestrator *service.Orchestrator
	Recovery     *service.RecoveryProcessor
	Validator    *validator.Validate
	Logger       zerolog.Logger
	AdminKey     string
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type SubmitReportRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	OrgID   string `json:"org_id" validate:"required,uuid"`
	Text    string `json:"text" validate:"required,min=3"`
	Channel string `json:"channel" validate:"required,oneof=sms voice"`
}

type SubmitReportResponse struct {
	Success    bool     `json:"success"`
	TicketID   string   `json:"ticket_id,omitempty"`
	MergedInto string   `json:"merged_into,omitempty"`
	Decision   string   `json:"decision,omitempty"`
	Trace      []string `json:"trace"`
	Error      string   `json:"error,omitempty"`
}

// @Summary Submit a free-text incident report
// @Description Runs the intake pipeline for one SMS/voice report
// @Tags reports
// @Accept json
// @Produce json
// @Param request body SubmitReportRequest true "report"
// @Success 200 {object} SubmitReportResponse
// @Failure 400 {object} map[string]any
// @Failure 422 {object} SubmitReportResponse
// @Router /api/reports [post]
func (h *Handler) SubmitReport(c *gin.Context) {
	var req SubmitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	res := h.Orchestrator.ProcessReport(c.Request.Context(), req.UserID, req.OrgID, req.Text, req.Channel)
	resp := SubmitReportResponse{
		Success:    res.Success,
		TicketID:   res.TicketID,
		MergedInto: res.MergedInto,
		Decision:   res.Decision,
		Trace:      res.Trace,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Reprocess failed workflows
// @Tags recovery
// @Accept json
// @Produce json
// @Param request body ReprocessRequest true "batch"
// @Success 200 {object} service.RecoveryResult
// @Router /api/recovery/reprocess [post]
func (h *Handler) Reprocess(c *gin.Context) {
	var req ReprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed request body", nil)
		return
	}
	if req.BatchSize <= 0 {
		req.BatchSize = 10
	}

	res, err := h.Recovery.Reprocess(c.Request.Context(), req.BatchSize)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "RECOVERY_ERROR", "Recovery scan failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

type ReprocessRequest struct {
	BatchSize int `json:"batch_size"`
}

// @Summary List tickets
// @Tags tickets
// @Produce json
// @Param org_id query string false "organization id"
// @Param status query string false "status filter"
// @Param priority query string false "priority filter"
// @Param q query string false "text search"
// @Success 200 {object} map[string]any
// @Router /api/tickets [get]
func (h *Handler) TicketsList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	tickets, err := h.Store.ListTickets(c.Request.Context(),
		c.Query("org_id"), c.Query("status"), c.Query("priority"), c.Query("q"), limit, offset)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list tickets", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// @Summary Ticket details
// @Tags tickets
// @Produce json
// @Param id path string true "ticket id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/tickets/{id} [get]
func (h *Handler) TicketDetails(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	ticket, err := h.Store.GetTicket(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load ticket", err.Error())
		return
	}

	reports, err := h.Store.ListReports(ctx, id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load reports", err.Error())
		return
	}
	children, err := h.Store.ListChildTickets(ctx, id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load children", err.Error())
		return
	}
	events, err := h.Store.ListTicketEvents(ctx, id, 50)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load events", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticket":   ticket,
		"reports":  reports,
		"children": children,
		"events":   eventsJSON(events),
	})
}

// @Summary List organizations
// @Tags dashboard
// @Produce json
// @Success 200 {object} map[string]any
// @Router /organizations [get]
func (h *Handler) OrganizationsList(c *gin.Context) {
	orgs, err := h.Store.ListOrganizations(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list organizations", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

// @Summary Organization dashboard
// @Tags dashboard
// @Produce json
// @Param orgID path string true "organization id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /dashboard/{orgID} [get]
func (h *Handler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	orgID := c.Param("orgID")

	org, err := h.Store.GetOrganization(ctx, orgID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Organization not found", nil)
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load organization", err.Error())
		return
	}

	metrics, err := h.Store.GetDashboardMetrics(ctx, orgID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load metrics", err.Error())
		return
	}
	parents, err := h.Store.ListParentTickets(ctx, orgID, 25)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load tickets", err.Error())
		return
	}
	activity, err := h.Store.ListRecentActivity(ctx, orgID, 20)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load activity", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"organization":   org,
		"metrics":        metrics,
		"parentTickets":  parents,
		"recentActivity": eventsJSON(activity),
	})
}

func eventsJSON(events []models.WorkflowEvent) []gin.H {
	out := make([]gin.H, 0, len(events))
	for _, e := range events {
		var payload any
		if len(e.Payload) > 0 {
			_ = json.Unmarshal(e.Payload, &payload)
		}
		out = append(out, gin.H{
			"id":        e.ID,
			"ticket_id": e.TicketID,
			"type":      e.EventType,
			"payload":   payload,
			"processed": e.Processed,
			"timestamp": e.CreatedAt,
		})
	}
	return out
}

func writeError(c *gin.Context, status int, code, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
