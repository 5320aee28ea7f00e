package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/catalog"
	"github.com/stemsi/assessment-runner/internal/logger"
	"github.com/stemsi/assessment-runner/internal/model"
	"github.com/stemsi/assessment-runner/internal/response"
	"github.com/stemsi/assessment-runner/internal/service"
	"github.com/stemsi/assessment-runner/internal/validator"
)

// AdminHandler serves the review pages behind Basic Auth.
type AdminHandler struct {
	adminService  *service.AdminService
	catalog       *catalog.Catalog
	retentionDays int
	log           zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(adminService *service.AdminService, cat *catalog.Catalog, retentionDays int, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		adminService:  adminService,
		catalog:       cat,
		retentionDays: retentionDays,
		log:           logger.Component(log, "admin_handler"),
	}
}

// Home godoc
// GET /admin
func (h *AdminHandler) Home(c *gin.Context) {
	c.Redirect(http.StatusFound, "/admin/attempts")
}

// ListAttempts godoc
// GET /admin/attempts?search=&status=&sort=&dir=&page=
// Unknown filter values fall back to defaults instead of failing.
func (h *AdminHandler) ListAttempts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	q := model.NewAttemptQuery(c.Query("search"), c.Query("status"), c.Query("sort"), c.Query("dir"), page)

	result, err := h.adminService.ListAttempts(c.Request.Context(), q)
	if err != nil {
		h.log.Error().Err(err).Msg("List attempts failed")
		renderError(c, http.StatusInternalServerError, response.ErrInternal, h.catalog)
		return
	}

	if response.WantsJSON(c) {
		response.SuccessWithPagination(c, http.StatusOK, gin.H{
			"attempts": result.Attempts,
			"stats":    result.Stats,
			"query":    result.Query,
		}, response.NewPagination(q.Page, model.AttemptsPerPage, result.TotalItems))
		return
	}

	renderPage(c, http.StatusOK, "admin_attempts", h.catalog, gin.H{
		"PageTitle":     "Attempts",
		"Page":          result,
		"RetentionDays": h.retentionDays,
	})
}

// ShowAttempt godoc
// GET /admin/attempts/:id
func (h *AdminHandler) ShowAttempt(c *gin.Context) {
	id, ok := h.attemptID(c)
	if !ok {
		return
	}

	detail, err := h.adminService.GetAttempt(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	if response.WantsJSON(c) {
		response.Success(c, http.StatusOK, detail)
		return
	}
	h.renderDetail(c, http.StatusOK, detail, map[string]string{})
}

// UpdateNotes godoc
// POST /admin/attempts/:id/notes
func (h *AdminHandler) UpdateNotes(c *gin.Context) {
	id, ok := h.attemptID(c)
	if !ok {
		return
	}

	var req model.UpdateNotesRequest
	if fields := validator.BindForm(c, &req); fields != nil {
		if response.WantsJSON(c) {
			response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation, fields)
			return
		}
		detail, err := h.adminService.GetAttempt(c.Request.Context(), id)
		if err != nil {
			h.fail(c, err)
			return
		}
		h.renderDetail(c, http.StatusUnprocessableEntity, detail, fields)
		return
	}

	if err := h.adminService.UpdateNotes(c.Request.Context(), id, req.Notes); err != nil {
		h.fail(c, err)
		return
	}
	h.done(c, id)
}

// Review godoc
// POST /admin/attempts/:id/review
// reviewed=true stamps reviewed_at, reviewed=false clears it.
func (h *AdminHandler) Review(c *gin.Context) {
	id, ok := h.attemptID(c)
	if !ok {
		return
	}

	var req model.ReviewRequest
	if fields := validator.BindForm(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.adminService.SetReviewed(c.Request.Context(), id, req.Reviewed); err != nil {
		h.fail(c, err)
		return
	}
	h.done(c, id)
}

func (h *AdminHandler) renderDetail(c *gin.Context, status int, detail *service.AttemptDetail, errs map[string]string) {
	renderPage(c, status, "admin_attempt", h.catalog, gin.H{
		"PageTitle":       detail.Attempt.CandidateName,
		"Detail":          detail,
		"Sections":        h.catalog.Sections(),
		"DurationSeconds": durationOf(detail.Attempt),
		"Errors":          errs,
	})
}

// done finishes a successful admin POST.
func (h *AdminHandler) done(c *gin.Context, id int64) {
	if response.WantsJSON(c) {
		detail, err := h.adminService.GetAttempt(c.Request.Context(), id)
		if err != nil {
			h.fail(c, err)
			return
		}
		response.Success(c, http.StatusOK, detail)
		return
	}
	seeOther(c, fmt.Sprintf("/admin/attempts/%d", id))
}

// attemptID parses :id. Malformed ids are answered like unknown ones.
func (h *AdminHandler) attemptID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		renderError(c, http.StatusNotFound, response.ErrNotFound, h.catalog)
		return 0, false
	}
	return id, true
}

func (h *AdminHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, service.ErrAttemptNotFound) {
		renderError(c, http.StatusNotFound, response.ErrNotFound, h.catalog)
		return
	}
	h.log.Error().Err(err).Msg("Admin request failed")
	renderError(c, http.StatusInternalServerError, response.ErrInternal, h.catalog)
}
