package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/catalog"
	"github.com/stemsi/assessment-runner/internal/logger"
	"github.com/stemsi/assessment-runner/internal/model"
	"github.com/stemsi/assessment-runner/internal/response"
	"github.com/stemsi/assessment-runner/internal/service"
	"github.com/stemsi/assessment-runner/internal/validator"
)

// CandidateHandler serves the start page, the runner and the completion page.
type CandidateHandler struct {
	attemptService *service.AttemptService
	catalog        *catalog.Catalog
	log            zerolog.Logger
}

// NewCandidateHandler creates a new CandidateHandler.
func NewCandidateHandler(attemptService *service.AttemptService, cat *catalog.Catalog, log zerolog.Logger) *CandidateHandler {
	return &CandidateHandler{
		attemptService: attemptService,
		catalog:        cat,
		log:            logger.Component(log, "candidate_handler"),
	}
}

// StartPage godoc
// GET /
func (h *CandidateHandler) StartPage(c *gin.Context) {
	renderPage(c, http.StatusOK, "start", h.catalog, gin.H{
		"Form":   model.StartAttemptRequest{},
		"Errors": map[string]string{},
	})
}

// Start godoc
// POST /
// Creates an attempt and redirects to its runner.
func (h *CandidateHandler) Start(c *gin.Context) {
	req := model.StartAttemptRequest{
		Name:  c.PostForm("name"),
		Email: c.PostForm("email"),
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), req)
	if err != nil {
		var verrs service.ValidationErrors
		if errors.As(err, &verrs) {
			renderPage(c, http.StatusUnprocessableEntity, "start", h.catalog, gin.H{
				"Form":   req,
				"Errors": map[string]string(verrs),
			})
			return
		}
		h.log.Error().Err(err).Msg("Start attempt failed")
		renderError(c, http.StatusInternalServerError, response.ErrInternal, h.catalog)
		return
	}

	seeOther(c, "/a/"+attempt.Token)
}

// Runner godoc
// GET /a/:token
// Renders the runner with every stored answer pre-filled.
func (h *CandidateHandler) Runner(c *gin.Context) {
	state, err := h.attemptService.Runner(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.renderRunner(c, http.StatusOK, state, map[string]string{})
}

// SubmitForm godoc
// POST /a/:token
// Form submit from the runner. Fields are answers[<question_key>] and session_id.
func (h *CandidateHandler) SubmitForm(c *gin.Context) {
	token := c.Param("token")
	answers := c.PostFormMap("answers")
	sessionID := c.PostForm("session_id")

	_, err := h.attemptService.SubmitByToken(c.Request.Context(), token, answers, sessionID)
	if err != nil {
		var verrs service.ValidationErrors
		if !errors.As(err, &verrs) {
			h.fail(c, err)
			return
		}

		state, err := h.attemptService.Runner(c.Request.Context(), token)
		if err != nil {
			h.fail(c, err)
			return
		}
		// Show what the candidate sent, not what was last autosaved.
		state.Answers = h.catalog.Fill(answers)
		state.AnsweredCount = h.catalog.AnsweredCount(state.Answers)
		h.renderRunner(c, http.StatusUnprocessableEntity, state, verrs)
		return
	}

	seeOther(c, "/a/"+token+"/done")
}

// Autosave godoc
// POST /a/:token/autosave
// Periodic JSON autosave from the runner.
func (h *CandidateHandler) Autosave(c *gin.Context) {
	var req model.AutosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.AutosaveByToken(c.Request.Context(), c.Param("token"), req.Answers, req.SessionID)
	if err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Autosave failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrSaveFailed)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Submit godoc
// POST /a/:token/submit
// JSON variant of the submit form.
func (h *CandidateHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.SubmitByToken(c.Request.Context(), c.Param("token"), req.Answers, req.SessionID)
	if err != nil {
		var verrs service.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation, verrs)
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		default:
			h.log.Error().Err(err).Msg("Submit failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"status":           attempt.Status,
		"completed_at":     attempt.CompletedAt,
		"duration_seconds": attempt.DurationSeconds,
	})
}

// Complete godoc
// GET /a/:token/done
// Only renders once the attempt is submitted; until then it sends the
// candidate back to the runner.
func (h *CandidateHandler) Complete(c *gin.Context) {
	token := c.Param("token")
	attempt, err := h.attemptService.GetByToken(c.Request.Context(), token)
	if err != nil {
		h.fail(c, err)
		return
	}

	if attempt.IsInProgress() {
		c.Redirect(http.StatusFound, "/a/"+token)
		return
	}

	renderPage(c, http.StatusOK, "complete", h.catalog, gin.H{
		"PageTitle":       "Submitted",
		"Attempt":         attempt,
		"DurationSeconds": durationOf(attempt),
	})
}

func (h *CandidateHandler) renderRunner(c *gin.Context, status int, state *service.RunnerState, errs map[string]string) {
	renderPage(c, status, "runner", h.catalog, gin.H{
		"PageTitle": "Assessment",
		"Token":     state.Attempt.Token,
		"ResumeURL": strings.TrimSuffix(absoluteURL(c), "/"),
		"Sections":  h.catalog.Sections(),
		"State":     state,
		"Errors":    errs,
	})
}

func (h *CandidateHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, service.ErrAttemptNotFound) {
		renderError(c, http.StatusNotFound, response.ErrAttemptNotFound, h.catalog)
		return
	}
	h.log.Error().Err(err).Msg("Candidate request failed")
	renderError(c, http.StatusInternalServerError, response.ErrInternal, h.catalog)
}

// NotFound renders the 404 page for unknown routes.
func (h *CandidateHandler) NotFound(c *gin.Context) {
	renderError(c, http.StatusNotFound, response.ErrNotFound, h.catalog)
}
