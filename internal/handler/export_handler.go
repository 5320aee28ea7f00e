package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/export"
	"github.com/stemsi/assessment-runner/internal/logger"
	"github.com/stemsi/assessment-runner/internal/response"
	"github.com/stemsi/assessment-runner/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler streams submitted attempts as downloads.
type ExportHandler struct {
	exportService *service.ExportService
	log           zerolog.Logger
	now           func() time.Time
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(exportService *service.ExportService, log zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		exportService: exportService,
		log:           logger.Component(log, "export_handler"),
		now:           time.Now,
	}
}

// SubmissionsCSV godoc
// GET /admin/export/submissions.csv
// Rows are written as they are read, one page of attempts at a time. A client
// disconnect cancels the request context and stops the scan.
func (h *ExportHandler) SubmissionsCSV(c *gin.Context) {
	cat := h.exportService.Catalog()
	subs := h.exportService.Submissions(c.Request.Context())

	h.attachment(c, "text/csv", export.Filename(h.now(), "csv"))
	c.Status(http.StatusOK)

	rows, err := export.WriteCSV(c.Writer, cat, subs)
	h.finish(c, "csv", rows, err)
}

// SubmissionsXLSX godoc
// GET /admin/export/submissions.xlsx
// Same columns and order as the CSV export.
func (h *ExportHandler) SubmissionsXLSX(c *gin.Context) {
	cat := h.exportService.Catalog()
	subs := h.exportService.Submissions(c.Request.Context())

	// The workbook is only written once complete, so failures before that
	// can still be reported with a proper status.
	h.attachment(c, xlsxContentType, export.Filename(h.now(), "xlsx"))
	rows, err := export.WriteXLSX(c.Writer, cat, subs)
	if err != nil && !c.Writer.Written() {
		c.Writer.Header().Del("Content-Type")
		c.Writer.Header().Del("Content-Disposition")
		h.log.Error().Err(err).Msg("XLSX export failed")
		renderError(c, http.StatusInternalServerError, response.ErrInternal, cat)
		return
	}
	h.finish(c, "xlsx", rows, err)
}

func (h *ExportHandler) attachment(c *gin.Context, contentType, filename string) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("X-Content-Type-Options", "nosniff")
}

func (h *ExportHandler) finish(c *gin.Context, format string, rows int, err error) {
	if err != nil {
		// Headers are gone; all that is left is to stop and record it.
		_ = c.Error(err)
		h.log.Error().Err(err).Str("format", format).Int("rows", rows).Msg("Export aborted")
		return
	}
	h.log.Info().Str("format", format).Int("rows", rows).Msg("Export finished")
}
