package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/assessment-runner/internal/catalog"
	"github.com/stemsi/assessment-runner/internal/response"
)

// renderPage renders an HTML page with the fields the layout needs.
func renderPage(c *gin.Context, status int, name string, cat *catalog.Catalog, data gin.H) {
	data["AppTitle"] = cat.Title()
	c.HTML(status, name, data)
}

// renderError answers with the JSON envelope or the error page, whichever
// the client prefers.
func renderError(c *gin.Context, status int, code response.ErrCode, cat *catalog.Catalog) {
	if response.WantsJSON(c) {
		response.Fail(c, status, code)
		return
	}
	renderPage(c, status, "error", cat, gin.H{
		"PageTitle": http.StatusText(status),
		"Status":    status,
		"Message":   response.GetMessage(code),
	})
}

// seeOther redirects after a successful form POST.
func seeOther(c *gin.Context, location string) {
	c.Redirect(http.StatusSeeOther, location)
}

// absoluteURL rebuilds the public URL of the current request.
func absoluteURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}
