// Package view holds the server-rendered pages. Templates are embedded in
// the binary and parsed once at startup.
package view

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"time"

	"github.com/stemsi/assessment-runner/internal/model"
)

//go:embed templates/*.html
var files embed.FS

// Load parses every page template together with Funcs.
func Load() (*template.Template, error) {
	return template.New("").Funcs(Funcs()).ParseFS(files, "templates/*.html")
}

// Funcs are the helpers available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"json": func(v interface{}) (template.JS, error) {
			b, err := json.Marshal(v)
			return template.JS(b), err
		},
		"formatClock":    FormatClock,
		"formatDuration": FormatDuration,
		"formatTime":     FormatTime,
		"sortURL":        SortURL,
		"pageURL":        PageURL,
		"sortMark":       sortMark,
		"add":            func(a, b int) int { return a + b },
		"deref": func(p *int) int {
			if p == nil {
				return 0
			}
			return *p
		},
	}
}

// FormatClock renders seconds as h:mm:ss, or m:ss under an hour.
func FormatClock(seconds int) string {
	h, m, s := split(seconds)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatDuration renders seconds as "1h 2m 3s", or "2m 3s" under an hour.
func FormatDuration(seconds int) string {
	h, m, s := split(seconds)
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

func split(seconds int) (h, m, s int) {
	if seconds < 0 {
		seconds = 0
	}
	return seconds / 3600, seconds % 3600 / 60, seconds % 60
}

// FormatTime renders a time.Time or *time.Time for display, or "-" when
// unset.
func FormatTime(v interface{}) string {
	var t time.Time
	switch tv := v.(type) {
	case time.Time:
		t = tv
	case *time.Time:
		if tv != nil {
			t = *tv
		}
	}
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("Jan 2, 2006 3:04 PM") + " UTC"
}

// SortURL links to the admin list ordered by col. Clicking the active
// column flips the direction; a new column starts descending.
func SortURL(q model.AttemptQuery, col string) string {
	dir := model.SortDesc
	if string(q.Sort) == col && q.Dir == model.SortDesc {
		dir = model.SortAsc
	}
	v := values(q)
	v.Set("sort", col)
	v.Set("dir", string(dir))
	v.Del("page")
	return "/admin/attempts?" + v.Encode()
}

// PageURL links to page n of the current admin list.
func PageURL(q model.AttemptQuery, n int) string {
	v := values(q)
	v.Set("page", strconv.Itoa(n))
	return "/admin/attempts?" + v.Encode()
}

func values(q model.AttemptQuery) url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	v.Set("sort", string(q.Sort))
	v.Set("dir", string(q.Dir))
	if q.Page > 1 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	return v
}

func sortMark(q model.AttemptQuery, col string) string {
	if string(q.Sort) != col {
		return ""
	}
	if q.Dir == model.SortAsc {
		return "▲"
	}
	return "▼"
}
