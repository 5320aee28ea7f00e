package router

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/catalog"
	"github.com/stemsi/assessment-runner/internal/config"
	"github.com/stemsi/assessment-runner/internal/handler"
	"github.com/stemsi/assessment-runner/internal/service"
	"github.com/stemsi/assessment-runner/internal/service/servicetest"
	"github.com/stemsi/assessment-runner/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	router *gin.Engine
	store  *servicetest.MemoryStore
	cat    *catalog.Catalog
}

func newTestApp(t *testing.T, mutate func(*config.Config)) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat, err := catalog.Default()
	require.NoError(t, err)
	pages, err := view.Load()
	require.NoError(t, err)

	cfg := &config.Config{
		GinMode:                gin.TestMode,
		AdminUsername:          "admin",
		AdminPassword:          "secret",
		RetentionDays:          180,
		StartRatePerMinute:     100,
		CandidateRatePerMinute: 1000,
		AdminRatePerMinute:     1000,
	}
	if mutate != nil {
		mutate(cfg)
	}

	log := zerolog.Nop()
	store := servicetest.NewMemoryStore()
	attempts := service.NewAttemptService(store, store, cat, log)
	admin := service.NewAdminService(store, store, cat, log)
	exports := service.NewExportService(store, store, cat)

	r := SetupRouter(&Handlers{
		Candidate: handler.NewCandidateHandler(attempts, cat, log),
		WS:        handler.NewWSHandler(attempts, log, nil),
		Admin:     handler.NewAdminHandler(admin, cat, cfg.RetentionDays, log),
		Export:    handler.NewExportHandler(exports, log),
	}, cfg, nil, pages, log)

	return &testApp{router: r, store: store, cat: cat}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req)
}

func (a *testApp) postJSON(path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return a.do(req)
}

func (a *testApp) admin(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.SetBasicAuth("admin", "secret")
	return a.do(req)
}

var tokenPath = regexp.MustCompile(`^/a/([0-9a-f]{64})$`)

func (a *testApp) start(t *testing.T) string {
	t.Helper()
	w := a.postForm("/", url.Values{"name": {"Ada Lovelace"}, "email": {"ada@example.com"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	m := tokenPath.FindStringSubmatch(w.Header().Get("Location"))
	require.Len(t, m, 2, "location %q", w.Header().Get("Location"))
	return m[1]
}

func (a *testApp) allAnswers() map[string]string {
	answers := make(map[string]string)
	for _, k := range a.cat.Keys() {
		answers[k] = "answer " + k
	}
	return answers
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, nil)
	w := app.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, string(decode(t, w).Data))
}

func TestStartPage(t *testing.T) {
	app := newTestApp(t, nil)
	w := app.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="email"`)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestStartValidation(t *testing.T) {
	app := newTestApp(t, nil)
	w := app.postForm("/", url.Values{"name": {"  "}, "email": {"nope"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `class="error"`)
	assert.Zero(t, app.store.Count())
}

func TestCandidateFlow(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.start(t)
	base := "/a/" + token

	// Runner renders with empty answers.
	w := app.do(httptest.NewRequest(http.MethodGet, base, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="answers[s1_q1a_angry_billing]"`)

	// Done page is not reachable yet.
	w = app.do(httptest.NewRequest(http.MethodGet, base+"/done", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, base, w.Header().Get("Location"))

	// Autosave.
	w = app.postJSON(base+"/autosave", map[string]interface{}{
		"answers":    map[string]string{"s1_q1a_angry_billing": "Dear customer...", "bogus": "x"},
		"session_id": "sess-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var saved struct {
		MultiTabWarning bool `json:"multi_tab_warning"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &saved))
	assert.False(t, saved.MultiTabWarning)

	// Second tab within the window is warned.
	w = app.postJSON(base+"/autosave", map[string]interface{}{"answers": map[string]string{}, "session_id": "sess-2"})
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &saved))
	assert.True(t, saved.MultiTabWarning)

	// Resume shows the saved answer.
	w = app.do(httptest.NewRequest(http.MethodGet, base, nil))
	assert.Contains(t, w.Body.String(), "Dear customer...")

	// Submit with blanks reports every missing question.
	w = app.postJSON(base+"/submit", map[string]interface{}{
		"answers": map[string]string{"s1_q1a_angry_billing": "Dear customer..."},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Len(t, env.Error.Fields, app.cat.RequiredCount()-1)

	// Form submit with everything filled.
	form := url.Values{"session_id": {"sess-1"}}
	for k, v := range app.allAnswers() {
		form.Set("answers["+k+"]", v)
	}
	w = app.postForm(base, form)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, base+"/done", w.Header().Get("Location"))

	w = app.do(httptest.NewRequest(http.MethodGet, base+"/done", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "You're done!")

	// Autosave after submit is frozen and changes nothing.
	w = app.postJSON(base+"/autosave", map[string]interface{}{
		"answers": map[string]string{"s1_q1a_angry_billing": "changed"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var frozen struct {
		Frozen bool `json:"frozen"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &frozen))
	assert.True(t, frozen.Frozen)

	// Resubmitting is a no-op redirect.
	w = app.postForm(base, url.Values{})
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestSubmitFormValidationRerendersRunner(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.start(t)

	w := app.postForm("/a/"+token, url.Values{"answers[s1_q1a_angry_billing]": {"kept text"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "kept text")
	assert.Contains(t, body, service.RequiredMessage)
}

func TestUnknownToken(t *testing.T) {
	app := newTestApp(t, nil)
	missing := "/a/" + strings.Repeat("0", 64)

	assert.Equal(t, http.StatusNotFound, app.do(httptest.NewRequest(http.MethodGet, missing, nil)).Code)
	assert.Equal(t, http.StatusNotFound, app.do(httptest.NewRequest(http.MethodGet, missing+"/done", nil)).Code)
	assert.Equal(t, http.StatusNotFound, app.postJSON(missing+"/autosave", map[string]interface{}{}).Code)
	assert.Equal(t, http.StatusNotFound, app.postJSON(missing+"/submit", map[string]interface{}{}).Code)
	assert.Zero(t, app.store.Count())
}

func TestAdminAuth(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(httptest.NewRequest(http.MethodGet, "/admin/attempts", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Basic realm="Admin Area"`, w.Header().Get("WWW-Authenticate"))

	w = app.admin(http.MethodGet, "/admin")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/attempts", w.Header().Get("Location"))

	unconfigured := newTestApp(t, func(c *config.Config) { c.AdminPassword = "" })
	w = unconfigured.admin(http.MethodGet, "/admin/attempts")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// Candidate routes keep working without admin credentials.
	unconfigured.start(t)
}

func TestAdminListAndDetail(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.start(t)
	app.postJSON("/a/"+token+"/autosave", map[string]interface{}{
		"answers": map[string]string{"s1_q1a_angry_billing": "hello"},
	})

	w := app.admin(http.MethodGet, "/admin/attempts?sort=drop_table&dir=sideways")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Ada Lovelace")

	req := httptest.NewRequest(http.MethodGet, "/admin/attempts?status=in_progress", nil)
	req.SetBasicAuth("admin", "secret")
	req.Header.Set("Accept", "application/json")
	w = app.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Attempts []struct {
			ID int64 `json:"id"`
		} `json:"attempts"`
		Stats struct {
			Total int64 `json:"total"`
		} `json:"stats"`
		Query struct {
			Sort string `json:"sort"`
			Dir  string `json:"dir"`
		} `json:"query"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
	require.Len(t, list.Attempts, 1)
	assert.Equal(t, int64(1), list.Stats.Total)
	assert.Equal(t, "started_at", list.Query.Sort)
	assert.Equal(t, "desc", list.Query.Dir)

	id := list.Attempts[0].ID
	path := "/admin/attempts/" + jsonNumber(id)

	w = app.admin(http.MethodGet, path)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hello")
	assert.NotContains(t, w.Body.String(), token)

	assert.Equal(t, http.StatusNotFound, app.admin(http.MethodGet, "/admin/attempts/999").Code)
	assert.Equal(t, http.StatusNotFound, app.admin(http.MethodGet, "/admin/attempts/abc").Code)
}

func TestAdminNotesAndReview(t *testing.T) {
	app := newTestApp(t, nil)
	app.start(t)
	path := "/admin/attempts/1"

	post := func(suffix string, form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path+suffix, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("admin", "secret")
		return app.do(req)
	}

	w := post("/notes", url.Values{"notes": {"Clear and kind."}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, path, w.Header().Get("Location"))
	stored := app.store.Stored(1)
	assert.Equal(t, "Clear and kind.", stored.Notes())

	w = post("/review", url.Values{"reviewed": {"true"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.NotNil(t, app.store.Stored(1).ReviewedAt)

	w = post("/review", url.Values{"reviewed": {"false"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Nil(t, app.store.Stored(1).ReviewedAt)

	w = post("/notes", url.Values{"notes": {strings.Repeat("x", 20001)}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	stored = app.store.Stored(1)
	assert.Equal(t, "Clear and kind.", stored.Notes())
}

func TestExportCSV(t *testing.T) {
	app := newTestApp(t, nil)

	submitted := app.start(t)
	answers := app.allAnswers()
	answers["s1_q1a_angry_billing"] = "Hi, \"quoted\", with\nnewline"
	w := app.postJSON("/a/"+submitted+"/submit", map[string]interface{}{"answers": answers})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	app.start(t) // in progress, not exported

	w = app.admin(http.MethodGet, "/admin/export/submissions.csv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Regexp(t, `^attachment; filename="assessment-submissions-\d{4}-\d{2}-\d{2}-\d{6}\.csv"$`, w.Header().Get("Content-Disposition"))
	assert.Empty(t, w.Header().Get("Content-Encoding"))

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "answer__s1_q1a_angry_billing", records[0][8])
	assert.Equal(t, "answer__s8_q8b_ai_prompt", records[0][len(records[0])-1])
	assert.Equal(t, "submitted", records[1][3])
	assert.Equal(t, answers["s1_q1a_angry_billing"], records[1][8])
}

func TestExportXLSX(t *testing.T) {
	app := newTestApp(t, nil)
	w := app.admin(http.MethodGet, "/admin/export/submissions.xlsx")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	// XLSX files are zip archives.
	assert.True(t, strings.HasPrefix(w.Body.String(), "PK"))
}

func TestStartRateLimit(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) { c.StartRatePerMinute = 2 })

	assert.Equal(t, http.StatusOK, app.do(httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusOK, app.do(httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, app.do(httptest.NewRequest(http.MethodGet, "/", nil)).Code)

	// Other groups have their own budget.
	assert.Equal(t, http.StatusOK, app.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestForwardedForIgnoredWithoutTrustedProxies(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) { c.StartRatePerMinute = 1 })

	get := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", forwarded)
		return app.do(req).Code
	}
	assert.Equal(t, http.StatusOK, get("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, get("203.0.113.2"))
}

func TestForwardedForHonouredFromTrustedProxy(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.StartRatePerMinute = 1
		c.TrustedProxies = []string{"192.0.2.0/24"}
	})

	get := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", forwarded)
		return app.do(req).Code
	}
	assert.Equal(t, http.StatusOK, get("203.0.113.1"))
	assert.Equal(t, http.StatusOK, get("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, get("203.0.113.2"))
}

func TestAdminFailedLoginsAreRateLimited(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) { c.AdminRatePerMinute = 2 })

	guess := func() int {
		req := httptest.NewRequest(http.MethodGet, "/admin/attempts", nil)
		req.SetBasicAuth("admin", "wrong")
		return app.do(req).Code
	}
	assert.Equal(t, http.StatusUnauthorized, guess())
	assert.Equal(t, http.StatusUnauthorized, guess())
	assert.Equal(t, http.StatusTooManyRequests, guess())
}

func TestAdminListHugePage(t *testing.T) {
	app := newTestApp(t, nil)
	app.start(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/attempts?page=9223372036854775807", nil)
	req.SetBasicAuth("admin", "secret")
	req.Header.Set("Accept", "application/json")
	w := app.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var list struct {
		Attempts []json.RawMessage `json:"attempts"`
		Stats    struct {
			Total int64 `json:"total"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
	assert.Empty(t, list.Attempts)
	assert.Equal(t, int64(1), list.Stats.Total)

	w = app.admin(http.MethodGet, "/admin/attempts?page=9223372036854775807")
	assert.Equal(t, http.StatusOK, w.Code)
}
