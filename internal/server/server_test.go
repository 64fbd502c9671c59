package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"smartchef/internal/app"
	"smartchef/internal/config"
	"smartchef/internal/generator"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tacosJSON = `{"recipeName":"Tacos","ingredients":["tortilla","beef"],"instructions":["Cook","Serve"],"cookingTime":20}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"),
		[]byte(`<!doctype html><html><head><title>SmartChef</title></head><body><div id="root"></div></body></html>`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log('chef')"), 0o644))

	return &config.Config{
		StaticDir:       dir,
		AppID:           "smartchef-test",
		AppName:         "SmartChef",
		AppVersion:      "1.0.0",
		DocStoreBackend: config.DocStoreNone,
		DatabasePath:    filepath.Join(dir, "data", "smartchef.db"),
		SessionSecret:   "test-secret",
		Firebase:        config.DemoFirebaseConfig(),
	}
}

func setupServer(t *testing.T) (*Server, *app.App) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cfg := testConfig(t)

	a := app.NewApp(app.Deps{
		Config:    cfg,
		Generator: generator.New(nil, logger),
		Logger:    logger,
	})
	t.Cleanup(func() { a.Close() })
	return New(cfg, a, logger), a
}

// client keeps the session cookie between requests.
type client struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func (c *client) do(method, target, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	if set := rec.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestConfigEndpoints(t *testing.T) {
	s, _ := setupServer(t)
	c := &client{t: t, handler: s.Handler()}

	rec := c.do(http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg RuntimeConfig
	decode(t, rec, &cfg)
	assert.Equal(t, "smartchef-test", cfg.AppID)
	assert.Equal(t, "demo-project", cfg.Firebase.ProjectID)
	assert.False(t, cfg.GeminiConfigured)
	assert.NotContains(t, rec.Body.String(), "test-secret")

	rec = c.do(http.MethodGet, "/api/dietary-options", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var opts dietaryResponse
	decode(t, rec, &opts)
	assert.Len(t, opts.Options, 8)
	assert.Equal(t, "None", opts.Options[0])
	assert.Equal(t, 30, opts.DefaultCookingTime)
}

func TestSessionCookie(t *testing.T) {
	s, a := setupServer(t)
	c := &client{t: t, handler: s.Handler()}

	rec := c.do(http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, c.cookies, 1)
	assert.Equal(t, sessionCookie, c.cookies[0].Name)
	assert.True(t, c.cookies[0].HttpOnly)

	var first sessionResponse
	decode(t, rec, &first)
	assert.True(t, first.Synthetic)
	assert.Equal(t, "unavailable", first.State)
	assert.Equal(t, first.UserID[:8]+"...", first.DisplayID)

	rec = c.do(http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
	var second sessionResponse
	decode(t, rec, &second)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, 1, a.SessionCount())

	// A forged cookie starts a new session.
	forged := &client{t: t, handler: s.Handler(), cookies: []*http.Cookie{{Name: sessionCookie, Value: "not-a-token"}}}
	rec = forged.do(http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Result().Cookies())
	assert.Equal(t, 2, a.SessionCount())
}

func TestGenerate(t *testing.T) {
	s, _ := setupServer(t)
	c := &client{t: t, handler: s.Handler()}

	rec := c.do(http.MethodPost, "/api/recipes/generate", `{"ingredients":"   ","dietary":"None","cookingTime":30}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var apiErr errorResponse
	decode(t, rec, &apiErr)
	assert.Equal(t, generator.EmptyIngredientsMessage, apiErr.Error)

	rec = c.do(http.MethodPost, "/api/recipes/generate", `{"ingredients":"chicken, rice","dietary":"None","cookingTime":20}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Recipes []struct {
			Name        string   `json:"recipeName"`
			Ingredients []string `json:"ingredients"`
			CookingTime int      `json:"cookingTime"`
			Emoji       string   `json:"emoji"`
			Difficulty  struct {
				Level string `json:"level"`
			} `json:"difficulty"`
		} `json:"recipes"`
		Fallback bool   `json:"fallback"`
		Notice   string `json:"notice"`
	}
	decode(t, rec, &out)
	assert.True(t, out.Fallback)
	assert.Equal(t, generator.FallbackNotice, out.Notice)
	require.Len(t, out.Recipes, 2)
	assert.Equal(t, "Quick Stir-Fry", out.Recipes[0].Name)
	assert.Equal(t, []string{"chicken", "rice"}, out.Recipes[0].Ingredients)
	assert.Equal(t, 20, out.Recipes[0].CookingTime)
	assert.Equal(t, "🍗", out.Recipes[0].Emoji)
	assert.NotEmpty(t, out.Recipes[0].Difficulty.Level)

	rec = c.do(http.MethodPost, "/api/recipes/generate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMealPlanEndpoints(t *testing.T) {
	s, _ := setupServer(t)
	c := &client{t: t, handler: s.Handler()}

	rec := c.do(http.MethodGet, "/api/mealplan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"plan":{},"mode":"local-only"}`, rec.Body.String())

	rec = c.do(http.MethodPut, "/api/mealplan/Tuesday/Dinner", tacosJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"plan":{"TuesdayDinner":`+tacosJSON+`},"mode":"local-only"}`, rec.Body.String())

	rec = c.do(http.MethodGet, "/api/mealplan", "")
	assert.Contains(t, rec.Body.String(), "TuesdayDinner")

	rec = c.do(http.MethodPut, "/api/mealplan/Someday/Dinner", tacosJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodPut, "/api/mealplan/Monday/Lunch", `{"recipeName":"","ingredients":[],"instructions":[],"cookingTime":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Removing an empty slot is fine.
	rec = c.do(http.MethodDelete, "/api/mealplan/Monday/Lunch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "TuesdayDinner")

	rec = c.do(http.MethodDelete, "/api/mealplan/tuesday/dinner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"plan":{},"mode":"local-only"}`, rec.Body.String())

	rec = c.do(http.MethodDelete, "/api/mealplan/Tuesday/Brunch", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlanSocket(t *testing.T) {
	s, _ := setupServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	c := &client{t: t, handler: s.Handler()}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/session", "").Code)
	require.NotEmpty(t, c.cookies)

	header := http.Header{}
	header.Add("Cookie", c.cookies[0].Name+"="+c.cookies[0].Value)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/mealplan/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var msg map[string]json.RawMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.JSONEq(t, `"plan"`, string(msg["type"]))
	assert.JSONEq(t, `{}`, string(msg["plan"]))

	require.Equal(t, http.StatusOK, c.do(http.MethodPut, "/api/mealplan/Tuesday/Dinner", tacosJSON).Code)

	msg = nil
	require.NoError(t, conn.ReadJSON(&msg))
	assert.JSONEq(t, `"plan"`, string(msg["type"]))
	assert.Contains(t, string(msg["plan"]), "TuesdayDinner")
}

func TestSPA(t *testing.T) {
	s, _ := setupServer(t)
	c := &client{t: t, handler: s.Handler()}

	for _, target := range []string{"/", "/meal-plan", "/index.html"} {
		rec := c.do(http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		script := doc.Find("head script#" + configScriptID)
		require.Equal(t, 1, script.Length(), target)

		var cfg RuntimeConfig
		require.NoError(t, json.Unmarshal([]byte(script.Text()), &cfg))
		assert.Equal(t, "smartchef-test", cfg.AppID)
	}

	rec := c.do(http.MethodGet, "/assets/app.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log('chef')", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	rec = c.do(http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSPAPlaceholder(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := testConfig(t)
	cfg.StaticDir = filepath.Join(t.TempDir(), "missing")

	h := newSPAHandler(cfg, logger)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "web bundle was not found")
	assert.Contains(t, rec.Body.String(), configScriptID)
}

func TestInjectConfig(t *testing.T) {
	page := []byte(`<html><head><script id="smartchef-config" type="application/json">{"appId":"stale"}</script></head><body></body></html>`)
	out, err := injectConfig(page, RuntimeConfig{AppID: "</script><b>x"})
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(out))
	require.NoError(t, err)
	script := doc.Find("script#" + configScriptID)
	require.Equal(t, 1, script.Length())
	assert.NotContains(t, string(out), "stale")
	assert.Equal(t, 0, doc.Find("b").Length())

	var cfg RuntimeConfig
	require.NoError(t, json.Unmarshal([]byte(script.Text()), &cfg))
	assert.Equal(t, "</script><b>x", cfg.AppID)
}

func TestCookieSigner(t *testing.T) {
	logger, _ := test.NewNullLogger()
	signer := newCookieSigner("secret", logger)

	token, err := signer.sign("session-1")
	require.NoError(t, err)
	key, err := signer.verify(token)
	require.NoError(t, err)
	assert.Equal(t, "session-1", key)

	_, err = newCookieSigner("other", logger).verify(token)
	assert.Error(t, err)

	signer.now = func() time.Time { return time.Now().Add(cookieTTL + time.Hour) }
	_, err = signer.verify(token)
	assert.Error(t, err)

	ephemeral := newCookieSigner("", logger)
	assert.Len(t, ephemeral.secret, 32)
}

func TestOperationalEndpoints(t *testing.T) {
	s, _ := setupServer(t)
	c := &client{t: t, handler: s.Handler()}

	rec := c.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	decode(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.0.0", health.Version)

	rec = c.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "smartchef_active_sessions")
}

func TestShutdown(t *testing.T) {
	s, _ := setupServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
