package server

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"smartchef/internal/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

//go:embed assets/index.html
var fallbackIndex []byte

const configScriptID = "smartchef-config"

// RuntimeConfig is the configuration the browser bundle reads at startup.
type RuntimeConfig struct {
	AppID            string                `json:"appId"`
	AppName          string                `json:"appName"`
	AppVersion       string                `json:"appVersion"`
	DevMode          bool                  `json:"devMode"`
	DebugMode        bool                  `json:"debugMode"`
	GeminiConfigured bool                  `json:"geminiConfigured"`
	DocStore         string                `json:"docStore"`
	Firebase         config.FirebaseConfig `json:"firebase"`
}

func runtimeConfig(cfg *config.Config) RuntimeConfig {
	return RuntimeConfig{
		AppID:            cfg.AppID,
		AppName:          cfg.AppName,
		AppVersion:       cfg.AppVersion,
		DevMode:          cfg.DevMode,
		DebugMode:        cfg.DebugMode,
		GeminiConfigured: cfg.HasGeminiKey(),
		DocStore:         cfg.DocStoreBackend,
		Firebase:         cfg.Firebase,
	}
}

// spaHandler serves the static bundle, answering unknown paths with
// index.html so client-side routes resolve.
type spaHandler struct {
	root    http.FileSystem
	index   []byte
	modTime time.Time
	log     logrus.FieldLogger
}

func newSPAHandler(cfg *config.Config, log logrus.FieldLogger) *spaHandler {
	h := &spaHandler{
		root:    http.Dir(cfg.StaticDir),
		modTime: time.Now(),
		log:     log,
	}

	raw, err := os.ReadFile(filepath.Join(cfg.StaticDir, "index.html"))
	if err != nil {
		log.WithError(err).WithField("dir", cfg.StaticDir).Warn("index.html not found, serving placeholder page")
		raw = fallbackIndex
	}

	index, err := injectConfig(raw, runtimeConfig(cfg))
	if err != nil {
		log.WithError(err).Error("failed to inject runtime config, serving index.html as is")
		index = raw
	}
	h.index = index
	return h
}

// injectConfig puts cfg into <head> as a JSON script block, replacing an
// existing one.
func injectConfig(page []byte, cfg RuntimeConfig) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse index.html: %w", err)
	}

	// json.Marshal escapes <, > and &, so the payload cannot close the tag.
	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode runtime config: %w", err)
	}

	doc.Find("script#" + configScriptID).Remove()
	doc.Find("head").AppendHtml(fmt.Sprintf(`<script id="%s" type="application/json">%s</script>`, configScriptID, payload))

	out, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to render index.html: %w", err)
	}
	return []byte(out), nil
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	if name != "/" && name != "/index.html" {
		if h.serveFile(w, r, name) {
			return
		}
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "index.html", h.modTime, bytes.NewReader(h.index))
}

// serveFile serves a regular file from the bundle and reports whether it did.
func (h *spaHandler) serveFile(w http.ResponseWriter, r *http.Request, name string) bool {
	f, err := h.root.Open(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			h.log.WithError(err).WithField("path", name).Debug("failed to open static file")
		}
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	if strings.HasPrefix(name, "/assets/") {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}
