package api

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"messageboard/logger"
	"messageboard/metrics"
	"messageboard/models"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type homePage struct {
	Messages  []models.Message
	MaxLength int
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.svc.List(r.Context(), s.pageLimit)
	if err != nil {
		logger.Error("load messages for home page", err)
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, "home.html", homePage{Messages: msgs, MaxLength: s.svc.MaxLength()}); err != nil {
		logger.Error("render home page", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	metrics.IncHomePageRenders()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
