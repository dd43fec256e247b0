package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/aristath/stocktracker/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

const pageTitle = "Stock Portfolio Tracker"

var views = map[string]*template.Template{
	"index":    parseView("index"),
	"addstock": parseView("addstock"),
	"delete":   parseView("delete"),
}

func parseView(name string) *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
}

type viewData struct {
	Title    string
	Username string
	Stocks   []domain.Stock
}

// render executes a view into a buffer first so a template error never produces a partial page
func (h *Handler) render(w http.ResponseWriter, name string, data viewData) {
	data.Title = pageTitle

	var buf bytes.Buffer
	if err := views[name].ExecuteTemplate(&buf, name+".html", data); err != nil {
		h.log.Error().Err(err).Str("view", name).Msg("Failed to render view")
		h.writeText(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
