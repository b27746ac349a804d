package whisper

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names
const (
	PageHome     = "home"
	PageLogin    = "login"
	PageRegister = "register"
	PageSecrets  = "secrets"
	PageSubmit   = "submit"
)

// Variant names shown to templates
const (
	VariantServer = "server"
	VariantVault  = "vault"
)

// PageData is what every page template receives
type PageData struct {
	Title         string
	User          *User
	Secrets       []string
	Success       []string
	Errors        []string
	Variant       string
	GoogleEnabled bool
}

type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	out := &Renderer{pages: map[string]*template.Template{}}
	for _, page := range []string{PageHome, PageLogin, PageRegister, PageSecrets, PageSubmit} {
		tmpl, err := template.New("layout.html").ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse page %s: %w", page, err)
		}
		out.pages[page] = tmpl
	}
	return out, nil
}

// Render executes the page into a buffer first so a template error never sends a
// half-written body.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data *PageData) {
	tmpl, ok := r.pages[page]
	if !ok {
		slog.Error("unknown page", "page", page)
		http.Error(w, "Page not found", http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = &PageData{}
	}
	if data.Title == "" {
		data.Title = "Secrets"
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		slog.Error("error rendering page", "page", page, "err", err)
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
