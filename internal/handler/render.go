package handler

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/dukerupert/courtside/internal/auth"
	"github.com/dukerupert/courtside/internal/flags"
	"github.com/dukerupert/courtside/internal/model"
	"github.com/dukerupert/courtside/internal/notify"
)

var pages = []string{"auth.html", "reset_confirm.html", "sports.html", "control.html", "watch.html"}

// Renderer executes page templates inside the shared layout.
type Renderer struct {
	pages  map[string]*template.Template
	flags  *flags.Codec
	logger *slog.Logger
}

func NewRenderer(fsys fs.FS, codec *flags.Codec, logger *slog.Logger) (*Renderer, error) {
	base, err := template.ParseFS(fsys, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(pages)), flags: codec, logger: logger}
	for _, name := range pages {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout: %w", err)
		}
		if _, err := t.ParseFS(fsys, name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

type pageData struct {
	Title  string
	User   *model.User
	Flags  flags.Flags
	Toasts []notify.Notification
	Data   any
}

// page renders a full document. Pending notifications are drained into it.
func (rd *Renderer) page(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	t, ok := rd.pages[name]
	if !ok {
		rd.logger.Error("unknown page", "page", name)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	pd := pageData{
		Title: title,
		User:  auth.User(r.Context()),
		Flags: rd.flags.Read(r),
		Data:  data,
	}
	if tray := notify.TrayFrom(r.Context()); tray != nil {
		pd.Toasts = tray.Drain()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout", pd); err != nil {
		rd.logger.Error("template error", "page", name, "error", err)
	}
}

// partial renders a named fragment for an HTMX swap. Notifications travel in
// the HX-Trigger header.
func (rd *Renderer) partial(w http.ResponseWriter, r *http.Request, status int, page, name string, data any) {
	t, ok := rd.pages[page]
	if !ok {
		rd.logger.Error("unknown page", "page", page)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	notify.WriteTrigger(w, notify.TrayFrom(r.Context()))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, name, data); err != nil {
		rd.logger.Error("template error rendering partial", "partial", name, "error", err)
		fmt.Fprintf(w, `<div class="alert alert-error">Template error</div>`)
	}
}

// redirect sends the client to loc, carrying pending notifications in the
// flash cookie. HTMX requests get HX-Redirect instead of a 303.
func redirect(w http.ResponseWriter, r *http.Request, loc string) {
	notify.Flash(w, notify.TrayFrom(r.Context()))
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", loc)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, loc, http.StatusSeeOther)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
