package notify

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"
)

// FlashCookie carries pending notifications across a redirect.
const FlashCookie = "courtside_flash"

type wireNotification struct {
	Message    string `json:"message"`
	Level      Level  `json:"level"`
	Size       Size   `json:"size"`
	DurationMS int64  `json:"duration"`
}

func toWire(items []Notification) []wireNotification {
	out := make([]wireNotification, 0, len(items))
	for _, n := range items {
		out = append(out, wireNotification{
			Message:    n.Message,
			Level:      n.Level,
			Size:       n.Size,
			DurationMS: n.DurationMS(),
		})
	}
	return out
}

func fromWire(items []wireNotification) []Notification {
	out := make([]Notification, 0, len(items))
	for _, w := range items {
		out = append(out, New(w.Message, w.Level, time.Duration(w.DurationMS)*time.Millisecond))
	}
	return out
}

// Middleware attaches a fresh Tray to every request and restores any
// notifications flashed by the previous response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tray := NewTray()
		if cookie, err := r.Cookie(FlashCookie); err == nil && cookie.Value != "" {
			for _, n := range decodeFlash(cookie.Value) {
				tray.Add(n)
			}
			http.SetCookie(w, &http.Cookie{
				Name:     FlashCookie,
				Value:    "",
				Path:     "/",
				MaxAge:   -1,
				HttpOnly: true,
			})
		}
		next.ServeHTTP(w, r.WithContext(WithTray(r.Context(), tray)))
	})
}

// Flash moves the tray's notifications into a cookie so they render on the
// page the client is redirected to.
func Flash(w http.ResponseWriter, t *Tray) {
	if t == nil {
		return
	}
	items := t.Drain()
	if len(items) == 0 {
		return
	}
	data, err := json.Marshal(toWire(items))
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func decodeFlash(value string) []Notification {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var items []wireNotification
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	return fromWire(items)
}

// WriteTrigger emits the tray's notifications as an HX-Trigger "toast" event
// for HTMX requests that swap a fragment instead of rendering a page.
func WriteTrigger(w http.ResponseWriter, t *Tray) {
	if t == nil {
		return
	}
	items := t.Drain()
	if len(items) == 0 {
		return
	}
	data, err := json.Marshal(map[string]any{"toast": toWire(items)})
	if err != nil {
		return
	}
	w.Header().Set("HX-Trigger", string(data))
}
