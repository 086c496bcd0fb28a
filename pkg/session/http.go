package session

import (
	"net/http"
	"time"
)

// DefaultCookieName is the cookie carrying the session ID.
const DefaultCookieName = "flowstate_sid"

// CookieConfig controls the session cookie written by Middleware.
type CookieConfig struct {
	Name     string
	Path     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.Name == "" {
		c.Name = DefaultCookieName
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
	return c
}

// Middleware binds a session to every request, resuming the one named by the
// cookie or starting a new one. The session is reachable via FromContext.
func (m *Manager) Middleware(cfg CookieConfig) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(cfg.Name); err == nil {
				id = c.Value
			}

			s, err := m.GetOrStart(id)
			if err != nil {
				m.logger.Error("session start failed", "err", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if s.ID() != id {
				cookie := &http.Cookie{
					Name:     cfg.Name,
					Value:    s.ID(),
					Path:     cfg.Path,
					HttpOnly: true,
					Secure:   cfg.Secure,
					SameSite: cfg.SameSite,
				}
				if cfg.MaxAge > 0 {
					cookie.MaxAge = int(cfg.MaxAge.Seconds())
				}
				http.SetCookie(w, cookie)
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), s)))
		})
	}
}
