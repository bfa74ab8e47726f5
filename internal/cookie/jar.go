package cookie

import (
	"net/http"
	"time"
)

// Jar holds the session cookie attributes.
type Jar struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// Read returns the raw session cookie value, if present and non-empty.
func (j Jar) Read(r *http.Request) (string, bool) {
	c, err := r.Cookie(j.Name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Cookie builds the session cookie for value.
func (j Jar) Cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     j.Name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(j.MaxAge / time.Second),
	}
}

// Set writes the session cookie to the response.
func (j Jar) Set(w http.ResponseWriter, value string) {
	http.SetCookie(w, j.Cookie(value))
}

// Clear expires the session cookie in the browser.
func (j Jar) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     j.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
