package runtime

import (
	"fmt"
	"net/http"
	"net/url"
)

// Planner builds outbound locations.
type Planner struct {
	// Param is the query parameter carrying the handle.
	Param string
}

// Check reports whether target can be used as a redirect location. It lets
// callers reject a bad target before touching the store.
func (p Planner) Check(target string) error {
	if _, err := url.Parse(target); err != nil {
		return fmt.Errorf("invalid redirect target %q: %w", target, err)
	}
	return nil
}

// Location returns target with the handle appended as ?<param>=<handle>.
// An empty handle leaves target untouched. An existing value for the
// parameter is replaced; other query parameters are preserved.
func (p Planner) Location(target, handle string) (string, error) {
	if handle == "" {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid redirect target %q: %w", target, err)
	}

	q := u.Query()
	if q.Has(p.Param) {
		q.Set(p.Param, handle)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	pair := url.QueryEscape(p.Param) + "=" + url.QueryEscape(handle)
	if u.RawQuery == "" {
		u.RawQuery = pair
	} else {
		u.RawQuery += "&" + pair
	}
	return u.String(), nil
}

// Redirect writes a 302 to target with the handle appended.
func (p Planner) Redirect(w http.ResponseWriter, r *http.Request, target, handle string) (string, error) {
	loc, err := p.Location(target, handle)
	if err != nil {
		return "", err
	}
	http.Redirect(w, r, loc, http.StatusFound)
	return loc, nil
}
