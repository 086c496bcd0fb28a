package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// maxJSONPeek bounds how much of a JSON body is read to find the handle.
const maxJSONPeek = 1 << 20

// resolveHandle reads the handle from the query string, then from the body.
// A JSON body is restored after peeking so downstream handlers can read it.
func resolveHandle(r *http.Request, param string) (string, error) {
	if h := r.URL.Query().Get(param); h != "" {
		return h, nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		return r.PostFormValue(param), nil
	case "application/json":
		return peekJSON(r, param)
	}
	return "", nil
}

func peekJSON(r *http.Request, param string) (string, error) {
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxJSONPeek))
	if err != nil {
		return "", fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(buf), r.Body))

	var fields map[string]any
	if err := json.Unmarshal(buf, &fields); err != nil {
		// Not an object; the body simply carries no handle.
		return "", nil
	}
	h, _ := fields[param].(string)
	return h, nil
}
