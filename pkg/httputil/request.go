package httputil

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/userdeck/pkg/apperr"
)

// PathVar returns a mux route variable, failing validation when absent
func PathVar(r *http.Request, name string) (string, error) {
	v, ok := mux.Vars(r)[name]
	if !ok || v == "" {
		return "", apperr.Validation("Missing path parameter: " + name)
	}
	return v, nil
}

// QueryInt parses an integer query parameter with a default
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("Invalid integer for query parameter: " + name)
	}
	return n, nil
}
