// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package web

import (
	"encoding/json"
	"net/http"
)

// Result is what a handler decided to send. Handlers return one instead of
// writing to the response themselves.
type Result interface {
	Write(w http.ResponseWriter, r *http.Request)
}

// Redirect sends the client elsewhere with 303 See Other.
type Redirect struct {
	To string
}

// Write implements Result.
func (res Redirect) Write(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, res.To, http.StatusSeeOther)
}

// JSON sends Body encoded as JSON. A zero Code means 200.
type JSON struct {
	Code int
	Body any
}

// Write implements Result.
func (res JSON) Write(w http.ResponseWriter, _ *http.Request) {
	code := res.Code
	if code == 0 {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(res.Body)
}

// Status sends a bare status code with its standard text.
type Status struct {
	Code int
}

// Write implements Result.
func (res Status) Write(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(res.Code), res.Code)
}
