package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/torrouter/torrouter/internal/control"
)

// maxJSONBody caps JSON control requests.
const maxJSONBody = 64 << 10

// multipartOverhead is allowed on top of the profile size for form fields
// and part headers.
const multipartOverhead = 64 << 10

type requestError struct {
	status  int
	message string
}

func badRequest(msg string) *requestError {
	return &requestError{status: http.StatusBadRequest, message: msg}
}

var tooLarge = &requestError{status: http.StatusRequestEntityTooLarge, message: "Request body too large."}

// decodeControl reads a JSON or multipart control request. The returned
// cleanup releases any uploaded file.
func (s *Server) decodeControl(w http.ResponseWriter, r *http.Request) (control.Request, func(), *requestError) {
	noop := func() {}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		return s.decodeMultipart(w, r)

	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := r.ParseForm(); err != nil {
			if isTooLarge(err) {
				return control.Request{}, noop, tooLarge
			}
			return control.Request{}, noop, badRequest("Invalid form body.")
		}
		return formRequest(r), noop, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var req control.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			// An empty body is an empty request, answered as unknown action.
		case isTooLarge(err):
			return control.Request{}, noop, tooLarge
		default:
			return control.Request{}, noop, badRequest("Invalid JSON body.")
		}
	}
	if req.Action == "" {
		req.Action = r.URL.Query().Get("action")
	}
	return req, noop, nil
}

func (s *Server) decodeMultipart(w http.ResponseWriter, r *http.Request) (control.Request, func(), *requestError) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		if isTooLarge(err) {
			return control.Request{}, noop, tooLarge
		}
		return control.Request{}, noop, badRequest("Invalid multipart body.")
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }

	req := formRequest(r)
	file, hdr, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		cleanup()
		return control.Request{}, noop, badRequest("Invalid multipart body.")
	default:
		req.Upload = &control.Upload{Filename: hdr.Filename, Body: file}
		cleanup = closeAndRemove(file, r.MultipartForm)
	}
	return req, cleanup, nil
}

func closeAndRemove(f multipart.File, form *multipart.Form) func() {
	return func() {
		_ = f.Close()
		_ = form.RemoveAll()
	}
}

// formRequest reads fields from the form body, falling back to the query
// string.
func formRequest(r *http.Request) control.Request {
	return control.Request{
		Action:    strings.TrimSpace(r.FormValue("action")),
		Profile:   r.FormValue("profile"),
		Interface: r.FormValue("interface"),
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge)
}
