package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/JonMunkholm/csvcombine/internal/config"
	"github.com/JonMunkholm/csvcombine/internal/core"
	"github.com/JonMunkholm/csvcombine/internal/history"
	"github.com/JonMunkholm/csvcombine/internal/logging"
)

// multipartMemory is how much of an upload is held in memory before parts
// spill to temporary files.
const multipartMemory = 8 << 20

const maxRunsLimit = 500

// uploadSource reads an uploaded part. FileHeader.Open may be called
// repeatedly, so each pass gets a fresh reader.
type uploadSource struct {
	fh *multipart.FileHeader
}

func (u uploadSource) Name() string { return u.fh.Filename }

func (u uploadSource) Open() (io.ReadCloser, error) { return u.fh.Open() }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"combines": s.combines.status(),
	})
}

// handleCombine combines the uploaded "files" parts in upload order.
//
// Optional form fields override the server defaults: keys (comma
// separated), delimiter, empty, mode (keep, remove or merge). The combined
// table is buffered so the run summary can go in the headers.
func (s *Server) handleCombine(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, fmt.Errorf("parse upload: request body too large (limit %d bytes)", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("parse upload: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts, err := s.requestOptions(r.MultipartForm)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	run := history.NewRun(history.OriginHTTP, opts, "")
	ctx := logging.WithRunID(r.Context(), run.ID)
	w.Header().Set("X-Run-ID", run.ID)

	var out bytes.Buffer
	res, err := core.Combine(ctx, opts, &out)
	run.Complete(res, err)
	history.Save(ctx, s.history, run, s.historyTimeout)

	if err != nil {
		respondError(w, r.WithContext(ctx), err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="combined.csv"`)
	w.Header().Set("X-Rows-Written", strconv.Itoa(res.RowsWritten))
	w.WriteHeader(http.StatusOK)
	if _, err := out.WriteTo(w); err != nil {
		logging.FromContext(ctx).Warn("write combined response", "error", err)
	}
}

// requestOptions merges form overrides onto the configured defaults.
func (s *Server) requestOptions(form *multipart.Form) (core.Options, error) {
	files := form.File["files"]
	if len(files) == 0 {
		return core.Options{}, core.ErrNoInputs
	}
	sources := make([]core.Source, len(files))
	for i, fh := range files {
		sources[i] = uploadSource{fh: fh}
	}

	cc := s.defaults
	if v, ok := formValue(form, "keys"); ok {
		cc.Keys = config.ParseKeys(v)
	}
	if v, ok := formValue(form, "delimiter"); ok {
		if utf8.RuneCountInString(v) != 1 {
			return core.Options{}, fmt.Errorf("%w: %q must be one character", core.ErrInvalidDelimiter, v)
		}
		cc.Delimiter = v
	}
	if v, ok := formValue(form, "empty"); ok {
		cc.EmptyValue = v
	}
	if v, ok := formValue(form, "mode"); ok {
		policy, err := core.ParsePolicy(v)
		if err != nil {
			return core.Options{}, err
		}
		cc.RemoveDuplicates = policy == core.PolicyRemoveDuplicates
		cc.MergeDuplicates = policy == core.PolicyMergeDuplicates
	}

	return cc.Options(sources)
}

// formValue reports whether the field was sent at all, so an explicit empty
// value can override a default.
func formValue(form *multipart.Form, key string) (string, bool) {
	vs, ok := form.Value[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// handleRuns lists recent runs, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := history.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxRunsLimit {
			respondError(w, r, fmt.Errorf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, r, fmt.Errorf("list runs: %w", err), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
