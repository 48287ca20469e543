// Package server exposes the coverage view service over HTTP: view metadata
// on one route, composite reads on another.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openrasters/coverageview/internal/catalog"
	"github.com/openrasters/coverageview/internal/core/config"
	"github.com/openrasters/coverageview/internal/raster"
	"github.com/openrasters/coverageview/internal/source"
	"github.com/openrasters/coverageview/internal/view"
)

type Deps struct {
	Catalog catalog.Catalog
	Opener  source.Opener
	Metrics http.Handler
}

type handler struct {
	log  *slog.Logger
	deps Deps
}

// NewRouter assembles the service routes.
func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) http.Handler {
	h := &handler{log: log, deps: deps}

	r := chi.NewRouter()
	r.Use(Recover())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Metrics != nil {
		r.Handle(cfg.Metrics.Path, deps.Metrics)
	}
	r.Get("/views/{name}", Observe(log, "/views/{name}", h.describe))
	r.Get("/views/{name}/read", Observe(log, "/views/{name}/read", h.read))

	return r
}

// Run serves the router until ctx is canceled.
func Run(ctx context.Context, cfg config.Config, log *slog.Logger, deps Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(log, cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (h *handler) reader(ctx context.Context, name string) (*view.Reader, error) {
	def, err := h.deps.Catalog.View(ctx, name)
	if err != nil {
		return nil, err
	}
	dims, err := h.deps.Catalog.Dimensions(ctx, name)
	if err != nil {
		return nil, err
	}
	return view.NewReader(def, dims, h.deps.Opener, view.Options{Logger: h.log})
}

type bandSummary struct {
	Index      int    `json:"index"`
	Definition string `json:"definition"`
	Source     string `json:"source"`
	SourceBand string `json:"sourceBand"`
}

type describeResponse struct {
	Name             string                   `json:"name"`
	Version          string                   `json:"version"`
	Bands            []bandSummary            `json:"bands"`
	Envelope         raster.Envelope          `json:"envelope"`
	GridRange        raster.GridRange         `json:"gridRange"`
	CRS              string                   `json:"crs"`
	Layout           raster.ImageLayout       `json:"layout"`
	DataType         string                   `json:"dataType"`
	NumOverviews     int                      `json:"numOverviews"`
	ResolutionLevels [][]float64              `json:"resolutionLevels,omitempty"`
	MetadataNames    []string                 `json:"metadataNames,omitempty"`
	Structured       bool                     `json:"structured"`
	Format           source.FormatDescriptor  `json:"format"`
	DynamicParams    []source.ParamDescriptor `json:"dynamicParams,omitempty"`
}

func (h *handler) describe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	rd, err := h.reader(ctx, name)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := describeResponse{
		Name:    rd.Name(),
		Version: fmt.Sprintf("%016x", rd.Definition().Digest()),
	}
	for _, b := range rd.Definition().Bands {
		resp.Bands = append(resp.Bands, bandSummary{
			Index:      b.Index,
			Definition: b.Definition,
			Source:     b.Inputs[0].SourceName,
			SourceBand: b.Inputs[0].Band,
		})
	}

	steps := []func() error{
		func() (err error) { resp.Envelope, err = rd.Envelope(ctx); return },
		func() (err error) { resp.GridRange, err = rd.GridRange(ctx); return },
		func() (err error) {
			crs, err := rd.CRS(ctx)
			resp.CRS = crs.Code
			return err
		},
		func() (err error) { resp.Layout, err = rd.ImageLayout(ctx); return },
		func() (err error) { resp.NumOverviews, err = rd.NumOverviews(ctx); return },
		func() (err error) { resp.ResolutionLevels, err = rd.ResolutionLevels(ctx); return },
		func() (err error) { resp.MetadataNames, err = rd.MetadataNames(ctx); return },
		func() (err error) { resp.Structured, err = rd.Structured(ctx); return },
		func() (err error) { resp.Format, err = rd.Format(ctx); return },
		func() (err error) { resp.DynamicParams, err = rd.DynamicParameters(ctx); return },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	resp.DataType = resp.Layout.DataType.String()

	writeJSON(w, http.StatusOK, resp)
}

type readBand struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	NullValues  []float64 `json:"nullValues,omitempty"`
	Pixels      []float64 `json:"pixels,omitempty"`
}

type readResponse struct {
	View     string           `json:"view"`
	Envelope raster.Envelope  `json:"envelope"`
	Grid     raster.GridRange `json:"gridRange"`
	DataType string           `json:"dataType"`
	Bands    []readBand       `json:"bands"`
}

func (h *handler) read(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	params, err := parseReadParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rd, err := h.reader(ctx, name)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out, err := rd.ReadNamed(ctx, name, params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if out == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	withPixels := r.URL.Query().Get("pixels") == "true"
	resp := readResponse{
		View:     rd.Name(),
		Envelope: out.Envelope,
		Grid:     out.Grid,
		DataType: out.DataType.String(),
	}
	for _, b := range out.Bands {
		rb := readBand{
			Name:        b.Dim.Name,
			Description: b.Dim.Description,
			Unit:        b.Dim.Unit,
			NullValues:  b.Dim.NullValues,
		}
		if withPixels {
			rb.Pixels = b.Pixels
		}
		resp.Bands = append(resp.Bands, rb)
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseReadParams maps query parameters onto the composite-read contract.
// A missing bands parameter selects all bands; an explicitly empty one
// selects none and yields 204.
func parseReadParams(r *http.Request) (source.ReadParams, error) {
	var p source.ReadParams
	q := r.URL.Query()

	if q.Has("bands") {
		raw := strings.TrimSpace(q.Get("bands"))
		p.Bands = []int{}
		if raw != "" {
			for _, part := range strings.Split(raw, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(part))
				if err != nil {
					return source.ReadParams{}, fmt.Errorf("invalid bands value %q", part)
				}
				p.Bands = append(p.Bands, n)
			}
		}
	}

	if raw := strings.TrimSpace(q.Get("window")); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) != 4 {
			return source.ReadParams{}, fmt.Errorf("window wants minX,minY,width,height")
		}
		vals := make([]int, 4)
		for i, part := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return source.ReadParams{}, fmt.Errorf("invalid window value %q", part)
			}
			vals[i] = n
		}
		p.Window = &raster.GridRange{MinX: vals[0], MinY: vals[1], Width: vals[2], Height: vals[3]}
	}

	return p, nil
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidReq   *view.InvalidRequestError
		nameMismatch *view.NameMismatchError
		incompatible *view.IncompatibleSourceError
		readErr      *view.SourceReadError
	)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &invalidReq), errors.As(err, &nameMismatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &incompatible):
		h.log.ErrorContext(r.Context(), "incompatible view sources", "err", err)
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &readErr):
		h.log.ErrorContext(r.Context(), "source read failed", "err", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.log.ErrorContext(r.Context(), "request failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
