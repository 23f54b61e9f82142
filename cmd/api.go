package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/docverify/internal/model"
	"github.com/sells-group/docverify/internal/pipeline"
	"github.com/sells-group/docverify/internal/store"
)

const maxBodyBytes = 4 << 20

// api serves the HTTP routes over one environment.
type api struct {
	env *appEnv
}

// buildMux wires the routes. A nil env answers 503 on everything but /health.
func buildMux(env *appEnv, origins []string) http.Handler {
	a := &api{env: env}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Get("/schemas", a.schemas)

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", a.createDocument)
		r.Get("/{id}", a.getDocument)
	})
	r.Route("/shipments/{id}", func(r chi.Router) {
		r.Get("/documents", a.listShipmentDocuments)
		r.Get("/verifications", a.listShipmentVerifications)
		r.Post("/verify", a.verifyShipment)
	})
	r.Route("/verifications", func(r chi.Router) {
		r.Post("/", a.createVerification)
		r.Get("/{id}", a.getVerification)
	})
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if a.env != nil && a.env.Store != nil {
		if err := a.env.Store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) schemas(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	out := make([]*model.DocumentSchema, 0)
	for _, dt := range a.env.Registry.Types() {
		out = append(out, a.env.Registry.MustLookup(dt))
	}
	writeJSON(w, http.StatusOK, out)
}

type createDocumentRequest struct {
	Text       string `json:"text"`
	Hint       string `json:"hint"`
	ShipmentID string `json:"shipment_id"`
	Source     string `json:"source"`
}

func (a *api) createDocument(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	var req createDocumentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	out, err := a.env.Processor.Process(r.Context(), pipeline.Input{
		Text:       req.Text,
		Hint:       req.Hint,
		ShipmentID: req.ShipmentID,
		Source:     req.Source,
	})
	if err != nil {
		zap.L().Error("api: process document", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "document could not be processed")
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *api) getDocument(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	doc, err := a.env.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *api) listShipmentDocuments(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	limit, offset := paging(r)
	docs, err := a.env.Store.ListDocuments(r.Context(), store.DocumentFilter{
		ShipmentID: chi.URLParam(r, "id"),
		DocType:    model.DocType(r.URL.Query().Get("type")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeStoreError(w, err, "documents")
		return
	}
	if docs == nil {
		docs = []model.StoredDocument{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (a *api) listShipmentVerifications(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	limit, offset := paging(r)
	results, err := a.env.Store.ListVerifications(r.Context(), store.VerificationFilter{
		ShipmentID: chi.URLParam(r, "id"),
		Status:     model.Status(r.URL.Query().Get("status")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeStoreError(w, err, "verifications")
		return
	}
	if results == nil {
		results = []model.VerificationResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *api) verifyShipment(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	results, err := a.env.Processor.VerifyShipment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "shipment")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type createVerificationRequest struct {
	ReferenceID string `json:"reference_id"`
	DependentID string `json:"dependent_id"`
}

func (a *api) createVerification(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	var req createVerificationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ReferenceID == "" || req.DependentID == "" {
		writeError(w, http.StatusBadRequest, "reference_id and dependent_id are required")
		return
	}
	res, err := a.env.Processor.VerifyPair(r.Context(), req.ReferenceID, req.DependentID)
	if err != nil {
		writeStoreError(w, err, "document")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *api) getVerification(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	res, err := a.env.Store.GetVerification(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "verification")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) ready(w http.ResponseWriter) bool {
	if a.env == nil || a.env.Processor == nil || a.env.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "service not initialized")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func paging(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return max(limit, 0), max(offset, 0)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	zap.L().Error("api: store", zap.String("resource", what), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// requestLogger logs one line per request with the zap global logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}
