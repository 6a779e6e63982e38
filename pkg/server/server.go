// Package server exposes the webhook and the record API over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/finance"
	"github.com/ArionMiles/kakeibo/pkg/ingest"
	"github.com/ArionMiles/kakeibo/pkg/logging"
	"github.com/ArionMiles/kakeibo/pkg/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server routes HTTP requests to the finance and ingestion services.
type Server struct {
	records *store.Table
	line    *store.Table
	finance *finance.Service
	ingest  *ingest.Service
	logger  *slog.Logger
}

// New creates a server. fin serves the record API, ing serves the webhook
// and line serves reads and corrections of ingested records.
func New(fin *finance.Service, ing *ingest.Service, line *store.Table, logger *slog.Logger) *Server {
	return &Server{
		records: fin.Table(),
		line:    line,
		finance: fin,
		ingest:  ing,
		logger:  logging.OrDefault(logger).With("component", "http"),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestID, requestLogger(s.logger), recovery(s.logger))

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/webhook", s.webhook).Methods(http.MethodPost)

	r.HandleFunc("/records", s.createRecord).Methods(http.MethodPost)
	r.HandleFunc("/records", s.listRecords).Methods(http.MethodGet)
	r.HandleFunc("/records/query", s.queryRecords).Methods(http.MethodGet)
	r.HandleFunc("/records/{key}", s.getRecord).Methods(http.MethodGet)
	r.HandleFunc("/records/{key}", s.updateRecord).Methods(http.MethodPatch)
	r.HandleFunc("/records/{key}", s.deleteRecord).Methods(http.MethodDelete)

	r.HandleFunc("/line/{lmn}", s.getLineRecord).Methods(http.MethodGet)
	r.HandleFunc("/line/{lmn}", s.updateLineRecord).Methods(http.MethodPatch)

	r.HandleFunc("/finance/income", s.incomeRecords).Methods(http.MethodGet)
	r.HandleFunc("/finance/expense", s.expenseRecords).Methods(http.MethodGet)
	r.HandleFunc("/finance/category/{category}", s.categoryRecords).Methods(http.MethodGet)

	r.HandleFunc("/summary/total", s.total).Methods(http.MethodGet)
	r.HandleFunc("/summary/monthly/{year:[0-9]+}/{month:[0-9]+}", s.monthly).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, api.Result{Error: "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, api.Result{Error: "method not allowed"})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.Result{Success: true, Message: "ok"})
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ingest.ResponseBody{Error: "Invalid LINE webhook data"})
		return
	}
	resp := s.ingest.HandleWebhook(r.Context(), body)
	writeJSON(w, resp.StatusCode, resp.Body)
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	var rec api.Record
	if err := decodeBody(w, r, &rec); err != nil {
		s.fail(w, err)
		return
	}
	created, err := s.records.Create(r.Context(), rec)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.Result{Success: true, Data: created, Message: "Record created"})
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	s.read(w, r, s.records, mux.Vars(r)["key"])
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, s.records, mux.Vars(r)["key"])
}

func (s *Server) getLineRecord(w http.ResponseWriter, r *http.Request) {
	s.read(w, r, s.line, mux.Vars(r)["lmn"])
}

func (s *Server) updateLineRecord(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, s.line, mux.Vars(r)["lmn"])
}

func (s *Server) read(w http.ResponseWriter, r *http.Request, table *store.Table, key string) {
	rec, err := table.Read(r.Context(), key)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.OK(rec))
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, table *store.Table, key string) {
	var fields api.Fields
	if err := decodeBody(w, r, &fields); err != nil {
		s.fail(w, err)
		return
	}
	rec, err := table.Update(r.Context(), key, fields)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Result{Success: true, Data: rec, Message: "Record updated"})
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	hard, err := boolParam(r, "hard")
	if err != nil {
		s.fail(w, err)
		return
	}
	rec, err := s.records.Delete(r.Context(), mux.Vars(r)["key"], !hard)
	if err != nil {
		s.fail(w, err)
		return
	}
	msg := "Record soft-deleted"
	if hard {
		msg = "Record deleted"
	}
	writeJSON(w, http.StatusOK, api.Result{Success: true, Data: rec, Message: msg})
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	includeDeleted, err := boolParam(r, "include_deleted")
	if err != nil {
		s.fail(w, err)
		return
	}
	records, err := s.records.List(r.Context(), includeDeleted)
	s.list(w, records, err)
}

func (s *Server) queryRecords(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	value := r.URL.Query().Get("value")
	if field == "" {
		s.fail(w, api.E(api.KindValidation, "query", errors.New("field is required")))
		return
	}
	match, err := queryValue(field, value)
	if err != nil {
		s.fail(w, err)
		return
	}
	records, err := s.records.QueryByField(r.Context(), field, match)
	s.list(w, records, err)
}

// queryValue types a query string value for the attribute it is matched
// against. Amounts are numbers; everything else is compared as a string.
func queryValue(field, raw string) (any, error) {
	if field != api.AttrAmount {
		return raw, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, api.E(api.KindValidation, "query", fmt.Errorf("invalid amount %q", raw))
	}
	return f, nil
}

func (s *Server) incomeRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.finance.IncomeRecords(r.Context())
	s.list(w, records, err)
}

func (s *Server) expenseRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.finance.ExpenseRecords(r.Context())
	s.list(w, records, err)
}

func (s *Server) categoryRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.finance.RecordsByCategory(r.Context(), mux.Vars(r)["category"])
	s.list(w, records, err)
}

func (s *Server) total(w http.ResponseWriter, r *http.Request) {
	total, err := s.finance.TotalAmount(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.OK(total))
}

func (s *Server) monthly(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	year, err := strconv.Atoi(vars["year"])
	if err != nil {
		s.fail(w, api.E(api.KindValidation, "monthly", fmt.Errorf("invalid year: %w", err)))
		return
	}
	month, err := strconv.Atoi(vars["month"])
	if err != nil {
		s.fail(w, api.E(api.KindValidation, "monthly", fmt.Errorf("invalid month: %w", err)))
		return
	}

	summary, err := s.finance.MonthlySummary(r.Context(), year, month)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.OK(summary))
}

func (s *Server) list(w http.ResponseWriter, records []api.Record, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	if records == nil {
		records = []api.Record{}
	}
	writeJSON(w, http.StatusOK, api.OKList(records, len(records)))
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, api.Fail(err))
}

func statusFor(err error) int {
	switch api.KindOf(err) {
	case api.KindNotFound:
		return http.StatusNotFound
	case api.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return api.E(api.KindValidation, "decode", fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, api.E(api.KindValidation, name, fmt.Errorf("invalid boolean %q", raw))
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
