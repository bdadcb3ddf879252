// Package trinotest provides an in-process fake Trino coordinator for tests,
// in the spirit of net/http/httptest.
package trinotest

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"trino-ingest/internal/config"
	"trino-ingest/internal/trino"
)

// Script describes how the fake coordinator answers one query text.
type Script struct {
	Columns []trino.Column
	Pages   [][][]any // rows per page; one response per page

	// QueuedPolls is the number of empty QUEUED responses before the first page.
	QueuedPolls int
	// Error, when set, is reported in the final response instead of FINISHED.
	Error *trino.QueryError
	// RejectOnSubmit reports Error in the response to the initial POST.
	RejectOnSubmit bool
	// PollStatus, when non-zero, is the HTTP status returned for every GET.
	PollStatus int
}

type run struct {
	responses  []trino.QueryResults
	pollStatus int
}

// Server is a fake coordinator speaking the /v1/statement protocol.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	scripts   map[string]Script
	running   map[string]run
	queries   []string
	headers   []http.Header
	polls     int
	cancelled []string
	nextID    int
}

// New starts a fake coordinator and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		scripts: make(map[string]Script),
		running: make(map[string]run),
	}
	r := chi.NewRouter()
	r.Post("/v1/statement", s.handleSubmit)
	r.Get("/v1/statement/executing/{queryID}/{token}", s.handlePoll)
	r.Delete("/v1/statement/executing/{queryID}/{token}", s.handleCancel)
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Handle registers the answer for an exact query text.
func (s *Server) Handle(query string, script Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[query] = script
}

// ServerConfig returns a server configuration pointing at the fake coordinator.
func (s *Server) ServerConfig() config.ServerConfig {
	cfg := config.Default().Server
	host, port, err := net.SplitHostPort(s.Listener.Addr().String())
	if err != nil {
		panic(err)
	}
	cfg.Host = host
	cfg.Port, _ = strconv.Atoi(port)
	return cfg
}

// Queries returns the submitted query texts in order.
func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Headers returns the headers of each submit request in order.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

// Polls returns the number of GET requests served.
func (s *Server) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Cancelled returns the ids of queries cancelled with DELETE.
func (s *Server) Cancelled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cancelled...)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	query := string(body)

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("20261017_000000_%05d_fake0", s.nextID)
	s.queries = append(s.queries, query)
	s.headers = append(s.headers, r.Header.Clone())
	script, ok := s.scripts[query]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, trino.QueryResults{
			ID:    id,
			Stats: trino.StatementStats{State: "FAILED"},
			Error: &trino.QueryError{
				Message:   fmt.Sprintf("no script for query %q", query),
				ErrorCode: 1,
				ErrorName: "SYNTAX_ERROR",
				ErrorType: "USER_ERROR",
			},
		})
		return
	}
	if script.RejectOnSubmit {
		writeJSON(w, trino.QueryResults{ID: id, Stats: trino.StatementStats{State: "FAILED"}, Error: script.Error})
		return
	}

	base := "http://" + r.Host + "/v1/statement/executing/" + id + "/"
	responses := []trino.QueryResults{{ID: id, Stats: trino.StatementStats{State: "QUEUED", Queued: true}}}
	for i := 0; i < script.QueuedPolls; i++ {
		responses = append(responses, trino.QueryResults{ID: id, Stats: trino.StatementStats{State: "QUEUED", Queued: true}})
	}
	for _, rows := range script.Pages {
		responses = append(responses, trino.QueryResults{
			ID:      id,
			Columns: script.Columns,
			Data:    rows,
			Stats:   trino.StatementStats{State: "RUNNING", Scheduled: true},
		})
	}
	final := trino.QueryResults{ID: id, Columns: script.Columns, Stats: trino.StatementStats{State: "FINISHED"}}
	if script.Error != nil {
		final = trino.QueryResults{ID: id, Stats: trino.StatementStats{State: "FAILED"}, Error: script.Error}
	}
	responses = append(responses, final)
	for i := 0; i < len(responses)-1; i++ {
		responses[i].NextURI = base + strconv.Itoa(i+1)
	}

	s.mu.Lock()
	s.running[id] = run{responses: responses, pollStatus: script.PollStatus}
	s.mu.Unlock()

	writeJSON(w, responses[0])
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "queryID")
	token, err := strconv.Atoi(chi.URLParam(r, "token"))

	s.mu.Lock()
	s.polls++
	q := s.running[id]
	s.mu.Unlock()

	if q.pollStatus != 0 {
		http.Error(w, "coordinator unavailable", q.pollStatus)
		return
	}
	responses := q.responses
	if err != nil || token < 1 || token >= len(responses) {
		http.Error(w, "unknown token", http.StatusNotFound)
		return
	}
	writeJSON(w, responses[token])
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.cancelled = append(s.cancelled, chi.URLParam(r, "queryID"))
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Varchar returns a varchar column.
func Varchar(name string) trino.Column { return column(name, "varchar", "varchar") }

// Bigint returns a bigint column.
func Bigint(name string) trino.Column { return column(name, "bigint", "bigint") }

// Double returns a double column.
func Double(name string) trino.Column { return column(name, "double", "double") }

// Boolean returns a boolean column.
func Boolean(name string) trino.Column { return column(name, "boolean", "boolean") }

// Column returns a column with an arbitrary type name, e.g. "timestamp(3) with time zone".
func Column(name, typeName, rawType string) trino.Column { return column(name, typeName, rawType) }

func column(name, typeName, rawType string) trino.Column {
	return trino.Column{Name: name, Type: typeName, TypeSignature: trino.ClientTypeSignature{RawType: rawType}}
}
