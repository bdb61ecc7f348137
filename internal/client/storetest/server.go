// Package storetest provides an in-memory json-server stand-in for tests of
// the store client and the services built on it.
package storetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

type record = map[string]any

type fault struct {
	method string
	prefix string
	status int
	left   int
}

// Server mimics the subset of json-server the client uses: collection
// listing with equality filters, _sort/_order/_limit, and item CRUD with
// numeric auto ids.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	collections map[string][]record
	nextID      int
	requests    map[string]int
	faults      []*fault

	// IgnoreSort makes list endpoints ignore _sort/_order.
	IgnoreSort bool
	// Hook, when set, runs before every request is served.
	Hook func(r *http.Request)
}

// NewServer starts a Server that is closed on test cleanup.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		collections: map[string][]record{"users": {}, "posts": {}, "comments": {}},
		requests:    map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// FailNext makes the next n requests whose method matches and whose path
// starts with prefix answer with status.
func (s *Server) FailNext(method, prefix string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{method: method, prefix: prefix, status: status, left: n})
}

// Requests returns how many requests hit "METHOD /path" (query excluded).
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

// Seed inserts v (any JSON-marshalable value) into collection and returns
// the assigned id.
func (s *Server) Seed(collection string, v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(collection, rec)
}

// Records returns a copy of the stored objects of collection.
func (s *Server) Records(collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.collections[collection]))
	copy(out, s.collections[collection])
	return out
}

func (s *Server) insert(collection string, rec record) string {
	s.nextID++
	rec["id"] = float64(s.nextID)
	s.collections[collection] = append(s.collections[collection], rec)
	return strconv.Itoa(s.nextID)
}

func idString(v any) string {
	switch id := v.(type) {
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if s.Hook != nil {
		s.Hook(r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests[r.Method+" "+r.URL.Path]++

	for _, f := range s.faults {
		if f.left > 0 && f.method == r.Method && strings.HasPrefix(r.URL.Path, f.prefix) {
			f.left--
			writeJSON(w, f.status, record{"error": http.StatusText(f.status)})
			return
		}
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	items, ok := s.collections[parts[0]]
	if !ok || len(parts) > 2 {
		writeJSON(w, http.StatusNotFound, record{})
		return
	}
	collection := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, s.list(items, r))
		case http.MethodPost:
			var rec record
			if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
				writeJSON(w, http.StatusBadRequest, record{"error": err.Error()})
				return
			}
			s.insert(collection, rec)
			writeJSON(w, http.StatusCreated, rec)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	idx := -1
	for i, rec := range items {
		if idString(rec["id"]) == parts[1] {
			idx = i
			break
		}
	}
	if idx < 0 {
		writeJSON(w, http.StatusNotFound, record{})
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, items[idx])
	case http.MethodPut:
		var rec record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeJSON(w, http.StatusBadRequest, record{"error": err.Error()})
			return
		}
		rec["id"] = items[idx]["id"]
		items[idx] = rec
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		s.collections[collection] = append(items[:idx:idx], items[idx+1:]...)
		writeJSON(w, http.StatusOK, record{})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) list(items []record, r *http.Request) []record {
	q := r.URL.Query()
	out := make([]record, 0, len(items))

	for _, rec := range items {
		match := true
		for key, values := range q {
			if strings.HasPrefix(key, "_") {
				continue
			}
			if idString(rec[key]) != values[0] {
				match = false
				break
			}
		}
		if match {
			out = append(out, rec)
		}
	}

	if field := q.Get("_sort"); field != "" && !s.IgnoreSort {
		desc := q.Get("_order") == "desc"
		sort.SliceStable(out, func(i, j int) bool {
			a, b := fmt.Sprint(out[i][field]), fmt.Sprint(out[j][field])
			if desc {
				return a > b
			}
			return a < b
		})
	}

	if limit, err := strconv.Atoi(q.Get("_limit")); err == nil && limit < len(out) {
		out = out[:limit]
	}
	return out
}
