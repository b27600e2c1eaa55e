// Package aspacetest provides an in-memory ArchivesSpace backend served
// over HTTP for tests.
package aspacetest

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/containersync/internal/aspace"
)

// Session is the token every successful login returns.
const Session = "test-session"

// Call is one request received by the server.
type Call struct {
	Method string
	Path   string
	Query  string
}

func (c Call) String() string {
	if c.Query == "" {
		return c.Method + " " + c.Path
	}
	return c.Method + " " + c.Path + "?" + c.Query
}

type rejection struct {
	status int
	body   string
}

// Server is a fake backend. Records are kept as decoded JSON objects keyed
// by URI. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	nextID    int
	records   map[string]map[string]any
	created   []string
	repos     []aspace.Repository
	users     map[string]string
	calls     []Call
	authOn    bool
	failFetch *rejection
	rejectTC  map[string]rejection // by container indicator
	rejectUpd map[string]rejection // by record URI
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		nextID:    1000,
		records:   make(map[string]map[string]any),
		users:     make(map[string]string),
		rejectTC:  make(map[string]rejection),
		rejectUpd: make(map[string]rejection),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	r.Use(s.authenticate)

	r.Post("/users/{user}/login", s.handleLogin)
	r.Get("/repositories", s.handleRepositories)
	r.Post("/repositories/{repo}/top_containers", s.handleCreateContainer)
	r.Get("/repositories/{repo}/archival_objects", s.handleFetchBatch)
	r.Get("/repositories/{repo}/jobs", s.handleJobs)
	r.Get("/*", s.handleGet)
	r.Post("/*", s.handleUpdate)
	r.Delete("/*", s.handleDelete)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Client returns a client already holding a session.
func (s *Server) Client(t testing.TB) *aspace.Client {
	t.Helper()
	c, err := aspace.NewClient(aspace.Config{BaseURL: s.URL, Session: Session})
	if err != nil {
		t.Fatalf("aspacetest: %v", err)
	}
	return c
}

// NextID makes the next created container receive id.
func (s *Server) NextID(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = id - 1
}

// RequireAuth makes every call except login require the session header.
func (s *Server) RequireAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authOn = true
}

// AddUser registers login credentials.
func (s *Server) AddUser(name, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[name] = password
}

// AddArchivalObject stores an archival object with n existing instances
// and returns its URI. Like the real backend, reads carry a computed
// "position" that writes must not send back.
func (s *Server) AddArchivalObject(repoID, id, n int) string {
	uri := fmt.Sprintf("/repositories/%d/archival_objects/%d", repoID, id)
	instances := make([]any, 0, n)
	for i := 0; i < n; i++ {
		instances = append(instances, map[string]any{
			"instance_type": "mixed_materials",
			"sub_container": map[string]any{
				"top_container": map[string]any{
					"ref": fmt.Sprintf("/repositories/%d/top_containers/%d", repoID, 1+i),
				},
			},
		})
	}
	s.Put(uri, map[string]any{
		"jsonmodel_type": "archival_object",
		"uri":            uri,
		"title":          fmt.Sprintf("Object %d", id),
		"position":       id,
		"instances":      instances,
	})
	return uri
}

// AddTopContainer stores a top container and returns its URI.
func (s *Server) AddTopContainer(repoID, id int, indicator string) string {
	uri := fmt.Sprintf("/repositories/%d/top_containers/%d", repoID, id)
	s.Put(uri, map[string]any{
		"jsonmodel_type":      "top_container",
		"uri":                 uri,
		"indicator":           indicator,
		"type":                "box",
		"container_locations": []any{},
	})
	return uri
}

// AddRepository stores a repository record.
func (s *Server) AddRepository(id int, code string) string {
	uri := fmt.Sprintf("/repositories/%d", id)
	s.mu.Lock()
	s.repos = append(s.repos, aspace.Repository{URI: uri, RepoCode: code})
	s.mu.Unlock()
	s.Put(uri, map[string]any{"jsonmodel_type": "repository", "uri": uri, "repo_code": code})
	return uri
}

// AddJob stores a job under a repository and returns its URI.
func (s *Server) AddJob(repoID, id int, jobType string) string {
	uri := fmt.Sprintf("/repositories/%d/jobs/%d", repoID, id)
	s.Put(uri, map[string]any{
		"jsonmodel_type": "job",
		"uri":            uri,
		"job_type":       jobType,
		"status":         "completed",
	})
	return uri
}

// Put stores or replaces a record.
func (s *Server) Put(uri string, rec map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[uri] = rec
}

// Record returns a copy of the stored record, or nil.
func (s *Server) Record(uri string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[uri]
	if !ok {
		return nil
	}
	return clone(rec)
}

// Instances returns the stored instances of a record.
func (s *Server) Instances(uri string) []any {
	rec := s.Record(uri)
	list, _ := rec["instances"].([]any)
	return list
}

// Created returns the URIs of top containers created through the API, in
// creation order.
func (s *Server) Created() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.created...)
}

// RejectContainer makes creation of containers with this indicator fail.
func (s *Server) RejectContainer(indicator string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectTC[indicator] = rejection{status, body}
}

// RejectUpdate makes posts to uri fail.
func (s *Server) RejectUpdate(uri string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectUpd[uri] = rejection{status, body}
}

// FailBatchFetch makes every archival object batch read fail.
func (s *Server) FailBatchFetch(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFetch = &rejection{status, body}
}

// Heal drops every configured rejection and fetch failure.
func (s *Server) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFetch = nil
	s.rejectTC = make(map[string]rejection)
	s.rejectUpd = make(map[string]rejection)
}

// Calls returns every request received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsMatching returns calls with the given method whose path has prefix.
func (s *Server) CallsMatching(method, prefix string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Mutations counts POST and DELETE calls other than logins.
func (s *Server) Mutations() int {
	n := 0
	for _, c := range s.Calls() {
		if (c.Method == http.MethodPost || c.Method == http.MethodDelete) && !strings.HasPrefix(c.Path, "/users/") {
			n++
		}
	}
	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		on := s.authOn
		s.mu.Unlock()
		if on && !strings.HasPrefix(r.URL.Path, "/users/") && r.Header.Get(aspace.SessionHeader) != Session {
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "Access denied"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	s.mu.Lock()
	want, ok := s.users[user]
	s.mu.Unlock()
	if !ok || r.URL.Query().Get("password") != want {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "Login failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": Session})
}

func (s *Server) handleRepositories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	repos := append([]aspace.Repository(nil), s.repos...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	indicator, _ := body["indicator"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	if rej, ok := s.rejectTC[indicator]; ok {
		writeRaw(w, rej.status, rej.body)
		return
	}
	if indicator == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"indicator": []string{"Property is required but was missing"}},
		})
		return
	}
	s.nextID++
	id := s.nextID
	uri := fmt.Sprintf("/repositories/%s/top_containers/%d", chi.URLParam(r, "repo"), id)
	body["uri"] = uri
	s.records[uri] = body
	s.created = append(s.created, uri)
	writeJSON(w, http.StatusOK, map[string]any{"status": "Created", "id": id, "uri": uri})
}

func (s *Server) handleFetchBatch(w http.ResponseWriter, r *http.Request) {
	repo := chi.URLParam(r, "repo")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFetch != nil {
		writeRaw(w, s.failFetch.status, s.failFetch.body)
		return
	}
	out := []any{}
	for _, raw := range r.URL.Query()["id_set"] {
		for _, idStr := range strings.Split(raw, ",") {
			uri := "/repositories/" + repo + "/archival_objects/" + strings.TrimSpace(idStr)
			if rec, ok := s.records[uri]; ok {
				out = append(out, clone(rec))
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	prefix := "/repositories/" + chi.URLParam(r, "repo") + "/jobs/"
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}

	s.mu.Lock()
	var uris []string
	for uri := range s.records {
		if strings.HasPrefix(uri, prefix) {
			uris = append(uris, uri)
		}
	}
	sort.Strings(uris)
	var results []any
	start := (page - 1) * size
	for i := start; i < len(uris) && i < start+size; i++ {
		results = append(results, clone(s.records[uris[i]]))
	}
	s.mu.Unlock()

	last := (len(uris) + size - 1) / size
	if last < 1 {
		last = 1
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"first_page": 1,
		"last_page":  last,
		"this_page":  page,
		"total":      len(uris),
		"results":    results,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rec, ok := s.records[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Record not found"})
		return
	}
	writeJSON(w, http.StatusOK, clone(rec))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Path
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rej, ok := s.rejectUpd[uri]; ok {
		writeRaw(w, rej.status, rej.body)
		return
	}
	if _, ok := s.records[uri]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Record not found"})
		return
	}
	if _, ok := body["position"]; ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"position": []string{"Read-only property"}},
		})
		return
	}
	body["uri"] = uri
	s.records[uri] = body
	writeJSON(w, http.StatusOK, map[string]any{"status": "Updated", "uri": uri})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Path
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[uri]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Record not found"})
		return
	}
	delete(s.records, uri)
	writeJSON(w, http.StatusOK, map[string]any{"status": "Deleted", "uri": uri})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func clone(rec map[string]any) map[string]any {
	data, _ := json.Marshal(rec)
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}
