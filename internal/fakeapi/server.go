// Package fakeapi is an in-process fake of the remote course service. It
// implements the upload and course endpoints, records every request, checks
// that chunks arrive in order and can be told to fail specific routes.
//
// It backs the package tests and the `coursectl fake-api` command used for
// local development.
package fakeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/coursesync/internal/model"
)

var fakeLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	fakeLogger = l
}

const (
	RouteInitiate = "POST /uploads/initiate"
	RouteChunk    = "POST /uploads/chunk"
	RouteComplete = "POST /uploads/complete"
	RouteCreate   = "POST /courses"
	RouteUpdate   = "PUT /courses"
	RouteList     = "GET /courses"
)

// Request is one entry of the request log.
type Request struct {
	Route      string
	Path       string
	UploadID   string
	ChunkIndex int
	Body       []byte
}

// Failure makes the next Times requests to a route fail. A zero Status drops
// the connection without a response.
type Failure struct {
	Status int
	Body   string
	Times  int
	Delay  time.Duration
}

type upload struct {
	fileName    string
	purpose     string
	courseSlug  string
	totalChunks int
	next        int
	data        bytes.Buffer
}

type Server struct {
	mu       sync.Mutex
	baseURL  string
	requests []Request
	failures map[string]*Failure
	uploads  map[string]*upload
	files    map[string][]byte
	courses  map[string]json.RawMessage
	nextID   int64

	// gate, when set, is received from before a course create or update is
	// answered.
	gate chan struct{}
}

func New() *Server {
	return &Server{
		failures: make(map[string]*Failure),
		uploads:  make(map[string]*upload),
		files:    make(map[string][]byte),
		courses:  make(map[string]json.RawMessage),
	}
}

// NewTestServer starts s on a local listener. The caller closes it.
func NewTestServer(s *Server) *httptest.Server {
	ts := httptest.NewServer(s.Handler())
	s.SetBaseURL(ts.URL)
	return ts
}

// SetBaseURL sets the prefix of the file URLs handed out on complete.
func (s *Server) SetBaseURL(u string) {
	s.mu.Lock()
	s.baseURL = strings.TrimSuffix(u, "/")
	s.mu.Unlock()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/uploads/initiate", s.method(http.MethodPost, s.handleInitiate))
	mux.HandleFunc("/uploads/chunk", s.method(http.MethodPost, s.handleChunk))
	mux.HandleFunc("/uploads/complete", s.method(http.MethodPost, s.handleComplete))
	mux.HandleFunc("/courses", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			s.handleCreate(w, r)
		case http.MethodGet:
			s.handleList(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/courses/{slug}", s.method(http.MethodPut, s.handleUpdate))
	mux.HandleFunc("/files/{id}/{name}", s.method(http.MethodGet, s.handleFile))
	return mux
}

func (s *Server) method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// Fail installs a failure for route, one of the Route constants.
func (s *Server) Fail(route string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Times == 0 {
		f.Times = 1
	}
	s.failures[route] = &f
}

// Seed stores an existing course so it can be updated.
func (s *Server) Seed(c model.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID > s.nextID {
		s.nextID = c.ID
	}
	data, _ := json.Marshal(c)
	s.courses[c.Slug] = data
}

// Requests returns a copy of the request log.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests hit route.
func (s *Server) Count(route string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Route == route {
			n++
		}
	}
	return n
}

// ChunkIndices returns the chunk indices received for an upload, in arrival
// order.
func (s *Server) ChunkIndices(uploadID string) []int {
	var out []int
	for _, r := range s.Requests() {
		if r.Route == RouteChunk && r.UploadID == uploadID {
			out = append(out, r.ChunkIndex)
		}
	}
	return out
}

// File returns the assembled bytes served at url.
func (s *Server) File(url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[url]
	return data, ok
}

// Course returns the stored representation of slug.
func (s *Server) Course(slug string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[slug]
	return c, ok
}

func (s *Server) record(req Request) *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	f, ok := s.failures[req.Route]
	if !ok {
		return nil
	}
	f.Times--
	if f.Times <= 0 {
		delete(s.failures, req.Route)
	}
	out := *f
	return &out
}

// inject answers a request according to f. It reports whether the request
// was consumed.
func inject(w http.ResponseWriter, f *Failure) bool {
	if f == nil {
		return false
	}
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if f.Status == 0 {
		hj, ok := w.(http.Hijacker)
		if !ok {
			http.Error(w, "connection dropped", http.StatusBadGateway)
			return true
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
		return true
	}
	body := f.Body
	if body == "" {
		body = fmt.Sprintf(`{"message":%q}`, http.StatusText(f.Status))
	}
	writeRaw(w, f.Status, []byte(body))
	return true
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	if inject(w, s.record(Request{Route: RouteInitiate, Path: r.URL.Path, Body: body})) {
		return
	}

	var req struct {
		FileName    string `json:"fileName"`
		TotalChunks int    `json:"totalChunks"`
		Purpose     string `json:"purpose"`
		CourseSlug  string `json:"courseSlug"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.FileName == "" || req.TotalChunks < 0 {
		writeError(w, http.StatusBadRequest, "invalid initiate request")
		return
	}
	switch req.Purpose {
	case "thumbnail", "intro_video", "lesson_video":
	default:
		writeError(w, http.StatusBadRequest, "unknown purpose "+req.Purpose)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.uploads[id] = &upload{
		fileName:    req.FileName,
		purpose:     req.Purpose,
		courseSlug:  req.CourseSlug,
		totalChunks: req.TotalChunks,
	}
	s.mu.Unlock()

	fakeLogger.Debug().Str("upload_id", id).Str("file", req.FileName).Int("chunks", req.TotalChunks).Msg("Upload initiated")
	writeJSON(w, http.StatusOK, map[string]string{"uploadId": id})
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.record(Request{Route: RouteChunk, Path: r.URL.Path})
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	uploadID := r.FormValue("uploadId")
	index, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil {
		index = -1
	}

	if inject(w, s.record(Request{Route: RouteChunk, Path: r.URL.Path, UploadID: uploadID, ChunkIndex: index})) {
		return
	}

	file, _, err := r.FormFile("chunk")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing chunk")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable chunk")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown upload")
		return
	}
	if index != up.next {
		writeError(w, http.StatusConflict, fmt.Sprintf("expected chunk %d, got %d", up.next, index))
		return
	}
	up.data.Write(data)
	up.next++
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req struct {
		UploadID string `json:"uploadId"`
	}
	_ = json.Unmarshal(body, &req)

	if inject(w, s.record(Request{Route: RouteComplete, Path: r.URL.Path, UploadID: req.UploadID, Body: body})) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[req.UploadID]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown upload")
		return
	}
	if up.next != up.totalChunks {
		writeError(w, http.StatusConflict, fmt.Sprintf("received %d of %d chunks", up.next, up.totalChunks))
		return
	}
	delete(s.uploads, req.UploadID)

	url := fmt.Sprintf("%s/files/%s/%s", s.baseURL, req.UploadID, up.fileName)
	s.files[url] = up.data.Bytes()
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	if inject(w, s.record(Request{Route: RouteCreate, Path: r.URL.Path, Body: body})) {
		return
	}
	s.wait()

	course, err := decodeCourse(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if _, ok := course["course_id"]; ok {
		writeError(w, http.StatusUnprocessableEntity, "course_id is not allowed on create")
		return
	}

	s.mu.Lock()
	slug, _ := course["slug"].(string)
	if _, exists := s.courses[slug]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "slug already taken")
		return
	}
	s.nextID++
	course["id"] = s.nextID
	data, _ := json.Marshal(course)
	s.courses[slug] = data
	s.mu.Unlock()

	writeRaw(w, http.StatusCreated, data)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	if inject(w, s.record(Request{Route: RouteUpdate, Path: r.URL.Path, Body: body})) {
		return
	}
	s.wait()

	course, err := decodeCourse(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	slug := r.PathValue("slug")
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.courses[slug]
	if !ok {
		writeError(w, http.StatusNotFound, "course not found")
		return
	}
	var prev struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(existing, &prev)
	course["id"] = prev.ID
	delete(course, "course_id")

	newSlug, _ := course["slug"].(string)
	if newSlug == "" {
		newSlug = slug
		course["slug"] = slug
	}
	data, _ := json.Marshal(course)
	delete(s.courses, slug)
	s.courses[newSlug] = data

	writeRaw(w, http.StatusOK, data)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if inject(w, s.record(Request{Route: RouteList, Path: r.URL.Path})) {
		return
	}

	s.mu.Lock()
	slugs := make([]string, 0, len(s.courses))
	for slug := range s.courses {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	list := make([]json.RawMessage, 0, len(slugs))
	for _, slug := range slugs {
		list = append(list, s.courses[slug])
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	url := fmt.Sprintf("%s/files/%s/%s", s.baseURL, r.PathValue("id"), r.PathValue("name"))
	data, ok := s.files[url]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data)
}

// Hold blocks course creates and updates until the returned release func is
// called.
func (s *Server) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(gate)
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
		})
	}
}

func (s *Server) wait() {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func decodeCourse(body []byte) (map[string]any, error) {
	var course map[string]any
	if err := json.Unmarshal(body, &course); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if title, _ := course["title"].(string); title == "" {
		return nil, fmt.Errorf("title is required")
	}
	return course, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, data)
}

func writeRaw(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
