// Package zerocattest provides an in-memory ZeroCat backend for tests.
package zerocattest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/julienschmidt/httprouter"
)

type Commit struct {
	ID          string
	File        string
	Message     string
	Description string
	Branch      string
}

type Project struct {
	ID          string
	Name        string
	Title       string
	Description string
	State       string
	Initialized bool
	Commits     []Commit // newest first
	Thumbnails  int
}

// Server is a fake backend. Exported fields may be changed between requests
// to inject failures.
type Server struct {
	*httptest.Server

	Username string
	Token    string

	RejectCreate bool
	FailTokens   bool
	FailFiles    bool
	FailCommit   bool

	mu       sync.Mutex
	nextID   int
	projects map[string]*Project // by name
	files    map[string][]byte   // sha256 -> content
	grants   map[string]string   // access token -> sha256
	calls    []string
}

func NewServer(username, token string) *Server {
	s := &Server{
		Username: username,
		Token:    token,
		nextID:   100,
		projects: map[string]*Project{},
		files:    map[string][]byte{},
		grants:   map[string]string{},
	}

	router := httprouter.New()
	router.GET("/user/me", s.wrap("me", s.me))
	router.GET("/project/namespace/:user/:name", s.wrap("exists", s.exists))
	router.POST("/project", s.wrap("create", s.create))
	router.POST("/project/initlize", s.wrap("initialize", s.initialize))
	router.GET("/project/commits", s.wrap("commits", s.commits))
	router.GET("/project/commit", s.wrap("token", s.token))
	router.GET("/project/files/:sha", s.wrap("file", s.file))
	router.POST("/project/savefile", s.wrap("savefile", s.savefile))
	router.PUT("/project/commit/id/:id", s.wrap("commit", s.commit))
	router.POST("/scratch/thumbnail/:id", s.wrap("thumbnail", s.thumbnail))

	s.Server = httptest.NewServer(router)
	return s
}

// Calls returns the names of the handled requests in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Project returns a copy of the named project, or nil.
func (s *Server) Project(name string) *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[name]
	if !ok {
		return nil
	}
	cp := *p
	cp.Commits = append([]Commit(nil), p.Commits...)
	return &cp
}

// Content returns the content of the latest commit of the named project.
func (s *Server) Content(name string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[name]
	if !ok || len(p.Commits) == 0 {
		return nil
	}
	return s.files[p.Commits[0].File]
}

func (s *Server) wrap(name string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "message": "unauthorized"})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.calls = append(s.calls, name)
		h(w, r, p)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) byID(id string) *Project {
	for _, p := range s.projects {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Server) me(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   map[string]string{"username": s.Username, "display_name": s.Username},
	})
}

func (s *Server) exists(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	proj, ok := s.projects[p.ByName("name")]
	if p.ByName("user") != s.Username || !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "not found"})
		return
	}
	id, _ := strconv.Atoi(proj.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "name": proj.Name})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	if s.RejectCreate {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "name taken"})
		return
	}
	s.nextID++
	proj := &Project{
		ID:          strconv.Itoa(s.nextID),
		Name:        body["name"],
		Title:       body["title"],
		Description: body["description"],
		State:       body["state"],
	}
	s.projects[proj.Name] = proj
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "id": s.nextID})
}

func (s *Server) initialize(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	proj := s.byID(r.URL.Query().Get("projectid"))
	if proj == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "no project"})
		return
	}
	proj.Initialized = true
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) commits(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	proj := s.byID(r.URL.Query().Get("projectid"))
	data := make([]map[string]string, 0)
	if proj != nil {
		for _, c := range proj.Commits {
			data = append(data, map[string]string{"id": c.ID, "commit_file": c.File})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "data": data})
}

func (s *Server) token(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	proj := s.byID(r.URL.Query().Get("projectid"))
	if s.FailTokens || proj == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "no access"})
		return
	}
	commitID := r.URL.Query().Get("commitid")
	for _, c := range proj.Commits {
		if c.ID == commitID {
			token := fmt.Sprintf("read-%s-%d", c.ID, len(s.grants))
			s.grants[token] = c.File
			writeJSON(w, http.StatusOK, map[string]string{"status": "success", "accessFileToken": token})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "no such commit"})
}

func (s *Server) file(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	sha := p.ByName("sha")
	if s.FailFiles || s.grants[r.URL.Query().Get("accessFileToken")] != sha {
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "error", "message": "forbidden"})
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write(s.files[sha])
}

func (s *Server) savefile(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	sum := sha256.Sum256(data)
	sha := hex.EncodeToString(sum[:])
	s.files[sha] = data
	token := fmt.Sprintf("write-%d", len(s.grants))
	s.grants[token] = sha
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "sha256": sha, "accessFileToken": token})
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	proj := s.byID(p.ByName("id"))
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || proj == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "bad commit"})
		return
	}
	if s.FailCommit {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "boom"})
		return
	}
	sha, ok := s.grants[body["accessFileToken"]]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "bad token"})
		return
	}
	c := Commit{
		ID:          fmt.Sprintf("c%d", len(proj.Commits)+1),
		File:        sha,
		Message:     body["message"],
		Description: body["commit_description"],
		Branch:      body["branch"],
	}
	proj.Commits = append([]Commit{c}, proj.Commits...)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "data": map[string]string{"id": c.ID}})
}

func (s *Server) thumbnail(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	proj := s.byID(p.ByName("id"))
	if proj == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "no project"})
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	if _, _, err := r.FormFile("file"); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	proj.Thumbnails++
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
