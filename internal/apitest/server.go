// Package apitest runs an in-process fake of the travel REST API for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultEmail    = "ana@viagens.com"
	DefaultPassword = "secret123"
)

type Account struct {
	User         map[string]any
	PasswordHash []byte
}

type override struct {
	status int
	body   any
}

type Server struct {
	*httptest.Server

	mu             sync.Mutex
	secret         []byte
	accounts       map[string]*Account
	expiresIn      *int
	destinations   []map[string]any
	travelRequests []map[string]any
	nextID         int64
	overrides      map[string]override
	calls          map[string]int
	lastQuery      map[string]string
}

// NewServer starts the fake API with one seeded account. The API lives under
// /api, so clients should use URL() as base.
func NewServer() *Server {
	s := &Server{
		secret:    []byte("apitest-signing-secret"),
		accounts:  map[string]*Account{},
		nextID:    1,
		overrides: map[string]override{},
		calls:     map[string]int{},
		lastQuery: map[string]string{},
	}
	s.AddAccount(DefaultEmail, DefaultPassword, map[string]any{
		"id":    1,
		"name":  "Ana Souza",
		"email": DefaultEmail,
		"role":  "manager",
		"roles": []string{"manager"},
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.track)
	r.Route("/api", func(api chi.Router) {
		api.Post("/login", s.login)
		api.Get("/user", s.currentUser)
		api.Get("/destinations", s.searchDestinations)
		api.Get("/travel-requests", s.listTravelRequests)
		api.Post("/travel-requests", s.createTravelRequest)
		api.Patch("/travel-requests/{id}/status", s.updateTravelRequestStatus)
	})

	s.Server = httptest.NewServer(r)
	return s
}

// URL returns the API base URL.
func (s *Server) URL() string {
	return s.Server.URL + "/api"
}

func (s *Server) AddAccount(email, password string, user map[string]any) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = &Account{User: user, PasswordHash: hash}
}

// SetExpiresIn controls the expires_in field of the login response; nil omits it.
func (s *Server) SetExpiresIn(seconds *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiresIn = seconds
}

func (s *Server) AddDestination(d map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destinations = append(s.destinations, d)
}

// AddTravelRequest stores a raw record as the API would return it.
func (s *Server) AddTravelRequest(record map[string]any) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := record["id"]
	if !ok {
		id = s.nextID
		record["id"] = id
	}
	s.nextID++
	s.travelRequests = append(s.travelRequests, record)
	return toInt64(id)
}

// Fail makes every request to method+path answer status with body until Reset.
func (s *Server) Fail(method, path string, status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[method+" "+path] = override{status: status, body: body}
}

func (s *Server) Reset(method, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, method+" "+path)
}

// Calls counts requests received for method+path.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// LastQuery returns the raw query string of the latest request to method+path.
func (s *Server) LastQuery(method, path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery[method+" "+path]
}

// IssueToken signs a token for subject valid for ttl.
func (s *Server) IssueToken(subject string, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return token
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")

		s.mu.Lock()
		s.calls[key]++
		s.lastQuery[key] = r.URL.RawQuery
		o, forced := s.overrides[key]
		s.mu.Unlock()

		if forced {
			writeJSON(w, o.status, o.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Payload inválido."})
		return
	}

	s.mu.Lock()
	account, ok := s.accounts[creds.Email]
	expiresIn := s.expiresIn
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(creds.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Credenciais inválidas."})
		return
	}

	ttl := 15 * time.Minute
	resp := map[string]any{}
	if expiresIn != nil {
		ttl = time.Duration(*expiresIn) * time.Second
		resp["expires_in"] = *expiresIn
	}
	resp["token"] = s.IssueToken(creds.Email, ttl)

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	subject, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
		return
	}

	s.mu.Lock()
	account, exists := s.accounts[subject]
	s.mu.Unlock()
	if !exists {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": account.User})
}

func (s *Server) authenticate(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	return claims.Subject, true
}

func (s *Server) searchDestinations(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data := []map[string]any{}
	for _, d := range s.destinations {
		label, _ := d["label"].(string)
		if strings.Contains(strings.ToLower(label), q) {
			data = append(data, d)
		}
		if len(data) == limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (s *Server) listTravelRequests(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
		return
	}

	query := r.URL.Query()
	status := query.Get("status")
	location := strings.ToLower(query.Get("location"))
	page := atoiDefault(query.Get("page"), 1)
	perPage := atoiDefault(query.Get("per_page"), 15)

	s.mu.Lock()
	var matched []map[string]any
	for _, record := range s.travelRequests {
		if status != "" && record["status"] != status {
			continue
		}
		if location != "" {
			label, _ := record["location_label"].(string)
			if !strings.Contains(strings.ToLower(label), location) {
				continue
			}
		}
		matched = append(matched, record)
	}
	s.mu.Unlock()

	total := len(matched)
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	data := matched[start:end]
	if data == nil {
		data = []map[string]any{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": map[string]any{
			"current_page": page,
			"last_page":    lastPage,
			"per_page":     perPage,
			"total":        total,
		},
	})
}

func (s *Server) createTravelRequest(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Payload inválido."})
		return
	}

	fieldErrors := map[string][]string{}
	for _, field := range []string{"requester_name", "city_id", "departure_date", "return_date"} {
		if v, ok := payload[field]; !ok || v == nil || v == "" {
			fieldErrors[field] = []string{fmt.Sprintf("O campo %s é obrigatório.", field)}
		}
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Os dados informados são inválidos.",
			"errors":  fieldErrors,
		})
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	record := map[string]any{
		"requester_name": payload["requester_name"],
		"city_id":        payload["city_id"],
		"departure_date": payload["departure_date"],
		"return_date":    payload["return_date"],
		"notes":          payload["notes"],
		"status":         "requested",
		"created_at":     now,
		"updated_at":     now,
	}
	s.AddTravelRequest(record)

	writeJSON(w, http.StatusCreated, map[string]any{"data": record})
}

func (s *Server) updateTravelRequestStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Pedido não encontrado."})
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Status == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Os dados informados são inválidos.",
			"errors":  map[string][]string{"status": {"O campo status é obrigatório."}},
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.travelRequests {
		if toInt64(record["id"]) == id {
			record["status"] = payload.Status
			record["updated_at"] = time.Now().UTC().Format(time.RFC3339)
			writeJSON(w, http.StatusOK, map[string]any{"data": record})
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]any{"message": "Pedido não encontrado."})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}
