// Package fakeapi is an in-process stand-in for the finance REST backend,
// used by the client packages' tests. It keeps its data in memory, issues
// real HS256 JWTs and records every call so tests can assert which
// requests were (or were not) made.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt"
	"github.com/shopspring/decimal"
)

const (
	PageSize = 5
	secret   = "fakeapi-secret"
)

type (
	user struct {
		password  string
		id        int
		firstName string
		lastName  string
	}

	category struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	}

	transaction struct {
		ID          int
		Amount      decimal.Decimal
		Description string
		Category    int
		CreatedAt   time.Time
	}

	budget struct {
		ID     int
		Month  time.Time
		Amount decimal.Decimal
	}
)

// Server is a fake backend. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	users        map[string]*user
	tokens       map[string]string
	categories   []category
	transactions []transaction
	budgets      []budget
	nextID       int
	calls        map[string]int
	forced       map[string]forcedResponse

	emptyProfile bool
	omitAccess   bool
	tokenTTL     time.Duration
	now          func() time.Time
	beforeHandle func(r *http.Request)
}

type forcedResponse struct {
	status int
	body   string
}

func New() *Server {
	s := &Server{
		users:    map[string]*user{},
		tokens:   map[string]string{},
		calls:    map[string]int{},
		forced:   map[string]forcedResponse{},
		nextID:   1,
		tokenTTL: time.Hour,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Post("/api/token/", s.handleToken)
	r.Post("/api/register/", s.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/api/profile/", s.handleProfile)

		r.Get("/api/categories/", s.handleListCategories)
		r.Post("/api/categories/", s.handleCreateCategory)
		r.Patch("/api/categories/{id}/", s.handleUpdateCategory)
		r.Delete("/api/categories/{id}/", s.handleDeleteCategory)

		r.Get("/api/transactions/", s.handleListTransactions)
		r.Post("/api/transactions/", s.handleCreateTransaction)
		r.Patch("/api/transactions/{id}/", s.handleUpdateTransaction)
		r.Delete("/api/transactions/{id}/", s.handleDeleteTransaction)

		r.Get("/api/monthly-budgets/current-month/", s.handleCurrentBudget)
		r.Post("/api/monthly-budgets/", s.handleCreateBudget)
		r.Patch("/api/monthly-budgets/{id}/", s.handleUpdateBudget)

		r.Get("/api/stats/", s.handleStats)
	})
	return r
}

// --- test controls ---

// AddUser registers an account and returns its id.
func (s *Server) AddUser(email, password, firstName, lastName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.users[email] = &user{password: password, id: id, firstName: firstName, lastName: lastName}
	return id
}

// IssueToken returns a signed token for email that expires at exp and is
// accepted by the server.
func (s *Server) IssueToken(email string, exp time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issue(email, exp)
}

// RevokeTokens makes every issued token answer 401.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = map[string]string{}
}

func (s *Server) AddCategory(name, typ string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := category{ID: s.id(), Name: name, Type: typ}
	s.categories = append(s.categories, c)
	return strconv.Itoa(c.ID)
}

func (s *Server) AddTransaction(categoryID string, amount, description string, createdAt time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, _ := strconv.Atoi(categoryID)
	t := transaction{
		ID:          s.id(),
		Amount:      decimal.RequireFromString(amount),
		Description: description,
		Category:    cat,
		CreatedAt:   createdAt,
	}
	s.transactions = append(s.transactions, t)
	return strconv.Itoa(t.ID)
}

func (s *Server) SetBudget(month time.Time, amount string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := budget{ID: s.id(), Month: firstOfMonth(month), Amount: decimal.RequireFromString(amount)}
	s.budgets = append(s.budgets, b)
	return strconv.Itoa(b.ID)
}

// Budget returns the stored budget amount for month.
func (s *Server) Budget(month time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.budgets {
		if b.Month.Equal(firstOfMonth(month)) {
			return b.Amount.StringFixed(2), true
		}
	}
	return "", false
}

func (s *Server) CategoryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.categories)
}

func (s *Server) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

// Force makes method+path answer status with body until cleared with
// status 0. path is the literal request path, e.g. "/api/stats/".
func (s *Server) Force(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	if status == 0 {
		delete(s.forced, key)
		return
	}
	s.forced[key] = forcedResponse{status: status, body: body}
}

// SetEmptyProfile makes the profile endpoint return {}.
func (s *Server) SetEmptyProfile(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emptyProfile = v
}

// SetOmitAccess makes the token endpoint answer 200 without a token.
func (s *Server) SetOmitAccess(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitAccess = v
}

// SetClock replaces the backend clock used for created_at, token expiry
// and the current-month budget.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetTokenTTL sets the lifetime of access tokens issued from now on.
func (s *Server) SetTokenTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = d
}

// BeforeHandle installs fn to run before every request is handled. Tests
// use it to hold requests in flight. A nil fn removes the hook.
func (s *Server) BeforeHandle(fn func(r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeHandle = fn
}

// Calls returns how many times method+path was requested.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// TotalCalls returns the number of requests received.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// --- middleware ---

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		forced, ok := s.forced[r.Method+" "+r.URL.Path]
		hook := s.beforeHandle
		s.mu.Unlock()

		if hook != nil {
			hook(r)
		}
		if ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(forced.status)
			_, _ = w.Write([]byte(forced.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		_, ok := s.tokens[token]
		s.mu.Unlock()
		if token == "" || !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- handlers ---

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[in.Username]
	if !ok || u.password != in.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}
	if s.omitAccess {
		writeJSON(w, http.StatusOK, map[string]string{})
		return
	}
	access := s.issue(in.Username, s.now().Add(s.tokenTTL))
	writeJSON(w, http.StatusOK, map[string]string{"access": access, "refresh": "refresh-" + access[len(access)-8:]})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[in.Email]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "email - Email already exists"})
		return
	}
	if len(in.Password) < 8 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "password - Ensure this field has at least 8 characters."})
		return
	}
	id := s.id()
	s.users[in.Email] = &user{password: in.Password, id: id, firstName: in.FirstName, lastName: in.LastName}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id": id, "first_name": in.FirstName, "last_name": in.LastName, "email": in.Email,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	email := s.userFor(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emptyProfile {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	u := s.users[email]
	if u == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id": u.id, "username": email, "email": email, "first_name": u.firstName, "last_name": u.lastName,
	})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]category(nil), s.categories...)
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "next": nil, "previous": nil, "results": out})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in category
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "name - This field may not be blank."})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	in.ID = s.id()
	s.categories = append(s.categories, in)
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var in category
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.categories {
		if s.categories[i].ID == id {
			if in.Name != "" {
				s.categories[i].Name = in.Name
			}
			if in.Type != "" {
				s.categories[i].Type = in.Type
			}
			writeJSON(w, http.StatusOK, s.categories[i])
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.categories {
		if s.categories[i].ID == id {
			s.categories = append(s.categories[:i], s.categories[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []transaction
	for _, t := range s.transactions {
		if s.matches(t, q) {
			matched = append(matched, t)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	page := 1
	if v := q.Get("page"); v != "" {
		page, _ = strconv.Atoi(v)
	}
	start := (page - 1) * PageSize
	if page < 1 || (start >= len(matched) && page != 1) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Invalid page."})
		return
	}
	end := min(start+PageSize, len(matched))

	results := make([]map[string]any, 0, end-start)
	for _, t := range matched[start:end] {
		results = append(results, s.transactionJSON(t))
	}

	var next, previous any
	if end < len(matched) {
		next = fmt.Sprintf("%s/api/transactions/?page=%d", s.URL, page+1)
	}
	if page > 1 {
		previous = fmt.Sprintf("%s/api/transactions/?page=%d", s.URL, page-1)
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(matched), "next": next, "previous": previous, "results": results})
}

func (s *Server) matches(t transaction, q map[string][]string) bool {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	if v := get("search"); v != "" && !strings.Contains(strings.ToLower(t.Description), strings.ToLower(v)) {
		return false
	}
	if v := get("category"); v != "" && v != strconv.Itoa(t.Category) {
		return false
	}
	day := t.CreatedAt.Format("2006-01-02")
	if v := get("date_from"); v != "" && day < v {
		return false
	}
	if v := get("date_to"); v != "" && day > v {
		return false
	}
	if v := get("amount_min"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && t.Amount.LessThan(d) {
			return false
		}
	}
	if v := get("amount_max"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && t.Amount.GreaterThan(d) {
			return false
		}
	}
	return true
}

type transactionInput struct {
	Amount      string `json:"amount"`
	Category    int    `json:"category"`
	Description string `json:"description"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in transactionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "amount - A valid number is required."})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categoryByID(in.Category) == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "category - Invalid pk - object does not exist."})
		return
	}
	t := transaction{ID: s.id(), Amount: amount, Description: in.Description, Category: in.Category, CreatedAt: s.now()}
	s.transactions = append(s.transactions, t)
	writeJSON(w, http.StatusCreated, s.transactionJSON(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var in transactionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.transactions {
		if s.transactions[i].ID != id {
			continue
		}
		if d, err := decimal.NewFromString(in.Amount); err == nil {
			s.transactions[i].Amount = d
		}
		if in.Category != 0 {
			s.transactions[i].Category = in.Category
		}
		s.transactions[i].Description = in.Description
		writeJSON(w, http.StatusOK, s.transactionJSON(s.transactions[i]))
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.transactions {
		if s.transactions[i].ID == id {
			s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func (s *Server) handleCurrentBudget(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.budgetFor(s.now()); b != nil {
		writeJSON(w, http.StatusOK, budgetJSON(*b))
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "No budget found for the current month."})
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount string `json:"amount"`
		Month  string `json:"month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "amount - A valid number is required."})
		return
	}
	month, err := time.Parse("2006-01-02", in.Month)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "month - This field is required."})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budgetFor(month) != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "month - Budget already exists for this month."})
		return
	}
	b := budget{ID: s.id(), Month: firstOfMonth(month), Amount: amount}
	s.budgets = append(s.budgets, b)
	writeJSON(w, http.StatusCreated, budgetJSON(b))
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var in struct {
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "amount - A valid number is required."})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.budgets {
		if s.budgets[i].ID == id {
			s.budgets[i].Amount = amount
			writeJSON(w, http.StatusOK, budgetJSON(s.budgets[i]))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	month, err := time.Parse("2006-01", r.URL.Query().Get("month"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid month format. Use YYYY-MM."})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	income, expense := decimal.Zero, decimal.Zero
	byCategory := map[int]decimal.Decimal{}
	for _, t := range s.transactions {
		if t.CreatedAt.Year() != month.Year() || t.CreatedAt.Month() != month.Month() {
			continue
		}
		c := s.categoryByID(t.Category)
		if c != nil && c.Type == "income" {
			income = income.Add(t.Amount)
		} else {
			expense = expense.Add(t.Amount)
		}
		byCategory[t.Category] = byCategory[t.Category].Add(t.Amount)
	}

	incomeCats, expenseCats := []map[string]string{}, []map[string]string{}
	for _, c := range s.categories {
		amount, ok := byCategory[c.ID]
		if !ok {
			continue
		}
		entry := map[string]string{"category": c.Name, "amount": amount.StringFixed(2)}
		if c.Type == "income" {
			incomeCats = append(incomeCats, entry)
		} else {
			expenseCats = append(expenseCats, entry)
		}
	}

	var budgetAmount any
	if b := s.budgetFor(month); b != nil {
		budgetAmount = b.Amount.StringFixed(2)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"month":              month.Format("2006-01"),
		"budget":             budgetAmount,
		"total_income":       income.StringFixed(2),
		"total_expense":      expense.StringFixed(2),
		"income_categories":  incomeCats,
		"expense_categories": expenseCats,
	})
}

// --- helpers (callers hold s.mu) ---

func (s *Server) id() int {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Server) issue(email string, exp time.Time) string {
	claims := jwt.StandardClaims{
		Subject:   email,
		Id:        strconv.Itoa(s.id()),
		IssuedAt:  s.now().Unix(),
		ExpiresAt: exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		panic(fmt.Sprintf("fakeapi: sign token: %v", err))
	}
	s.tokens[token] = email
	return token
}

func (s *Server) userFor(r *http.Request) string {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[token]
}

func (s *Server) categoryByID(id int) *category {
	for i := range s.categories {
		if s.categories[i].ID == id {
			return &s.categories[i]
		}
	}
	return nil
}

func (s *Server) budgetFor(t time.Time) *budget {
	month := firstOfMonth(t)
	for i := range s.budgets {
		if s.budgets[i].Month.Equal(month) {
			return &s.budgets[i]
		}
	}
	return nil
}

func (s *Server) transactionJSON(t transaction) map[string]any {
	out := map[string]any{
		"id":          t.ID,
		"amount":      t.Amount.StringFixed(2),
		"description": t.Description,
		"category":    t.Category,
		"created_at":  t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if c := s.categoryByID(t.Category); c != nil {
		out["category_detail"] = map[string]any{"id": c.ID, "name": c.Name, "type": c.Type}
	}
	return out
}

func budgetJSON(b budget) map[string]any {
	return map[string]any{"id": b.ID, "month": b.Month.Format("2006-01-02"), "amount": b.Amount.StringFixed(2)}
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
