package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
	"fintrack/internal/notify"
	"fintrack/internal/session"
)

// --- session ---

type sessionResponse struct {
	State         string        `json:"state"`
	Authenticated bool          `json:"authenticated"`
	Loading       bool          `json:"loading"`
	User          *core.Profile `json:"user"`
	DisplayName   string        `json:"display_name,omitempty"`
	Error         *errorBody    `json:"error,omitempty"`
}

func newSessionResponse(snap session.Snapshot) sessionResponse {
	resp := sessionResponse{
		State:         snap.State.String(),
		Authenticated: snap.IsAuthenticated,
		Loading:       snap.IsLoading,
		User:          snap.User,
	}
	if snap.User != nil {
		resp.DisplayName = snap.User.DisplayName()
	}
	if snap.Err != nil {
		_, body := errorResponse(snap.Err)
		resp.Error = &body
	}
	return resp
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionResponse(s.session.Snapshot()))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, w, &in); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.session.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(snap))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.session.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}
	if err := decode(r, w, &in); err != nil {
		writeError(w, r, err)
		return
	}
	err := s.session.Register(r.Context(), core.RegisterInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Account created. Please sign in."})
}

// --- notifications and refresh ---

// handleNotifications returns and clears the pending notifications.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	out := s.notifications.Drain()
	if out == nil {
		out = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.agg.Refresh(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- categories ---

type categoryRequest struct {
	Name string               `json:"name"`
	Type core.TransactionType `json:"type"`
}

func (c categoryRequest) input() core.CategoryInput {
	return core.CategoryInput{Name: c.Name, Type: c.Type}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.agg.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryRequest
	if err := decode(r, w, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.agg.AddCategory(r.Context(), in.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryRequest
	if err := decode(r, w, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.agg.EditCategory(r.Context(), pathID(r), in.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.agg.DeleteCategory(r.Context(), pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- transactions ---

type transactionRequest struct {
	Amount      flexString `json:"amount"`
	CategoryID  core.ID    `json:"category_id"`
	Description string     `json:"description"`
}

func (t transactionRequest) input() core.TransactionInput {
	return core.TransactionInput{
		Amount:      t.Amount.String(),
		CategoryID:  t.CategoryID,
		Description: t.Description,
	}
}

type filtersRequest struct {
	Search    string     `json:"search"`
	Category  core.ID    `json:"category"`
	DateFrom  string     `json:"date_from"`
	DateTo    string     `json:"date_to"`
	AmountMin flexString `json:"amount_min"`
	AmountMax flexString `json:"amount_max"`
}

func (f filtersRequest) filters() (core.TransactionFilters, error) {
	out := core.TransactionFilters{
		Search:    f.Search,
		Category:  f.Category.String(),
		AmountMin: f.AmountMin.String(),
		AmountMax: f.AmountMax.String(),
	}
	if v := strings.TrimSpace(f.DateFrom); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return out, core.NewValidationError("date_from", "date must be YYYY-MM-DD")
		}
		out.DateFrom = d
	}
	if v := strings.TrimSpace(f.DateTo); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return out, core.NewValidationError("date_to", "date must be YYYY-MM-DD")
		}
		out.DateTo = d
	}
	return out, nil
}

// handleListTransactions loads the page of the current selection and
// returns the view. ?page=N moves the selection first.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, core.NewValidationError("page", "page must be a number"))
			return
		}
		s.agg.GoToPage(page)
	}
	s.writeView(w, r)
}

func (s *Server) handleApplyFilters(w http.ResponseWriter, r *http.Request) {
	var in filtersRequest
	if err := decode(r, w, &in); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := in.filters()
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.agg.ApplyFilters(f)
	s.writeView(w, r)
}

func (s *Server) handleNextPage(w http.ResponseWriter, r *http.Request) {
	s.agg.NextPage()
	s.writeView(w, r)
}

func (s *Server) handlePreviousPage(w http.ResponseWriter, r *http.Request) {
	s.agg.PreviousPage()
	s.writeView(w, r)
}

func (s *Server) writeView(w http.ResponseWriter, r *http.Request) {
	if _, err := s.agg.CurrentTransactions(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.agg.View())
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in transactionRequest
	if err := decode(r, w, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.agg.AddTransaction(r.Context(), in.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var in transactionRequest
	if err := decode(r, w, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.agg.EditTransaction(r.Context(), pathID(r), in.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.agg.DeleteTransaction(r.Context(), pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- budget and dashboards ---

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := s.agg.CurrentBudget(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*core.Budget{"budget": b})
}

func (s *Server) handleSaveBudget(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount flexString `json:"amount"`
	}
	if err := decode(r, w, &in); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.agg.SaveBudget(r.Context(), in.Amount.String())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]core.Budget{"budget": b})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.agg.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type dashboardResponse struct {
	Month string `json:"month"`
	core.DashboardView
}

// handleDashboard returns the stats of the selected month. ?month=YYYY-MM
// selects a month first.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, err := core.ParseMonth(v)
		if err != nil {
			writeError(w, r, core.NewValidationError("month", "month must be YYYY-MM"))
			return
		}
		s.agg.SelectMonth(m)
	}
	view, err := s.agg.Dashboard(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{Month: s.agg.SelectedMonth().String(), DashboardView: view})
}

func pathID(r *http.Request) core.ID {
	return core.ID(strings.TrimSpace(chi.URLParam(r, "id")))
}
