package aggregator_test

import (
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/session"
)

// stubBackend is an in-memory backend.Backend that counts calls. A call
// whose name has a gate blocks until the gate is closed.
type stubBackend struct {
	mu         sync.Mutex
	calls      map[string]int
	gates      map[string]chan struct{}
	started    chan string
	writeErr   error
	categories []core.Category
	pages      map[int]core.TransactionPage
	budget     *core.Budget
	stats      core.DashboardStats
}

func newStub() *stubBackend {
	return &stubBackend{
		calls:   map[string]int{},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 16),
		pages:   map[int]core.TransactionPage{},
	}
}

// hold makes the next calls to name block until the returned func runs.
func (s *stubBackend) hold(name string) (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gates[name] = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.gates, name)
			s.mu.Unlock()
			close(gate)
		})
	}
}

func (s *stubBackend) enter(name string) error {
	s.mu.Lock()
	s.calls[name]++
	gate := s.gates[name]
	err := s.writeErr
	s.mu.Unlock()
	if gate != nil {
		s.started <- name
		<-gate
	}
	switch name {
	case "CreateCategory", "UpdateCategory", "DeleteCategory",
		"CreateTransaction", "UpdateTransaction", "DeleteTransaction",
		"CreateBudget", "UpdateBudget":
		return err
	}
	return nil
}

func (s *stubBackend) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubBackend) failWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *stubBackend) ListCategories(context.Context) ([]core.Category, error) {
	if err := s.enter("ListCategories"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.categories...), nil
}

func (s *stubBackend) CreateCategory(_ context.Context, in core.CategoryInput) (core.Category, error) {
	if err := s.enter("CreateCategory"); err != nil {
		return core.Category{}, err
	}
	return core.Category{ID: "99", Name: in.Name, Type: in.Type}, nil
}

func (s *stubBackend) UpdateCategory(_ context.Context, id core.ID, in core.CategoryInput) (core.Category, error) {
	if err := s.enter("UpdateCategory"); err != nil {
		return core.Category{}, err
	}
	return core.Category{ID: id, Name: in.Name, Type: in.Type}, nil
}

func (s *stubBackend) DeleteCategory(context.Context, core.ID) error {
	return s.enter("DeleteCategory")
}

func (s *stubBackend) ListTransactions(_ context.Context, _ core.TransactionFilters, page int) (core.TransactionPage, error) {
	if err := s.enter("ListTransactions"); err != nil {
		return core.TransactionPage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[page], nil
}

func (s *stubBackend) CreateTransaction(_ context.Context, in core.TransactionWrite) (core.Transaction, error) {
	if err := s.enter("CreateTransaction"); err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{ID: "100", Amount: in.Amount, Description: in.Description, CategoryID: in.CategoryID}, nil
}

func (s *stubBackend) UpdateTransaction(_ context.Context, id core.ID, in core.TransactionWrite) (core.Transaction, error) {
	if err := s.enter("UpdateTransaction"); err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{ID: id, Amount: in.Amount, Description: in.Description, CategoryID: in.CategoryID}, nil
}

func (s *stubBackend) DeleteTransaction(context.Context, core.ID) error {
	return s.enter("DeleteTransaction")
}

func (s *stubBackend) CurrentBudget(context.Context) (*core.Budget, error) {
	if err := s.enter("CurrentBudget"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budget == nil {
		return nil, nil
	}
	b := *s.budget
	return &b, nil
}

func (s *stubBackend) CreateBudget(_ context.Context, month core.Month, amount decimal.Decimal) (core.Budget, error) {
	if err := s.enter("CreateBudget"); err != nil {
		return core.Budget{}, err
	}
	b := core.Budget{ID: "7", Month: month.FirstDay().Format(core.DateLayout), Amount: amount}
	s.mu.Lock()
	s.budget = &b
	s.mu.Unlock()
	return b, nil
}

func (s *stubBackend) UpdateBudget(_ context.Context, id core.ID, amount decimal.Decimal) (core.Budget, error) {
	if err := s.enter("UpdateBudget"); err != nil {
		return core.Budget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget.Amount = amount
	return *s.budget, nil
}

func (s *stubBackend) Stats(_ context.Context, month core.Month) (core.DashboardStats, error) {
	if err := s.enter("Stats"); err != nil {
		return core.DashboardStats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Month = month.String()
	return st, nil
}

// stubSession is a session source whose epoch the test moves by hand.
type stubSession struct {
	mu        sync.Mutex
	epoch     uint64
	listeners []func(session.Snapshot)
}

func (s *stubSession) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *stubSession) OnChange(fn func(session.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *stubSession) bump() {
	s.mu.Lock()
	s.epoch++
	snap := session.Snapshot{State: session.StateUnauthenticated, Epoch: s.epoch}
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}
