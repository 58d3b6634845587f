package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"bankist-ledger/internal/domain"
	"bankist-ledger/internal/errors"
)

type memState struct {
	accounts     map[int64]domain.Account
	movements    []domain.Movement
	nextAccount  int64
	nextMovement int64
}

func (st *memState) clone() *memState {
	cp := &memState{
		accounts:     make(map[int64]domain.Account, len(st.accounts)),
		movements:    append([]domain.Movement(nil), st.movements...),
		nextAccount:  st.nextAccount,
		nextMovement: st.nextMovement,
	}
	for id, a := range st.accounts {
		cp.accounts[id] = a
	}
	return cp
}

// memStore is an in-memory domain.Store. Transactions run one at a time on a
// private copy of the state that replaces the shared state on commit.
type memStore struct {
	mu    *sync.Mutex
	state *memState
	inTx  bool

	// failInsertAt makes the n-th movement insert of a transaction fail.
	failInsertAt int
	inserts      int
}

func newMemStore() *memStore {
	s := &memStore{
		mu:    &sync.Mutex{},
		state: &memState{accounts: map[int64]domain.Account{}},
	}
	return s
}

func (s *memStore) Accounts() domain.AccountRepository   { return memAccounts{s} }
func (s *memStore) Movements() domain.MovementRepository { return memMovements{s} }

func (s *memStore) WithTransaction(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memStore{
		mu:           s.mu,
		state:        s.state.clone(),
		inTx:         true,
		failInsertAt: s.failInsertAt,
	}
	if err := fn(tx); err != nil {
		return errors.AsAppError(err)
	}
	s.state = tx.state
	return nil
}

func (s *memStore) read(fn func(st *memState)) {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	fn(s.state)
}

func (s *memStore) movementsOf(accountID int64) []domain.Movement {
	var out []domain.Movement
	s.read(func(st *memState) {
		for _, m := range st.movements {
			if m.AccountID == accountID {
				out = append(out, m)
			}
		}
	})
	return out
}

type memAccounts struct{ s *memStore }

func (r memAccounts) CreateAccount(_ context.Context, account *domain.Account) error {
	var err error
	r.s.read(func(st *memState) {
		for _, a := range st.accounts {
			if a.Username == account.Username {
				err = errors.ErrDuplicateUsername
				return
			}
		}
		st.nextAccount++
		account.ID = st.nextAccount
		account.CreatedAt = time.Now()
		st.accounts[account.ID] = *account
	})
	return err
}

func (r memAccounts) GetAccount(_ context.Context, id int64) (*domain.Account, error) {
	var out *domain.Account
	r.s.read(func(st *memState) {
		if a, ok := st.accounts[id]; ok {
			out = &a
		}
	})
	if out == nil {
		return nil, errors.ErrAccountNotFound
	}
	return out, nil
}

func (r memAccounts) GetAccountByUsername(_ context.Context, username string) (*domain.Account, error) {
	var out *domain.Account
	r.s.read(func(st *memState) {
		for _, a := range st.accounts {
			if a.Username == username {
				a := a
				out = &a
				return
			}
		}
	})
	if out == nil {
		return nil, errors.ErrAccountNotFound
	}
	return out, nil
}

func (r memAccounts) LockAccounts(_ context.Context, ids ...int64) error {
	var err error
	r.s.read(func(st *memState) {
		for _, id := range ids {
			if _, ok := st.accounts[id]; !ok {
				err = errors.ErrAccountNotFound
				return
			}
		}
	})
	return err
}

func (r memAccounts) DeleteAccount(_ context.Context, id int64) error {
	var err error
	r.s.read(func(st *memState) {
		if _, ok := st.accounts[id]; !ok {
			err = errors.ErrAccountNotFound
			return
		}
		for _, m := range st.movements {
			if m.AccountID == id {
				err = errors.NewStorageFailure("account still has movements", nil)
				return
			}
		}
		delete(st.accounts, id)
	})
	return err
}

type memMovements struct{ s *memStore }

func (r memMovements) InsertMovements(_ context.Context, movements ...*domain.Movement) error {
	var err error
	r.s.read(func(st *memState) {
		for _, m := range movements {
			r.s.inserts++
			if r.s.failInsertAt > 0 && r.s.inserts == r.s.failInsertAt {
				err = errors.NewStorageFailure("injected insert failure", nil)
				return
			}
			if !m.Consistent() {
				err = errors.ErrInvalidAmount
				return
			}
			if _, ok := st.accounts[m.AccountID]; !ok {
				err = errors.ErrAccountNotFound
				return
			}
			st.nextMovement++
			m.ID = st.nextMovement
			m.CreatedAt = time.Now()
			st.movements = append(st.movements, *m)
		}
	})
	return err
}

func (r memMovements) ListMovements(_ context.Context, accountID int64) ([]domain.Movement, error) {
	out := r.s.movementsOf(accountID)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if out == nil {
		out = []domain.Movement{}
	}
	return out, nil
}

func (r memMovements) DeleteMovements(_ context.Context, accountID int64) (int64, error) {
	var deleted int64
	r.s.read(func(st *memState) {
		kept := st.movements[:0:0]
		for _, m := range st.movements {
			if m.AccountID == accountID {
				deleted++
				continue
			}
			kept = append(kept, m)
		}
		st.movements = kept
	})
	return deleted, nil
}
