// Package memstore is an in-memory repository.Store. Transactions are
// serialized and roll back by restoring a snapshot, which is enough to
// exercise the services' locking contracts without a database.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"github.com/prperemyshlev/auth-session-service/internal/repository"
)

type state struct {
	nextAccountID int64
	nextRefreshID int64
	accounts      map[int64]*domain.Account
	verifications map[int64]domain.OneTimeToken
	resets        map[int64]domain.OneTimeToken
	refresh       map[int64]domain.RefreshToken
}

func newState() *state {
	return &state{
		accounts:      make(map[int64]*domain.Account),
		verifications: make(map[int64]domain.OneTimeToken),
		resets:        make(map[int64]domain.OneTimeToken),
		refresh:       make(map[int64]domain.RefreshToken),
	}
}

func (s *state) clone() *state {
	c := &state{
		nextAccountID: s.nextAccountID,
		nextRefreshID: s.nextRefreshID,
		accounts:      make(map[int64]*domain.Account, len(s.accounts)),
		verifications: make(map[int64]domain.OneTimeToken, len(s.verifications)),
		resets:        make(map[int64]domain.OneTimeToken, len(s.resets)),
		refresh:       make(map[int64]domain.RefreshToken, len(s.refresh)),
	}
	for id, a := range s.accounts {
		c.accounts[id] = cloneAccount(a)
	}
	for id, t := range s.verifications {
		c.verifications[id] = t
	}
	for id, t := range s.resets {
		c.resets[id] = t
	}
	for id, t := range s.refresh {
		c.refresh[id] = t
	}
	return c
}

// Store implements repository.Store in memory
type Store struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	data  *state
	repos *repository.Repositories
}

// New creates an empty store
func New() *Store {
	s := &Store{data: newState()}
	s.repos = &repository.Repositories{
		Accounts:       &accounts{s: s},
		Verifications:  &oneTimeTokens{s: s, table: func(st *state) map[int64]domain.OneTimeToken { return st.verifications }},
		PasswordResets: &oneTimeTokens{s: s, table: func(st *state) map[int64]domain.OneTimeToken { return st.resets }},
		RefreshTokens:  &refreshTokens{s: s},
	}
	return s
}

func (s *Store) Repos() *repository.Repositories {
	return s.repos
}

// WithinTx runs fn exclusively with respect to other transactions and
// restores the previous state when fn fails or panics
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *repository.Repositories) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	return fn(ctx, s.repos)
}

func (s *Store) restore(snapshot *state) {
	s.mu.Lock()
	s.data = snapshot
	s.mu.Unlock()
}

func (s *Store) view(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// RefreshTokenCount returns the number of stored refresh records of an account
func (s *Store) RefreshTokenCount(publicID string) int {
	n := 0
	_ = s.view(func(st *state) error {
		for _, t := range st.refresh {
			if t.AccountPublicID == publicID {
				n++
			}
		}
		return nil
	})
	return n
}

// RefreshTokensOf returns copies of the account's refresh records
func (s *Store) RefreshTokensOf(publicID string) []domain.RefreshToken {
	var out []domain.RefreshToken
	_ = s.view(func(st *state) error {
		for _, t := range st.refresh {
			if t.AccountPublicID == publicID {
				out = append(out, t)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.RefreshToken) int { return int(a.ID - b.ID) })
	return out
}

// HasVerification reports whether the account has a pending verification token
func (s *Store) HasVerification(accountID int64) bool {
	var ok bool
	_ = s.view(func(st *state) error {
		_, ok = st.verifications[accountID]
		return nil
	})
	return ok
}

// HasPasswordReset reports whether the account has a pending reset token
func (s *Store) HasPasswordReset(accountID int64) bool {
	var ok bool
	_ = s.view(func(st *state) error {
		_, ok = st.resets[accountID]
		return nil
	})
	return ok
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	c.Providers = slices.Clone(a.Providers)
	c.PasswordHash = clonePtr(a.PasswordHash)
	c.EmailVerified = clonePtr(a.EmailVerified)
	c.GitHubID = clonePtr(a.GitHubID)
	c.GoogleID = clonePtr(a.GoogleID)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type accounts struct {
	s *Store
}

func (r *accounts) find(match func(a *domain.Account) bool, what string) (*domain.Account, error) {
	var found *domain.Account
	err := r.s.view(func(st *state) error {
		for _, a := range st.accounts {
			if match(a) {
				found = cloneAccount(a)
				return nil
			}
		}
		return fmt.Errorf("account with %s not found: %w", what, repository.ErrNotFound)
	})
	return found, err
}

func (r *accounts) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Email == email }, "email "+email)
}

func (r *accounts) FindByPublicID(_ context.Context, publicID string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.PublicID == publicID }, "public id "+publicID)
}

func (r *accounts) FindByID(_ context.Context, id int64) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.ID == id }, fmt.Sprintf("id %d", id))
}

func (r *accounts) FindByProviderID(_ context.Context, provider domain.Provider, externalID string) (*domain.Account, error) {
	if !provider.Federated() {
		return nil, fmt.Errorf("provider %q has no external id", provider)
	}
	return r.find(func(a *domain.Account) bool {
		id := a.ExternalID(provider)
		return id != nil && *id == externalID
	}, string(provider)+" id "+externalID)
}

func (r *accounts) Insert(_ context.Context, account *domain.Account) error {
	return r.s.view(func(st *state) error {
		if err := checkAccount(st, account); err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}

		st.nextAccountID++
		now := time.Now()
		account.ID = st.nextAccountID
		if account.PublicID == "" {
			account.PublicID = uuid.NewString()
		}
		if account.Role == "" {
			account.Role = domain.RoleUser
		}
		account.CreatedAt = now
		account.UpdatedAt = now
		st.accounts[account.ID] = cloneAccount(account)
		return nil
	})
}

func (r *accounts) UpdateCredential(_ context.Context, id int64, upd domain.CredentialUpdate) error {
	if upd.Empty() {
		return nil
	}

	return r.s.view(func(st *state) error {
		current, ok := st.accounts[id]
		if !ok {
			return fmt.Errorf("account with id %d not found: %w", id, repository.ErrNotFound)
		}

		next := cloneAccount(current)
		switch {
		case upd.ClearPasswordHash:
			next.PasswordHash = nil
		case upd.PasswordHash != nil:
			next.PasswordHash = clonePtr(upd.PasswordHash)
		}
		switch {
		case upd.ClearEmailVerified:
			next.EmailVerified = nil
		case upd.EmailVerified != nil:
			next.EmailVerified = clonePtr(upd.EmailVerified)
		}
		for _, p := range upd.ProvidersAdd {
			next.Providers = next.Providers.Add(p)
		}
		for _, p := range upd.ProvidersRemove {
			next.Providers = next.Providers.Remove(p)
		}
		if ext := upd.ProviderExternalID; ext != nil {
			switch ext.Provider {
			case domain.ProviderGitHub:
				next.GitHubID = &ext.ID
			case domain.ProviderGoogle:
				next.GoogleID = &ext.ID
			default:
				return fmt.Errorf("provider %q has no external id", ext.Provider)
			}
		}

		if err := checkAccount(st, next); err != nil {
			return fmt.Errorf("failed to update account credential: %w", err)
		}

		next.UpdatedAt = time.Now()
		st.accounts[id] = next
		return nil
	})
}

func (r *accounts) Delete(_ context.Context, id int64) error {
	return r.s.view(func(st *state) error {
		account, ok := st.accounts[id]
		if !ok {
			return fmt.Errorf("account with id %d not found: %w", id, repository.ErrNotFound)
		}
		delete(st.accounts, id)
		delete(st.verifications, id)
		delete(st.resets, id)
		for tid, t := range st.refresh {
			if t.AccountPublicID == account.PublicID {
				delete(st.refresh, tid)
			}
		}
		return nil
	})
}

// checkAccount enforces the constraints the postgres schema declares
func checkAccount(st *state, a *domain.Account) error {
	if a.Providers.Has(domain.ProviderLocal) && a.PasswordHash == nil {
		return repository.ErrCredentialInvariant
	}
	for _, other := range st.accounts {
		if other.ID == a.ID {
			continue
		}
		if other.Email == a.Email {
			return repository.ErrDuplicateEmail
		}
		if a.GitHubID != nil && other.GitHubID != nil && *a.GitHubID == *other.GitHubID {
			return repository.ErrDuplicateProviderID
		}
		if a.GoogleID != nil && other.GoogleID != nil && *a.GoogleID == *other.GoogleID {
			return repository.ErrDuplicateProviderID
		}
	}
	return nil
}

type oneTimeTokens struct {
	s     *Store
	table func(st *state) map[int64]domain.OneTimeToken
}

func (r *oneTimeTokens) Upsert(_ context.Context, token *domain.OneTimeToken) error {
	return r.s.view(func(st *state) error {
		rows := r.table(st)
		for id, t := range rows {
			if id != token.AccountID && t.TokenHash == token.TokenHash {
				return fmt.Errorf("failed to upsert token: %w", repository.ErrDuplicateToken)
			}
		}
		rows[token.AccountID] = *token
		return nil
	})
}

func (r *oneTimeTokens) LockByHash(_ context.Context, tokenHash string) (*domain.OneTimeToken, error) {
	var found *domain.OneTimeToken
	err := r.s.view(func(st *state) error {
		for _, t := range r.table(st) {
			if t.TokenHash == tokenHash {
				found = &t
				return nil
			}
		}
		return fmt.Errorf("token not found: %w", repository.ErrNotFound)
	})
	return found, err
}

func (r *oneTimeTokens) DeleteByAccount(_ context.Context, accountID int64) error {
	return r.s.view(func(st *state) error {
		delete(r.table(st), accountID)
		return nil
	})
}

type refreshTokens struct {
	s *Store
}

func (r *refreshTokens) Insert(_ context.Context, token *domain.RefreshToken) error {
	return r.s.view(func(st *state) error {
		for _, t := range st.refresh {
			if t.LookupHash == token.LookupHash {
				return fmt.Errorf("refresh token with lookup hash already exists: %w", repository.ErrDuplicateToken)
			}
		}
		st.nextRefreshID++
		token.ID = st.nextRefreshID
		st.refresh[token.ID] = *token
		return nil
	})
}

func (r *refreshTokens) FindByLookupHash(_ context.Context, lookupHash string) (*domain.RefreshToken, error) {
	var found *domain.RefreshToken
	err := r.s.view(func(st *state) error {
		for _, t := range st.refresh {
			if t.LookupHash == lookupHash {
				found = &t
				return nil
			}
		}
		return fmt.Errorf("refresh token not found: %w", repository.ErrNotFound)
	})
	return found, err
}

func (r *refreshTokens) LockByLookupHash(ctx context.Context, lookupHash string) (*domain.RefreshToken, error) {
	return r.FindByLookupHash(ctx, lookupHash)
}

func (r *refreshTokens) UpdateHashes(_ context.Context, id int64, verifyHash, lookupHash string) error {
	return r.s.view(func(st *state) error {
		t, ok := st.refresh[id]
		if !ok {
			return fmt.Errorf("refresh token with id %d not found: %w", id, repository.ErrNotFound)
		}
		t.VerifyHash = verifyHash
		t.LookupHash = lookupHash
		st.refresh[id] = t
		return nil
	})
}

func (r *refreshTokens) Delete(_ context.Context, id int64) error {
	return r.s.view(func(st *state) error {
		if _, ok := st.refresh[id]; !ok {
			return fmt.Errorf("refresh token with id %d not found: %w", id, repository.ErrNotFound)
		}
		delete(st.refresh, id)
		return nil
	})
}

func (r *refreshTokens) RevokeAllForAccount(_ context.Context, accountPublicID string) (int64, error) {
	var n int64
	err := r.s.view(func(st *state) error {
		for id, t := range st.refresh {
			if t.AccountPublicID == accountPublicID && !t.Revoked {
				t.Revoked = true
				st.refresh[id] = t
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *refreshTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.s.view(func(st *state) error {
		for id, t := range st.refresh {
			if !t.ExpiresAt.After(now) || t.Revoked {
				delete(st.refresh, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
