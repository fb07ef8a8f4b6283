package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ledger-api/internal/core/domain"
	"ledger-api/internal/core/ports"
	"ledger-api/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Business Repo ---

type inMemoryBusinessRepo struct {
	mu         sync.RWMutex
	businesses map[uuid.UUID]*domain.Business
}

func newInMemoryBusinessRepo() *inMemoryBusinessRepo {
	return &inMemoryBusinessRepo{businesses: make(map[uuid.UUID]*domain.Business)}
}

func (r *inMemoryBusinessRepo) Create(ctx context.Context, b *domain.Business) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.businesses {
		if existing.Email == b.Email {
			return fmt.Errorf("email already exists")
		}
	}
	r.businesses[b.ID] = b
	return nil
}

func (r *inMemoryBusinessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.businesses[id]
	if !ok {
		return nil, nil
	}
	return b, nil
}

func (r *inMemoryBusinessRepo) GetByEmail(ctx context.Context, email string) (*domain.Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.businesses {
		if b.Email == email {
			return b, nil
		}
	}
	return nil, nil
}

// --- In-Memory API Key Repo ---

type inMemoryAPIKeyRepo struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*domain.APIKey
}

func newInMemoryAPIKeyRepo() *inMemoryAPIKeyRepo {
	return &inMemoryAPIKeyRepo{keys: make(map[uuid.UUID]*domain.APIKey)}
}

func (r *inMemoryAPIKeyRepo) Create(ctx context.Context, k *domain.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[k.ID] = k
	return nil
}

func (r *inMemoryAPIKeyRepo) GetActiveByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys {
		if k.KeyHash == keyHash && k.IsActive {
			return k, nil
		}
	}
	return nil, nil
}

// --- In-Memory Account Repo ---

// inMemoryAccountRepo emulates row locking: GetByIDForUpdate acquires a
// per-account mutex that is held until the owning memTx commits or rolls
// back, matching SELECT ... FOR UPDATE semantics closely enough for the
// concurrency tests.
type inMemoryAccountRepo struct {
	mu         sync.RWMutex
	accounts   map[uuid.UUID]*domain.Account
	rowLocks   map[uuid.UUID]*sync.Mutex
	businesses *inMemoryBusinessRepo
}

func newInMemoryAccountRepo(businesses *inMemoryBusinessRepo) *inMemoryAccountRepo {
	return &inMemoryAccountRepo{
		accounts:   make(map[uuid.UUID]*domain.Account),
		rowLocks:   make(map[uuid.UUID]*sync.Mutex),
		businesses: businesses,
	}
}

func (r *inMemoryAccountRepo) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *a
	r.accounts[a.ID] = &copied
	return nil
}

func (r *inMemoryAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (r *inMemoryAccountRepo) rowLock(id uuid.UUID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.rowLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.rowLocks[id] = lock
	}
	return lock
}

func (r *inMemoryAccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	if mtx, ok := tx.(*memTx); ok {
		lock := r.rowLock(id)
		lock.Lock()
		mtx.onClose(lock.Unlock)
	}
	return r.GetByID(ctx, id)
}

func (r *inMemoryAccountRepo) AdjustBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return 0, fmt.Errorf("account not found")
	}
	if a.Balance+delta < 0 {
		return 0, fmt.Errorf("balance check constraint violated")
	}
	a.Balance += delta
	return a.Balance, nil
}

func (r *inMemoryAccountRepo) List(ctx context.Context, params ports.AccountListParams) ([]ports.AccountListing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []ports.AccountListing
	for _, a := range r.accounts {
		if params.Currency != nil && a.Currency != *params.Currency {
			continue
		}
		if params.BusinessID != nil && a.BusinessID != *params.BusinessID {
			continue
		}
		listing := ports.AccountListing{Account: *a}
		if b, _ := r.businesses.GetByID(ctx, a.BusinessID); b != nil {
			name := b.Name
			listing.BusinessName = &name
			listing.BusinessEmail = b.Email
		}
		result = append(result, listing)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Account.CreatedAt.Before(result[j].Account.CreatedAt)
	})
	return result, nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{transactions: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions[t.ID] = t
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	return t, nil
}

func (r *inMemoryTransactionRepo) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transactions)
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.IdempotencyKey
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{rows: make(map[string]*domain.IdempotencyKey)}
}

func idemMapKey(businessID uuid.UUID, key string) string {
	return businessID.String() + "|" + key
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, businessID uuid.UUID, key string) (*domain.IdempotencyKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[idemMapKey(businessID, key)]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (r *inMemoryIdempotencyRepo) Reserve(ctx context.Context, businessID uuid.UUID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mapKey := idemMapKey(businessID, key)
	row, ok := r.rows[mapKey]
	if ok {
		switch row.Status {
		case domain.IdempotencyStatusPending:
			return apperror.ErrOperationInProgress()
		case domain.IdempotencyStatusSuccess:
			return apperror.ErrOperationAlreadyCompleted()
		}
	}
	r.rows[mapKey] = &domain.IdempotencyKey{
		BusinessID: businessID,
		Key:        key,
		Status:     domain.IdempotencyStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	return nil
}

func (r *inMemoryIdempotencyRepo) MarkSucceeded(ctx context.Context, tx pgx.Tx, businessID uuid.UUID, key string, responseBody []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[idemMapKey(businessID, key)]
	if !ok {
		return fmt.Errorf("idempotency key not reserved")
	}
	row.Status = domain.IdempotencyStatusSuccess
	row.ResponseBody = responseBody
	return nil
}

func (r *inMemoryIdempotencyRepo) MarkFailed(ctx context.Context, businessID uuid.UUID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[idemMapKey(businessID, key)]
	if !ok {
		return fmt.Errorf("idempotency key not reserved")
	}
	row.Status = domain.IdempotencyStatusFailed
	return nil
}

// --- In-Memory Webhook Repo ---

type inMemoryWebhookRepo struct {
	mu        sync.Mutex
	endpoints map[uuid.UUID]*domain.WebhookEndpoint
	events    map[uuid.UUID]*domain.WebhookEvent
}

func newInMemoryWebhookRepo() *inMemoryWebhookRepo {
	return &inMemoryWebhookRepo{
		endpoints: make(map[uuid.UUID]*domain.WebhookEndpoint),
		events:    make(map[uuid.UUID]*domain.WebhookEvent),
	}
}

func (r *inMemoryWebhookRepo) CreateEndpoint(ctx context.Context, e *domain.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[e.ID] = e
	return nil
}

func (r *inMemoryWebhookRepo) ListEndpoints(ctx context.Context, businessID uuid.UUID) ([]domain.WebhookEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.WebhookEndpoint
	for _, e := range r.endpoints {
		if e.BusinessID == businessID {
			result = append(result, *e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *inMemoryWebhookRepo) ListActiveEndpoints(ctx context.Context, tx pgx.Tx, businessID uuid.UUID) ([]domain.WebhookEndpoint, error) {
	all, err := r.ListEndpoints(ctx, businessID)
	if err != nil {
		return nil, err
	}
	var active []domain.WebhookEndpoint
	for _, e := range all {
		if e.IsActive {
			active = append(active, e)
		}
	}
	return active, nil
}

func (r *inMemoryWebhookRepo) CreateEvent(ctx context.Context, tx pgx.Tx, event *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *event
	r.events[event.ID] = &copied
	return nil
}

func (r *inMemoryWebhookRepo) DequeueDue(ctx context.Context, tx pgx.Tx, baseBackoff time.Duration, limit int) ([]ports.DueWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()

	var pending []*domain.WebhookEvent
	for _, e := range r.events {
		if e.Status != domain.WebhookEventStatusPending {
			continue
		}
		if e.LastAttemptAt != nil {
			wait := time.Duration(e.Attempts+1) * baseBackoff
			if now.Before(e.LastAttemptAt.Add(wait)) {
				continue
			}
		}
		pending = append(pending, e)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })

	var due []ports.DueWebhookEvent
	for _, e := range pending {
		if len(due) >= limit {
			break
		}
		ep, ok := r.endpoints[e.EndpointID]
		if !ok || !ep.IsActive {
			continue
		}
		due = append(due, ports.DueWebhookEvent{
			ID:        e.ID,
			EventType: e.EventType,
			Payload:   e.Payload,
			Attempts:  e.Attempts,
			URL:       ep.URL,
			Secret:    ep.Secret,
		})
	}
	return due, nil
}

func (r *inMemoryWebhookRepo) RecordAttempt(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, status domain.WebhookEventStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok {
		return fmt.Errorf("webhook event not found")
	}
	now := time.Now()
	e.Status = status
	e.Attempts++
	e.LastAttemptAt = &now
	return nil
}

func (r *inMemoryWebhookRepo) eventStatus(id uuid.UUID) (domain.WebhookEventStatus, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return "", 0
	}
	return e.Status, e.Attempts
}

func (r *inMemoryWebhookRepo) eventIDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.events))
	for id := range r.events {
		ids = append(ids, id)
	}
	return ids
}

// --- In-Memory Transactor ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &memTx{}, nil
}

// memTx is a pgx.Tx stand-in that tracks row locks taken during the
// transaction and releases them exactly once on Commit or Rollback.
type memTx struct {
	mu        sync.Mutex
	unlockers []func()
	closed    bool
}

func (t *memTx) onClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unlockers = append(t.unlockers, fn)
}

func (t *memTx) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for i := len(t.unlockers) - 1; i >= 0; i-- {
		t.unlockers[i]()
	}
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Commit(ctx context.Context) error          { t.release(); return nil }
func (t *memTx) Rollback(ctx context.Context) error        { t.release(); return nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }
