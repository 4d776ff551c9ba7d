package links

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kueskilink/kueskilink/internal/shared"
)

// ============================================================================
// MOCK STORE
// ============================================================================

type mockStore struct {
	transactions map[uuid.UUID]*Transaction
	lineItems    map[uuid.UUID][]LineItemDetail
	companies    map[int64]*CompanySummary
	products     map[int64]string
	nextProduct  int64

	derivedWrites int
	txError       error
	writeBackErr  error
	// forces the conditional update to report zero rows, simulating a
	// concurrent writer landing first
	raceOnUpdate    bool
	raceOnWriteBack bool
}

func newMockStore() *mockStore {
	return &mockStore{
		transactions: make(map[uuid.UUID]*Transaction),
		lineItems:    make(map[uuid.UUID][]LineItemDetail),
		companies:    make(map[int64]*CompanySummary),
		products:     make(map[int64]string),
		nextProduct:  1,
	}
}

func (m *mockStore) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	tx, ok := m.transactions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *mockStore) List(ctx context.Context, req ListRequest) ([]Transaction, int, error) {
	var out []Transaction
	for _, tx := range m.transactions {
		if tx.CompanyID != req.CompanyID {
			continue
		}
		if len(req.Statuses) > 0 {
			match := false
			for _, s := range req.Statuses {
				if tx.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *tx)
	}
	return out, len(out), nil
}

func (m *mockStore) LineItems(ctx context.Context, txID uuid.UUID) ([]LineItemDetail, error) {
	return m.lineItems[txID], nil
}

func (m *mockStore) Company(ctx context.Context, companyID int64) (*CompanySummary, error) {
	c, ok := m.companies[companyID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

func (m *mockStore) TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (bool, error) {
	if m.raceOnUpdate {
		return false, nil
	}
	tx, ok := m.transactions[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if tx.Status == f {
			tx.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) RecordCashIntent(ctx context.Context, id uuid.UUID, info CustomerInfo) (bool, error) {
	if m.raceOnUpdate {
		return false, nil
	}
	tx, ok := m.transactions[id]
	if !ok || tx.Status != StatusPending {
		return false, nil
	}
	tx.Status = StatusPendingCash
	tx.CustomerName = &info.Name
	tx.CustomerEmail = &info.Email
	tx.CustomerPhone = &info.Phone
	tx.CustomerRequest = info.Request
	return true, nil
}

func (m *mockStore) MarkProviderHandoff(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tx, ok := m.transactions[id]
	if !ok || tx.Status != StatusPending || tx.KueskiCreatedAt != nil {
		return false, nil
	}
	tx.KueskiCreatedAt = &at
	return true, nil
}

func (m *mockStore) WriteDerivedStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	if m.writeBackErr != nil {
		return false, m.writeBackErr
	}
	if m.raceOnWriteBack {
		return false, nil
	}
	tx, ok := m.transactions[id]
	if !ok || tx.Status != from {
		return false, nil
	}
	tx.Status = to
	m.derivedWrites++
	return true, nil
}

func (m *mockStore) ListLapsed(ctx context.Context, now time.Time, limit int) ([]Transaction, error) {
	var out []Transaction
	for _, tx := range m.transactions {
		if tx.Status.Terminal() {
			continue
		}
		if Derive(tx, now) != tx.Status {
			out = append(out, *tx)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, &mockTxRepo{store: m})
}

type mockTxRepo struct {
	store *mockStore
}

func (m *mockTxRepo) InsertProduct(ctx context.Context, companyID int64, name, description string, price float64, productType string) (int64, error) {
	id := m.store.nextProduct
	m.store.nextProduct++
	m.store.products[id] = name
	return id, nil
}

func (m *mockTxRepo) InsertTransaction(ctx context.Context, tx Transaction) error {
	cp := tx
	m.store.transactions[tx.ID] = &cp
	return nil
}

func (m *mockTxRepo) InsertLineItems(ctx context.Context, items []LineItem) error {
	for _, item := range items {
		m.store.lineItems[item.TransactionID] = append(m.store.lineItems[item.TransactionID], LineItemDetail{LineItem: item})
	}
	return nil
}

type mockNotifier struct {
	enqueued []string
	err      error
}

func (m *mockNotifier) EnqueueLinkNotify(ctx context.Context, id uuid.UUID, link string) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, link)
	return nil
}

type mockCache struct {
	bumps int
	err   error
}

func (m *mockCache) Bump(ctx context.Context) error {
	if m.err != nil {
		return m.err
	}
	m.bumps++
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(store *mockStore) (*Service, *mockNotifier, *mockCache) {
	notifier := &mockNotifier{}
	cache := &mockCache{}
	svc := NewService(ServiceConfig{
		Store:    store,
		BaseURL:  "https://pay.example.com",
		Cache:    cache,
		Notifier: notifier,
		Clock:    func() time.Time { return testNow },
	})
	return svc, notifier, cache
}

func seedTransaction(store *mockStore, status Status) *Transaction {
	tx := &Transaction{
		ID:             uuid.New(),
		CompanyID:      1,
		UserID:         10,
		Concept:        "Consulta",
		Amount:         1500,
		Status:         status,
		PaymentLink:    "https://pay.example.com/client-pay/x",
		ExpirationDate: testNow.Add(LinkTTL),
	}
	store.transactions[tx.ID] = tx
	return tx
}

var testActor = shared.Actor{UserID: 10, CompanyID: 1}

// ============================================================================
// CREATE
// ============================================================================

func TestCreatePaymentLink(t *testing.T) {
	store := newMockStore()
	svc, notifier, cache := newTestService(store)

	productID := int64(42)
	result, err := svc.CreatePaymentLink(context.Background(), testActor, CreateLinkRequest{
		Concept: "Pedido semanal",
		Items: []CreateLineReq{
			{Name: "Café", Quantity: 2, UnitPrice: 150.50},
			{ProductID: &productID, Name: "Pan dulce", Quantity: 3, UnitPrice: 25},
		},
	})
	require.NoError(t, err)

	tx := store.transactions[result.TransactionID]
	require.NotNil(t, tx)
	assert.Equal(t, StatusPending, tx.Status)
	assert.InDelta(t, 2*150.50+3*25, tx.Amount, 1e-9)
	assert.Equal(t, testNow.Add(LinkTTL), tx.ExpirationDate)
	assert.Equal(t, "https://pay.example.com/client-pay/"+result.TransactionID.String(), result.PaymentLink)

	items := store.lineItems[result.TransactionID]
	require.Len(t, items, 2)
	// The ad hoc item got a catalog product; the existing one kept its id.
	require.NotNil(t, items[0].ProductID)
	assert.Equal(t, "Café", store.products[*items[0].ProductID])
	require.NotNil(t, items[1].ProductID)
	assert.Equal(t, productID, *items[1].ProductID)

	assert.Equal(t, []string{result.PaymentLink}, notifier.enqueued)
	assert.Equal(t, 1, cache.bumps)
}

func TestCreatePaymentLinkValidation(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateLinkRequest
	}{
		{"no items", CreateLinkRequest{Concept: "x"}},
		{"empty concept", CreateLinkRequest{Items: []CreateLineReq{{Name: "Café", Quantity: 1, UnitPrice: 10}}}},
		{"duplicate name", CreateLinkRequest{Concept: "x", Items: []CreateLineReq{
			{Name: "Café", Quantity: 1, UnitPrice: 10},
			{Name: "Café", Quantity: 2, UnitPrice: 20},
		}}},
		{"zero quantity", CreateLinkRequest{Concept: "x", Items: []CreateLineReq{{Name: "Café", Quantity: 0, UnitPrice: 10}}}},
		{"negative price", CreateLinkRequest{Concept: "x", Items: []CreateLineReq{{Name: "Café", Quantity: 1, UnitPrice: -10}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreatePaymentLink(ctx, testActor, tc.req)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	// Reject before touching storage.
	assert.Empty(t, store.transactions)
	assert.Empty(t, store.products)
}

func TestCreatePaymentLinkStoreFailure(t *testing.T) {
	store := newMockStore()
	store.txError = errors.New("connection reset")
	svc, notifier, _ := newTestService(store)

	_, err := svc.CreatePaymentLink(context.Background(), testActor, CreateLinkRequest{
		Concept: "x",
		Items:   []CreateLineReq{{Name: "Café", Quantity: 1, UnitPrice: 10}},
	})
	assert.ErrorIs(t, err, shared.ErrStore)
	assert.Empty(t, notifier.enqueued)
}

func TestCreatePaymentLinkNotifyFailureIsNonFatal(t *testing.T) {
	store := newMockStore()
	svc, notifier, _ := newTestService(store)
	notifier.err = errors.New("queue down")

	result, err := svc.CreatePaymentLink(context.Background(), testActor, CreateLinkRequest{
		Concept: "x",
		Items:   []CreateLineReq{{Name: "Café", Quantity: 1, UnitPrice: 10}},
	})
	require.NoError(t, err)
	assert.NotNil(t, store.transactions[result.TransactionID])
}

// ============================================================================
// RECONCILE
// ============================================================================

func TestGetReconcilesLapsedStatus(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)
	tx := seedTransaction(store, StatusPending)
	tx.ExpirationDate = testNow.Add(-time.Hour)

	view, err := svc.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, view.EffectiveStatus)
	assert.Equal(t, StatusExpired, store.transactions[tx.ID].Status)
	assert.Equal(t, 1, store.derivedWrites)

	// A second read finds the persisted status already converged and
	// issues no further write.
	_, err = svc.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, store.derivedWrites)
}

func TestReconcileWriteBackFailureStillReturnsDerived(t *testing.T) {
	store := newMockStore()
	store.writeBackErr = errors.New("deadlock detected")
	svc, _, _ := newTestService(store)
	tx := seedTransaction(store, StatusPending)
	tx.KueskiCreatedAt = ptrTime(testNow.Add(-3 * time.Hour))

	view, err := svc.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusKueskiExpired, view.EffectiveStatus)
	// Persisted row untouched.
	assert.Equal(t, StatusPending, store.transactions[tx.ID].Status)
}

func TestReconcileLosesToConcurrentTransition(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)
	tx := seedTransaction(store, StatusPending)
	tx.ExpirationDate = testNow.Add(-time.Hour)

	// Stale snapshot from before a cancel landed.
	stale := *tx
	store.transactions[tx.ID].Status = StatusCanceled

	derived, landed := svc.Reconcile(context.Background(), &stale, testNow)
	assert.Equal(t, StatusExpired, derived)
	assert.False(t, landed)
	// The guarded write found a different status and left the row alone.
	assert.Equal(t, StatusCanceled, store.transactions[tx.ID].Status)
}

func TestReconcileLapsed(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)

	expired := seedTransaction(store, StatusPending)
	expired.ExpirationDate = testNow.Add(-time.Hour)
	windowed := seedTransaction(store, StatusPending)
	windowed.KueskiCreatedAt = ptrTime(testNow.Add(-3 * time.Hour))
	seedTransaction(store, StatusPending)
	seedTransaction(store, StatusApproved)

	updated, err := svc.ReconcileLapsed(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Equal(t, StatusExpired, store.transactions[expired.ID].Status)
	assert.Equal(t, StatusKueskiExpired, store.transactions[windowed.ID].Status)

	// Converged: nothing left to rewrite.
	updated, err = svc.ReconcileLapsed(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestReconcileLapsedCountsOnlyLandedWrites(t *testing.T) {
	store := newMockStore()
	store.writeBackErr = errors.New("deadlock detected")
	svc, _, _ := newTestService(store)

	expired := seedTransaction(store, StatusPending)
	expired.ExpirationDate = testNow.Add(-time.Hour)
	windowed := seedTransaction(store, StatusPending)
	windowed.KueskiCreatedAt = ptrTime(testNow.Add(-3 * time.Hour))

	// Every write fails, so nothing is counted as rewritten.
	updated, err := svc.ReconcileLapsed(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.Equal(t, StatusPending, store.transactions[expired.ID].Status)

	// With the store healthy again the same sweep rewrites both rows.
	store.writeBackErr = nil
	updated, err = svc.ReconcileLapsed(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
}

func TestReconcileLapsedSkipsRowsLostToConcurrentWriters(t *testing.T) {
	store := newMockStore()
	store.raceOnWriteBack = true
	svc, _, _ := newTestService(store)

	expired := seedTransaction(store, StatusPending)
	expired.ExpirationDate = testNow.Add(-time.Hour)

	// The guarded update reports zero rows, so the sweep counts nothing.
	updated, err := svc.ReconcileLapsed(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.Zero(t, store.derivedWrites)
}

// ============================================================================
// PUBLIC PAY PAGE
// ============================================================================

func TestPublicTransaction(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)
	tx := seedTransaction(store, StatusPending)
	store.companies[1] = &CompanySummary{ID: 1, Name: "Tortas El Güero"}
	store.lineItems[tx.ID] = []LineItemDetail{{ProductName: "Torta"}}

	got, items, company, err := svc.PublicTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	assert.Len(t, items, 1)
	assert.Equal(t, "Tortas El Güero", company.Name)
}

func TestPublicTransactionRejectsNonPending(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)
	ctx := context.Background()

	for _, status := range []Status{StatusPendingCash, StatusApproved, StatusCanceled, StatusDenied, StatusPaidCash} {
		tx := seedTransaction(store, status)
		_, _, _, err := svc.PublicTransaction(ctx, tx.ID)
		assert.ErrorIs(t, err, shared.ErrExpired, "status %s", status)
	}

	lapsed := seedTransaction(store, StatusPending)
	lapsed.ExpirationDate = testNow.Add(-time.Minute)
	_, _, _, err := svc.PublicTransaction(ctx, lapsed.ID)
	assert.ErrorIs(t, err, shared.ErrExpired)

	_, _, _, err = svc.PublicTransaction(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ============================================================================
// CASH FLOW
// ============================================================================

func TestSubmitCashPayment(t *testing.T) {
	store := newMockStore()
	svc, _, cache := newTestService(store)
	tx := seedTransaction(store, StatusPending)
	note := "sin cebolla"

	err := svc.SubmitCashPayment(context.Background(), tx.ID, CustomerInfo{
		Name: "Ana", Email: "ana@example.com", Phone: "5551234567", Request: &note,
	})
	require.NoError(t, err)

	stored := store.transactions[tx.ID]
	assert.Equal(t, StatusPendingCash, stored.Status)
	require.NotNil(t, stored.CustomerName)
	assert.Equal(t, "Ana", *stored.CustomerName)
	require.NotNil(t, stored.CustomerRequest)
	assert.Equal(t, "sin cebolla", *stored.CustomerRequest)
	assert.Equal(t, 1, cache.bumps)
}

func TestSubmitCashPaymentWrongState(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)
	tx := seedTransaction(store, StatusApproved)

	err := svc.SubmitCashPayment(context.Background(), tx.ID, CustomerInfo{Name: "Ana"})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestSubmitCashPaymentExpired(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)
	tx := seedTransaction(store, StatusPending)
	tx.ExpirationDate = testNow.Add(-time.Minute)

	err := svc.SubmitCashPayment(context.Background(), tx.ID, CustomerInfo{Name: "Ana"})
	assert.ErrorIs(t, err, shared.ErrExpired)
}

func TestSubmitCashPaymentRace(t *testing.T) {
	store := newMockStore()
	store.raceOnUpdate = true
	svc, _, _ := newTestService(store)
	tx := seedTransaction(store, StatusPending)

	err := svc.SubmitCashPayment(context.Background(), tx.ID, CustomerInfo{Name: "Ana"})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestMarkCashReceived(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)
	tx := seedTransaction(store, StatusPendingCash)

	require.NoError(t, svc.MarkCashReceived(context.Background(), tx.ID))
	assert.Equal(t, StatusPaidCash, store.transactions[tx.ID].Status)

	// Not from plain pendiente.
	plain := seedTransaction(store, StatusPending)
	err := svc.MarkCashReceived(context.Background(), plain.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

// ============================================================================
// LIFECYCLE
// ============================================================================

func TestCancel(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)
	ctx := context.Background()

	for _, status := range []Status{StatusPending, StatusPendingCash} {
		tx := seedTransaction(store, status)
		require.NoError(t, svc.Cancel(ctx, tx.ID), "status %s", status)
		assert.Equal(t, StatusCanceled, store.transactions[tx.ID].Status)
	}

	for _, status := range []Status{StatusApproved, StatusPaidCash, StatusDenied, StatusCanceled, StatusExpired} {
		tx := seedTransaction(store, status)
		err := svc.Cancel(ctx, tx.ID)
		assert.ErrorIs(t, err, shared.ErrInvalidState, "status %s", status)
		assert.Equal(t, status, store.transactions[tx.ID].Status)
	}
}

func TestApplyProviderOutcome(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)
	ctx := context.Background()

	approved := seedTransaction(store, StatusPending)
	require.NoError(t, svc.ApplyProviderOutcome(ctx, approved.ID, true))
	assert.Equal(t, StatusApproved, store.transactions[approved.ID].Status)

	denied := seedTransaction(store, StatusPending)
	require.NoError(t, svc.ApplyProviderOutcome(ctx, denied.ID, false))
	assert.Equal(t, StatusDenied, store.transactions[denied.ID].Status)

	// The verdict never overwrites a settled link.
	err := svc.ApplyProviderOutcome(ctx, approved.ID, false)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.Equal(t, StatusApproved, store.transactions[approved.ID].Status)
}

func TestMarkProviderHandoff(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)
	ctx := context.Background()
	tx := seedTransaction(store, StatusPending)

	require.NoError(t, svc.MarkProviderHandoff(ctx, tx.ID))
	require.NotNil(t, store.transactions[tx.ID].KueskiCreatedAt)
	assert.Equal(t, testNow, *store.transactions[tx.ID].KueskiCreatedAt)

	// Idempotent: a second handoff keeps the original stamp.
	require.NoError(t, svc.MarkProviderHandoff(ctx, tx.ID))
	assert.Equal(t, testNow, *store.transactions[tx.ID].KueskiCreatedAt)

	settled := seedTransaction(store, StatusApproved)
	err := svc.MarkProviderHandoff(ctx, settled.ID)
	assert.ErrorIs(t, err, shared.ErrExpired)
}

func TestResend(t *testing.T) {
	store := newMockStore()
	svc, notifier, _ := newTestService(store)
	tx := seedTransaction(store, StatusPending)

	result, err := svc.Resend(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.PaymentLink, result.PaymentLink)
	assert.Equal(t, []string{tx.PaymentLink}, notifier.enqueued)

	settled := seedTransaction(store, StatusPaidCash)
	_, err = svc.Resend(context.Background(), settled.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

// ============================================================================
// LISTING
// ============================================================================

func TestListDerivesPerRow(t *testing.T) {
	store := newMockStore()
	svc, _, _ := newTestService(store)
	lapsed := seedTransaction(store, StatusPending)
	lapsed.ExpirationDate = testNow.Add(-time.Hour)
	seedTransaction(store, StatusApproved)

	views, total, err := svc.List(context.Background(), ListRequest{CompanyID: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	byID := make(map[uuid.UUID]LinkView, len(views))
	for _, v := range views {
		byID[v.ID] = v
	}
	assert.Equal(t, StatusExpired, byID[lapsed.ID].EffectiveStatus)
}
