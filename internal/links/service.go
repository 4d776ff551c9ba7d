package links

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kueskilink/kueskilink/internal/shared"
)

// CacheInvalidator bumps derived-data caches after a lifecycle write.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Notifier enqueues the payment-link delivery task. Delivery itself (mail,
// SMS, WhatsApp share) is an external collaborator.
type Notifier interface {
	EnqueueLinkNotify(ctx context.Context, transactionID uuid.UUID, paymentLink string) error
}

// ServiceConfig collects the service dependencies. Cache and Notifier are
// optional. Clock defaults to time.Now; tests inject a fixed clock.
type ServiceConfig struct {
	Store    Store
	Logger   *slog.Logger
	BaseURL  string
	Cache    CacheInvalidator
	Notifier Notifier
	Clock    func() time.Time
}

// Service provides business logic for payment links.
type Service struct {
	store    Store
	logger   *slog.Logger
	baseURL  string
	cache    CacheInvalidator
	notifier Notifier
	now      func() time.Time
}

// NewService constructs a links service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    cfg.Store,
		logger:   logger,
		baseURL:  cfg.BaseURL,
		cache:    cfg.Cache,
		notifier: cfg.Notifier,
		now:      now,
	}
}

// LinkView is a transaction with its derived fields for listings and detail.
type LinkView struct {
	Transaction
	EffectiveStatus          Status `json:"effective_status"`
	RemainingProviderMinutes *int   `json:"remaining_provider_minutes,omitempty"`
}

func (s *Service) view(tx *Transaction, now time.Time) LinkView {
	return LinkView{
		Transaction:              *tx,
		EffectiveStatus:          Derive(tx, now),
		RemainingProviderMinutes: RemainingProviderMinutes(tx.KueskiCreatedAt, now),
	}
}

// CreatePaymentLink validates the bundle, creates catalog rows for ad hoc
// items, and inserts the transaction with its line items in one atomic unit.
func (s *Service) CreatePaymentLink(ctx context.Context, actor shared.Actor, req CreateLinkRequest) (*CreateLinkResult, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one product is required", shared.ErrValidation)
	}
	if req.Concept == "" {
		return nil, fmt.Errorf("%w: concept is required", shared.ErrValidation)
	}

	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		if _, dup := seen[item.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate product %q", shared.ErrValidation, item.Name)
		}
		seen[item.Name] = struct{}{}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %q must be greater than zero", shared.ErrValidation, item.Name)
		}
		if item.UnitPrice <= 0 {
			return nil, fmt.Errorf("%w: unit price for %q must be greater than zero", shared.ErrValidation, item.Name)
		}
	}

	var amount float64
	for _, item := range req.Items {
		amount += item.Quantity * item.UnitPrice
	}

	now := s.now()
	id := uuid.New()
	paymentLink := fmt.Sprintf("%s/client-pay/%s", s.baseURL, id)

	tx := Transaction{
		ID:             id,
		CompanyID:      actor.CompanyID,
		UserID:         actor.UserID,
		Concept:        req.Concept,
		Amount:         amount,
		Status:         StatusPending,
		PaymentLink:    paymentLink,
		NoteToClient:   req.NoteToClient,
		ExpirationDate: now.Add(LinkTTL),
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		items := make([]LineItem, 0, len(req.Items))
		for _, item := range req.Items {
			productID := item.ProductID
			if productID == nil {
				productType := item.Type
				if productType == "" {
					productType = "Otro"
				}
				created, err := repo.InsertProduct(ctx, actor.CompanyID, item.Name, item.Description, item.UnitPrice, productType)
				if err != nil {
					return err
				}
				productID = &created
			}
			items = append(items, LineItem{
				TransactionID: id,
				ProductID:     productID,
				Quantity:      item.Quantity,
				UnitPrice:     item.UnitPrice,
				Description:   item.Description,
			})
		}
		if err := repo.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		return repo.InsertLineItems(ctx, items)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create payment link: %v", shared.ErrStore, err)
	}

	s.bump(ctx)
	if s.notifier != nil {
		if err := s.notifier.EnqueueLinkNotify(ctx, id, paymentLink); err != nil {
			s.logger.Warn("enqueue link notify", slog.String("transaction_id", id.String()), slog.Any("error", err))
		}
	}

	return &CreateLinkResult{TransactionID: id, PaymentLink: paymentLink}, nil
}

// Get returns the link with derived fields, reconciling the persisted status
// first. The read never fails because of a write-back problem.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*LinkView, error) {
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	derived, _ := s.Reconcile(ctx, tx, now)
	tx.Status = derived
	view := s.view(tx, now)
	return &view, nil
}

// Reconcile derives the effective status and, when it diverges from the
// persisted one, writes it back. The write is guarded on the status the
// derivation saw, so a concurrent transition wins over the write-back.
// The derived value is always returned; the bool reports whether the
// write-back actually landed. A failed write only logs.
func (s *Service) Reconcile(ctx context.Context, tx *Transaction, now time.Time) (Status, bool) {
	derived := Derive(tx, now)
	if derived == tx.Status {
		return derived, false
	}
	updated, err := s.store.WriteDerivedStatus(ctx, tx.ID, tx.Status, derived)
	if err != nil {
		s.logger.Error("reconcile write-back",
			slog.String("transaction_id", tx.ID.String()),
			slog.String("derived", string(derived)),
			slog.Any("error", err))
		return derived, false
	}
	if updated {
		s.bump(ctx)
	}
	return derived, updated
}

// List returns the merchant link history with derived fields per row.
func (s *Service) List(ctx context.Context, req ListRequest) ([]LinkView, int, error) {
	txs, total, err := s.store.List(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	views := make([]LinkView, 0, len(txs))
	for i := range txs {
		views = append(views, s.view(&txs[i], now))
	}
	return views, total, nil
}

// LineItems exposes a link's line items with product details.
func (s *Service) LineItems(ctx context.Context, id uuid.UUID) ([]LineItemDetail, error) {
	return s.store.LineItems(ctx, id)
}

// PublicTransaction loads everything the client pay page needs. The link is
// only served while its effective status is pendiente.
func (s *Service) PublicTransaction(ctx context.Context, id uuid.UUID) (*Transaction, []LineItemDetail, *CompanySummary, error) {
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if Derive(tx, s.now()) != StatusPending {
		return nil, nil, nil, fmt.Errorf("%w: link is no longer payable", shared.ErrExpired)
	}
	items, err := s.store.LineItems(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	company, err := s.store.Company(ctx, tx.CompanyID)
	if err != nil {
		return nil, nil, nil, err
	}
	return tx, items, company, nil
}

// SubmitCashPayment records the customer's intent to pay in cash:
// pendiente -> pendiente_efectivo plus the customer contact fields. The
// precondition is re-checked by the conditional update, so two racing
// submissions (or a racing cancel) cannot both land.
func (s *Service) SubmitCashPayment(ctx context.Context, id uuid.UUID, info CustomerInfo) error {
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if tx.Status != StatusPending {
		return fmt.Errorf("%w: transaction already processed", shared.ErrInvalidState)
	}
	if s.now().After(tx.ExpirationDate) {
		return fmt.Errorf("%w: transaction expired", shared.ErrExpired)
	}
	ok, err := s.store.RecordCashIntent(ctx, id, info)
	if err != nil {
		return fmt.Errorf("%w: record cash intent: %v", shared.ErrStore, err)
	}
	if !ok {
		return fmt.Errorf("%w: transaction already processed", shared.ErrInvalidState)
	}
	s.bump(ctx)
	return nil
}

// Cancel moves a link to canceled. Only non-terminal, non-lapsed statuses
// listed in the transition table are cancelable.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, StatusCanceled)
}

// MarkCashReceived confirms the merchant collected the cash:
// pendiente_efectivo -> pagado_efectivo.
func (s *Service) MarkCashReceived(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, StatusPaidCash)
}

// ApplyProviderOutcome applies the provider's terminal verdict for a link.
// Non-terminal verdicts (customer canceled, technical failure) leave the
// link payable until a deadline lapses.
func (s *Service) ApplyProviderOutcome(ctx context.Context, id uuid.UUID, approved bool) error {
	to := StatusDenied
	if approved {
		to = StatusApproved
	}
	return s.transition(ctx, id, to)
}

// MarkProviderHandoff stamps the provider window start when the customer is
// sent to Kueski. Only a pending, unstamped link can be handed off.
func (s *Service) MarkProviderHandoff(ctx context.Context, id uuid.UUID) error {
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	now := s.now()
	if Derive(tx, now) != StatusPending {
		return fmt.Errorf("%w: link is no longer payable", shared.ErrExpired)
	}
	if tx.KueskiCreatedAt != nil {
		return nil
	}
	ok, err := s.store.MarkProviderHandoff(ctx, id, now)
	if err != nil {
		return fmt.Errorf("%w: mark provider handoff: %v", shared.ErrStore, err)
	}
	if !ok {
		return fmt.Errorf("%w: transaction already processed", shared.ErrInvalidState)
	}
	return nil
}

// Resend re-issues the stored payment link and enqueues another delivery.
func (s *Service) Resend(ctx context.Context, id uuid.UUID) (*CreateLinkResult, error) {
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return nil, fmt.Errorf("%w: link already settled", shared.ErrInvalidState)
	}
	if s.notifier != nil {
		if err := s.notifier.EnqueueLinkNotify(ctx, tx.ID, tx.PaymentLink); err != nil {
			s.logger.Warn("enqueue link notify", slog.String("transaction_id", tx.ID.String()), slog.Any("error", err))
		}
	}
	return &CreateLinkResult{TransactionID: tx.ID, PaymentLink: tx.PaymentLink}, nil
}

// ReconcileLapsed batch-reconciles transactions whose deadlines have passed.
// Returns how many rows were actually rewritten; writes that fail or lose to
// a concurrent transition are not counted. Safe to run repeatedly.
func (s *Service) ReconcileLapsed(ctx context.Context, limit int) (int, error) {
	now := s.now()
	lapsed, err := s.store.ListLapsed(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	var updated int
	for i := range lapsed {
		if _, landed := s.Reconcile(ctx, &lapsed[i], now); landed {
			updated++
		}
	}
	return updated, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) error {
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(tx.Status, to) {
		return fmt.Errorf("%w: cannot move %s link to %s", shared.ErrInvalidState, tx.Status, to)
	}
	ok, err := s.store.TransitionStatus(ctx, id, TransitionSources(to), to)
	if err != nil {
		return fmt.Errorf("%w: transition to %s: %v", shared.ErrStore, to, err)
	}
	if !ok {
		return fmt.Errorf("%w: cannot move %s link to %s", shared.ErrInvalidState, tx.Status, to)
	}
	s.bump(ctx)
	return nil
}

func (s *Service) bump(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("stats cache bump", slog.Any("error", err))
	}
}
