// README: Notification dispatcher: create, fan out per recipient, sweep scheduled work, spawn recurrences.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rxflow/internal/modules/user"
	"rxflow/internal/types"
)

var (
	ErrNotFound   = fmt.Errorf("notification %w", types.ErrNotFound)
	ErrBadRequest = fmt.Errorf("notification: %w", types.ErrInvalidInput)
	ErrConflict   = fmt.Errorf("notification version %w", types.ErrConflict)
	ErrNoSender   = errors.New("no sender configured for channel")
)

const defaultWorkers = 8

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id types.ID) (*Notification, error)
	Save(ctx context.Context, n *Notification) error
	// Due lists notifications scheduled at or before now with a PENDING recipient.
	Due(ctx context.Context, now time.Time) ([]*Notification, error)
}

type Directory interface {
	Contact(ctx context.Context, id types.ID) (user.Contact, error)
	FirstWithRole(ctx context.Context, role user.Role) (user.Contact, error)
}

// Sender delivers one notification to one resolved contact.
type Sender interface {
	Send(ctx context.Context, to user.Contact, n *Notification) error
}

type Config struct {
	Enabled        bool
	SystemSenderID types.ID
	Workers        int
}

type Service struct {
	store     Repository
	directory Directory
	senders   map[Channel]Sender
	auditor   Auditor
	orders    Orders
	cfg       Config
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

type Deps struct {
	Directory Directory
	Senders   map[Channel]Sender
	Auditor   Auditor
	Orders    Orders
	Logger    *zap.Logger
}

func NewService(store Repository, cfg Config, deps Deps) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	auditor := deps.Auditor
	if auditor == nil {
		auditor = nopAuditor{}
	}
	return &Service{
		store:     store,
		directory: deps.Directory,
		senders:   deps.Senders,
		auditor:   auditor,
		orders:    deps.Orders,
		cfg:       cfg,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

type CreateSpec struct {
	Channel      Channel    `validate:"required,oneof=WHATSAPP EMAIL"`
	SenderID     types.ID   `validate:"required"`
	Recipients   []types.ID `validate:"min=1,dive,required"`
	Message      string     `validate:"required"`
	Subject      string     `validate:"required_if=Channel EMAIL"`
	Media        *Media
	ScheduledFor *time.Time
	Recurring    bool
	Pattern      *Pattern `validate:"required_if=Recurring true"`
	Priority     Priority `validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Tags         []string
	OrderID      types.ID
}

// Create validates and stores a notification, dispatching it right away when
// notifications are enabled and it is not scheduled for later.
func (s *Service) Create(ctx context.Context, spec CreateSpec) (*Notification, error) {
	n, _, err := s.create(ctx, spec)
	return n, err
}

func (s *Service) create(ctx context.Context, spec CreateSpec) (*Notification, bool, error) {
	spec.Channel = Channel(strings.ToUpper(strings.TrimSpace(string(spec.Channel))))
	spec.Priority = Priority(strings.ToUpper(string(spec.Priority)))
	if spec.SenderID == "" {
		sender, err := s.systemSender(ctx)
		if err != nil {
			return nil, false, err
		}
		spec.SenderID = sender
	}
	if err := s.validate.Struct(spec); err != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrBadRequest, err.Error())
	}

	now := s.now()
	n := &Notification{
		ID:           types.NewID(),
		Channel:      spec.Channel,
		SenderID:     spec.SenderID,
		Recipients:   pendingRecipients(spec.Recipients),
		Message:      spec.Message,
		Subject:      spec.Subject,
		Media:        spec.Media,
		ScheduledFor: now,
		Recurring:    spec.Recurring,
		Pattern:      spec.Pattern,
		Priority:     spec.Priority,
		Tags:         spec.Tags,
		OrderID:      spec.OrderID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	if spec.ScheduledFor != nil && !spec.ScheduledFor.IsZero() {
		n.ScheduledFor = *spec.ScheduledFor
	}
	if !n.Recurring {
		n.Pattern = nil
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, false, err
	}
	s.audit(ctx, ActionCreated, n)

	if !s.cfg.Enabled {
		s.logger.Info("notifications disabled, stored without dispatch",
			zap.String("notification_id", n.ID.String()),
			zap.String("channel", string(n.Channel)),
		)
		return n, false, nil
	}
	if !n.Due(now) {
		return n, false, nil
	}
	if err := s.Dispatch(ctx, n); err != nil {
		return n, false, err
	}
	return n, true, nil
}

func (s *Service) systemSender(ctx context.Context) (types.ID, error) {
	if s.cfg.SystemSenderID != "" {
		return s.cfg.SystemSenderID, nil
	}
	if s.directory == nil {
		return "", fmt.Errorf("%w: no sender", ErrBadRequest)
	}
	admin, err := s.directory.FirstWithRole(ctx, user.RoleAdmin)
	if err != nil {
		return "", fmt.Errorf("resolve system sender: %w", err)
	}
	return admin.ID, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Notification, error) {
	return s.store.Get(ctx, id)
}

// Dispatch sends to every PENDING recipient concurrently and records each
// outcome on its own recipient entry. Send failures never abort the others and
// are not returned; only persisting the result can fail.
func (s *Service) Dispatch(ctx context.Context, n *Notification) error {
	if !s.cfg.Enabled {
		s.logger.Info("notifications disabled, skipping dispatch", zap.String("notification_id", n.ID.String()))
		return nil
	}
	sender := s.senders[n.Channel]

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range n.Recipients {
		if n.Recipients[i].Status != RecipientPending {
			continue
		}
		r := &n.Recipients[i]
		g.Go(func() error {
			err := s.sendOne(gctx, sender, r.UserID, n)
			at := s.now()
			if err != nil {
				r.Status = RecipientFailed
				r.FailureReason = err.Error()
				return nil
			}
			r.Status = RecipientSent
			r.DeliveredAt = &at
			r.FailureReason = ""
			return nil
		})
	}
	_ = g.Wait()

	n.UpdatedAt = s.now()
	if err := s.store.Save(ctx, n); err != nil {
		return fmt.Errorf("persist dispatch result: %w", err)
	}
	sent, failed, pending := n.Counts()
	s.logger.Info("notification dispatched",
		zap.String("notification_id", n.ID.String()),
		zap.String("channel", string(n.Channel)),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
		zap.Int("pending", pending),
	)
	s.audit(ctx, ActionDispatched, n)

	if n.Recurring {
		s.spawnSuccessor(ctx, n)
	}
	return nil
}

func (s *Service) sendOne(ctx context.Context, sender Sender, userID types.ID, n *Notification) error {
	if sender == nil {
		return fmt.Errorf("%w %s", ErrNoSender, n.Channel)
	}
	contact, err := s.directory.Contact(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	return sender.Send(ctx, contact, n)
}

// spawnSuccessor creates the next occurrence once per notification. The parent
// is marked first so a concurrent sweep cannot spawn a second successor.
func (s *Service) spawnSuccessor(ctx context.Context, n *Notification) {
	if n.SuccessorID != "" || n.Pattern == nil {
		return
	}
	next := NextOccurrence(n.ScheduledFor, *n.Pattern)
	if !withinEnd(next, *n.Pattern) {
		s.logger.Info("recurrence ended", zap.String("notification_id", n.ID.String()))
		return
	}
	now := s.now()
	succ := &Notification{
		ID:           types.NewID(),
		Channel:      n.Channel,
		SenderID:     n.SenderID,
		Recipients:   pendingRecipients(n.recipientIDs()),
		Message:      n.Message,
		Subject:      n.Subject,
		Media:        n.Media,
		ScheduledFor: next,
		Recurring:    true,
		Pattern:      n.Pattern,
		Priority:     n.Priority,
		Tags:         n.Tags,
		OrderID:      n.OrderID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	n.SuccessorID = succ.ID
	if err := s.store.Save(ctx, n); err != nil {
		n.SuccessorID = ""
		s.logger.Warn("claim recurrence", zap.String("notification_id", n.ID.String()), zap.Error(err))
		return
	}
	if err := s.store.Create(ctx, succ); err != nil {
		s.logger.Error("create recurrence", zap.String("notification_id", n.ID.String()), zap.Error(err))
		return
	}
	s.audit(ctx, ActionCreated, succ)
	s.logger.Info("recurrence scheduled",
		zap.String("notification_id", n.ID.String()),
		zap.String("successor_id", succ.ID.String()),
		zap.Time("scheduled_for", next),
	)
}

// ProcessScheduledNotifications dispatches everything due at now and returns
// how many notifications were dispatched.
func (s *Service) ProcessScheduledNotifications(ctx context.Context, now time.Time) (int, error) {
	if !s.cfg.Enabled {
		s.logger.Info("notifications disabled, scheduled sweep skipped")
		return 0, nil
	}
	due, err := s.store.Due(ctx, now)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, n := range due {
		if !n.HasPending() || !n.Due(now) {
			continue
		}
		if err := s.Dispatch(ctx, n); err != nil {
			s.logger.Error("scheduled dispatch", zap.String("notification_id", n.ID.String()), zap.Error(err))
			continue
		}
		processed++
	}
	if processed > 0 {
		s.logger.Info("scheduled sweep", zap.Int("dispatched", processed))
	}
	return processed, nil
}

// RunScheduler sweeps every interval until ctx is done.
func (s *Service) RunScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ProcessScheduledNotifications(ctx, s.now()); err != nil {
				s.logger.Error("scheduled sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) audit(ctx context.Context, action Action, n *Notification) {
	if err := s.auditor.Record(ctx, newAuditEntry(action, n, s.now())); err != nil {
		s.logger.Warn("audit notification", zap.String("notification_id", n.ID.String()), zap.Error(err))
	}
}
