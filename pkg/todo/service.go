package todo

import (
	"context"
	"errors"

	"github.com/fluxorio/todos/pkg/core"
	"github.com/fluxorio/todos/pkg/core/failfast"
)

// Event topics published after successful writes
const (
	TopicCreated = "created"
	TopicUpdated = "updated"
	TopicDeleted = "deleted"
)

// Notifier receives change events. events.Publisher implementations satisfy it.
type Notifier interface {
	Publish(ctx context.Context, topic string, body interface{}) error
}

// Metrics counts service outcomes. *prometheus.Metrics satisfies it.
type Metrics interface {
	RecordTodoOperation(operation, outcome string)
	RecordEventPublished(topic string, err error)
}

// DeletedEvent is the body published on TopicDeleted
type DeletedEvent struct {
	ID int64 `json:"id"`
}

// Service runs the todo operations: validation on write paths, storage on
// every path, and change notification after successful writes.
type Service struct {
	repo      Repository
	validator *Validator
	notifier  Notifier
	metrics   Metrics
	logger    core.Logger
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithNotifier publishes change events to n
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics counts operation outcomes in m
func WithMetrics(m Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger
func WithLogger(l core.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a service on repo
func NewService(repo Repository, opts ...ServiceOption) *Service {
	failfast.NotNil(repo, "repo")
	s := &Service{
		repo:      repo,
		validator: NewValidator(repo),
		logger:    core.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the todos matching f in storage order
func (s *Service) List(ctx context.Context, f Filter) ([]Todo, error) {
	todos, err := s.repo.FindAll(ctx, f)
	s.record("list", err)
	return todos, err
}

// Get returns todo id or ErrNotFound
func (s *Service) Get(ctx context.Context, id int64) (Todo, error) {
	t, err := s.find(ctx, id)
	s.record("get", err)
	return t, err
}

// Create validates p over the creation defaults and stores the result
func (s *Service) Create(ctx context.Context, p Params) (Todo, error) {
	t, err := s.create(ctx, p)
	s.record("create", err)
	if err == nil {
		s.notify(ctx, TopicCreated, t)
	}
	return t, err
}

func (s *Service) create(ctx context.Context, p Params) (Todo, error) {
	d := p.Apply(NewDraft())
	if verr, err := s.validator.Validate(ctx, 0, d); err != nil {
		return Todo{}, err
	} else if verr != nil {
		return Todo{}, verr
	}

	t, err := s.repo.Insert(ctx, d)
	if errors.Is(err, ErrTitleConflict) {
		return Todo{}, takenError()
	}
	return t, err
}

// Update merges p into todo id, validates the merged record and stores it.
// A failed validation leaves the stored record untouched.
func (s *Service) Update(ctx context.Context, id int64, p Params) (Todo, error) {
	t, err := s.update(ctx, id, p)
	s.record("update", err)
	if err == nil {
		s.notify(ctx, TopicUpdated, t)
	}
	return t, err
}

func (s *Service) update(ctx context.Context, id int64, p Params) (Todo, error) {
	current, err := s.find(ctx, id)
	if err != nil {
		return Todo{}, err
	}

	d := p.Apply(DraftOf(current))
	if verr, err := s.validator.Validate(ctx, id, d); err != nil {
		return Todo{}, err
	} else if verr != nil {
		return Todo{}, verr
	}

	t, err := s.repo.Update(ctx, id, d)
	if errors.Is(err, ErrTitleConflict) {
		return Todo{}, takenError()
	}
	return t, err
}

// Delete removes todo id or returns ErrNotFound
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.delete(ctx, id)
	s.record("delete", err)
	if err == nil {
		s.notify(ctx, TopicDeleted, DeletedEvent{ID: id})
	}
	return err
}

func (s *Service) delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

// Exists reports ErrNotFound when todo id is absent. It is not counted as an
// operation.
func (s *Service) Exists(ctx context.Context, id int64) error {
	_, err := s.find(ctx, id)
	return err
}

func (s *Service) find(ctx context.Context, id int64) (Todo, error) {
	if id <= 0 {
		return Todo{}, ErrNotFound
	}
	return s.repo.FindByID(ctx, id)
}

// takenError is the storage-level uniqueness race reported the same way as
// the validation-level check
func takenError() *ValidationError {
	verr := &ValidationError{}
	verr.Add("title", MsgTaken)
	return verr
}

// Outcome classifies an operation result for metrics and logs
func Outcome(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &verr):
		return "invalid"
	default:
		return "error"
	}
}

func (s *Service) record(op string, err error) {
	if s.metrics != nil {
		s.metrics.RecordTodoOperation(op, Outcome(err))
	}
}

// notify never fails the caller; the write already happened
func (s *Service) notify(ctx context.Context, topic string, body interface{}) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Publish(ctx, topic, body)
	if s.metrics != nil {
		s.metrics.RecordEventPublished(topic, err)
	}
	if err != nil {
		s.logger.Warn("publish todo event failed", "topic", topic, "request_id", core.GetRequestID(ctx), "err", err)
	}
}
