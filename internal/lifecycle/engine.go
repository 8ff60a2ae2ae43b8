package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"brokergate/internal/audit"
	dErrors "brokergate/pkg/domain-errors"
	"brokergate/pkg/platform/sentinel"
)

// Actor is the authenticated user submitting an edit: an opaque id plus a
// single authoritative role, both resolved upstream.
type Actor struct {
	ID   string
	Role RoleID
}

// RecordStore is the engine's narrow view of record persistence. GetForUpdate
// must hold an exclusive row lock for the rest of the ambient transaction;
// ApplyMerge must run inside that same transaction.
type RecordStore interface {
	GetForUpdate(ctx context.Context, kind string, id uuid.UUID) (*Record, error)
	ApplyMerge(ctx context.Context, kind string, id uuid.UUID, proposed Fields, status *StateName) (*Record, error)
}

// TxRunner executes fn inside one atomic unit of work. key is the record id;
// SQL implementations ignore it, the in-memory implementation shards its
// locks by it so distinct records do not contend.
type TxRunner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Hook runs after a successful commit. Hooks are best-effort side effects
// (session invalidation, notifications); their failures are logged, never
// surfaced to the caller, and never roll back the edit.
type Hook interface {
	AfterApply(ctx context.Context, before, after *Record) error
}

// Recorder counts edit outcomes for observability.
type Recorder interface {
	EditApplied(kind string)
	EditRejected(kind, reason string)
}

// Engine evaluates blueprint rules and applies accepted edits. One instance
// serves every registered entity kind.
type Engine struct {
	registry *Registry
	store    RecordStore
	audits   *audit.Publisher
	tx       TxRunner
	hooks    []Hook
	recorder Recorder
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithHooks registers post-commit hooks, run in order.
func WithHooks(hooks ...Hook) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, hooks...) }
}

// WithRecorder wires outcome metrics.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func NewEngine(registry *Registry, store RecordStore, audits *audit.Publisher, tx TxRunner, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		store:    store,
		audits:   audits,
		tx:       tx,
		logger:   logger,
		tracer:   otel.Tracer("brokergate/lifecycle"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyEdit runs the four checks in fixed order — permission, field scope,
// transition legality, transition requirements — under an exclusive lock on
// the record, short-circuiting on the first failure. On success it merges the
// proposed fields, persists the new status if a transition was requested, and
// appends exactly one audit entry in the same transaction.
//
// Error contract: *Rejection for rule failures, CodeNotFound for unknown
// records, CodeTimeout/CodeUnavailable for transient storage trouble (safe to
// retry with the same request: state is re-read under lock each attempt).
func (e *Engine) ApplyEdit(ctx context.Context, kind string, recordID uuid.UUID, actor Actor, edit EditRequest) (*Record, error) {
	bp, ok := e.registry.Blueprint(kind)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "no blueprint registered for kind "+kind)
	}

	ctx, span := e.tracer.Start(ctx, "lifecycle.apply_edit", trace.WithAttributes(
		attribute.String("record.kind", kind),
		attribute.String("record.id", recordID.String()),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer span.End()

	requested, hasStatus, malformed := edit.RequestedStatus()
	if malformed {
		return nil, dErrors.New(dErrors.CodeBadRequest, "status must be a string")
	}
	if hasStatus && !bp.HasState(requested) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown state "+string(requested)+" for kind "+kind)
	}

	var before, after *Record
	err := e.tx.RunInTx(ctx, recordID.String(), func(ctx context.Context) error {
		rec, err := e.store.GetForUpdate(ctx, kind, recordID)
		if err != nil {
			return err
		}
		before = rec

		rejection := e.evaluate(bp, rec, actor, edit, requested, hasStatus)
		if rejection != nil {
			return rejection
		}

		var newStatus *StateName
		if hasStatus && requested != rec.Status {
			status := requested
			newStatus = &status
		}

		updated, err := e.store.ApplyMerge(ctx, kind, recordID, edit.ProposedFields(), newStatus)
		if err != nil {
			return err
		}
		after = updated

		entry := audit.Entry{
			RecordID:   recordID,
			EntityKind: kind,
			ActorID:    actor.ID,
			ActorRole:  string(actor.Role),
			Before:     rec.Fields.Clone(),
			After:      updated.Fields.Clone(),
		}
		if newStatus != nil {
			entry.Transition = &audit.Transition{From: string(rec.Status), To: string(*newStatus)}
		}
		return e.audits.Emit(ctx, entry)
	})
	if err != nil {
		return nil, e.classify(ctx, kind, recordID, err)
	}

	if e.recorder != nil {
		e.recorder.EditApplied(kind)
	}
	e.runHooks(ctx, before, after)
	return after, nil
}

// evaluate runs the ordered checks against the locked record. First failing
// check wins; later checks are not evaluated.
func (e *Engine) evaluate(bp *Blueprint, rec *Record, actor Actor, edit EditRequest, requested StateName, hasStatus bool) *Rejection {
	if !bp.CanEdit(rec.Status, actor.Role) {
		return &Rejection{Kind: RejectedUnauthorized, State: rec.Status, Role: actor.Role}
	}

	if forbidden := bp.ForbiddenFields(rec.Status, edit.TouchedFields()); len(forbidden) > 0 {
		return &Rejection{Kind: RejectedForbiddenFields, State: rec.Status, Fields: forbidden}
	}

	// No status key, or status equal to the current state, is a pure field
	// edit: nothing further to validate.
	if !hasStatus || requested == rec.Status {
		return nil
	}

	if !bp.TransitionAllowed(rec.Status, requested) {
		return &Rejection{Kind: RejectedIllegalTransition, State: rec.Status, From: rec.Status, To: requested}
	}

	merged := Merge(rec.Fields, edit.ProposedFields())
	if missing := bp.MissingRequirements(rec.Status, requested, merged); len(missing) > 0 {
		return &Rejection{Kind: RejectedMissingRequirements, State: rec.Status, From: rec.Status, To: requested, Fields: missing}
	}
	return nil
}

// classify maps store and transaction failures onto the caller-facing error
// taxonomy and records the outcome.
func (e *Engine) classify(ctx context.Context, kind string, recordID uuid.UUID, err error) error {
	if rej, ok := AsRejection(err); ok {
		if e.recorder != nil {
			e.recorder.EditRejected(kind, string(rej.Kind))
		}
		return rej
	}
	if e.recorder != nil {
		e.recorder.EditRejected(kind, "storage")
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, kind+" record not found")
	case errors.Is(err, sentinel.ErrSerialization), errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "edit lost a concurrent-write race, retry")
	case errors.Is(err, sentinel.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "storage did not complete in time, retry")
	default:
		e.logger.ErrorContext(ctx, "apply edit failed",
			"kind", kind,
			"record_id", recordID.String(),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "apply edit")
	}
}

func (e *Engine) runHooks(ctx context.Context, before, after *Record) {
	for _, hook := range e.hooks {
		if err := hook.AfterApply(ctx, before, after); err != nil {
			e.logger.WarnContext(ctx, "post-apply hook failed",
				"kind", after.Kind,
				"record_id", after.ID.String(),
				"error", err,
			)
		}
	}
}
