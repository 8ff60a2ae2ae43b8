package lifecycle_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"brokergate/internal/audit"
	auditmem "brokergate/internal/audit/store/memory"
	"brokergate/internal/claims"
	"brokergate/internal/lifecycle"
	"brokergate/internal/policies"
	recordsmem "brokergate/internal/records/store/memory"
	"brokergate/internal/roles"
	dErrors "brokergate/pkg/domain-errors"
)

type countingRecorder struct {
	mu       sync.Mutex
	applied  map[string]int
	rejected map[string]int // kind + "/" + reason
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{applied: map[string]int{}, rejected: map[string]int{}}
}

func (r *countingRecorder) EditApplied(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied[kind]++
}

func (r *countingRecorder) EditRejected(kind, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected[kind+"/"+reason]++
}

type capturingHook struct {
	mu     sync.Mutex
	calls  int
	before *lifecycle.Record
	after  *lifecycle.Record
	err    error
}

func (h *capturingHook) AfterApply(_ context.Context, before, after *lifecycle.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	h.before = before
	h.after = after
	return h.err
}

type EngineSuite struct {
	suite.Suite
	ctx      context.Context
	store    *recordsmem.Store
	audits   *auditmem.Store
	recorder *countingRecorder
	hook     *capturingHook
	engine   *lifecycle.Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = recordsmem.New()
	s.audits = auditmem.New()
	s.recorder = newCountingRecorder()
	s.hook = &capturingHook{}

	registry, err := lifecycle.NewRegistry(claims.MustBlueprint(), policies.MustBlueprint())
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.engine = lifecycle.NewEngine(
		registry,
		s.store,
		audit.NewPublisher(s.audits),
		recordsmem.NewTxRunner(),
		logger,
		lifecycle.WithRecorder(s.recorder),
		lifecycle.WithHooks(s.hook),
	)
}

func (s *EngineSuite) seed(kind string, status lifecycle.StateName, fields lifecycle.Fields) *lifecycle.Record {
	rec := &lifecycle.Record{
		ID:     uuid.New(),
		Kind:   kind,
		Status: status,
		Fields: fields,
	}
	s.Require().NoError(s.store.Create(s.ctx, rec))
	return rec
}

func (s *EngineSuite) apply(rec *lifecycle.Record, role lifecycle.RoleID, fields lifecycle.Fields) (*lifecycle.Record, error) {
	actor := lifecycle.Actor{ID: uuid.NewString(), Role: role}
	return s.engine.ApplyEdit(s.ctx, rec.Kind, rec.ID, actor, lifecycle.EditRequest{Fields: fields})
}

// requireUnchanged asserts that a rejected edit left no trace: same status,
// same fields, no audit entry.
func (s *EngineSuite) requireUnchanged(rec *lifecycle.Record) {
	stored, err := s.store.Get(s.ctx, rec.Kind, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.Status, stored.Status)
	s.Equal(rec.Fields, stored.Fields)

	trail, err := s.audits.ListByRecord(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Empty(trail)
}

func (s *EngineSuite) TestFieldEditWithinScope() {
	rec := s.seed(policies.Kind, policies.StatePending, lifecycle.Fields{"clientId": "c-9"})

	updated, err := s.apply(rec, roles.Broker, lifecycle.Fields{"ambCopay": 10})
	s.Require().NoError(err)

	s.Equal(policies.StatePending, updated.Status)
	s.Equal(10, updated.Fields["ambCopay"])
	s.Equal("c-9", updated.Fields["clientId"])

	trail, err := s.audits.ListByRecord(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 1)
	entry := trail[0]
	s.Equal(policies.Kind, entry.EntityKind)
	s.Equal(string(roles.Broker), entry.ActorRole)
	s.Nil(entry.Transition)
	s.NotContains(entry.Before, "ambCopay")
	s.Equal(10, entry.After["ambCopay"])
}

func (s *EngineSuite) TestUnauthorizedRole() {
	rec := s.seed(policies.Kind, policies.StateActive, lifecycle.Fields{"policyNumber": "P-1"})

	_, err := s.apply(rec, roles.Broker, lifecycle.Fields{"notes": "tweak"})

	rej, ok := lifecycle.AsRejection(err)
	s.Require().True(ok)
	s.Equal(lifecycle.RejectedUnauthorized, rej.Kind)
	s.Equal(policies.StateActive, rej.State)
	s.Equal(roles.Broker, rej.Role)
	s.requireUnchanged(rec)
	s.Equal(1, s.recorder.rejected["policy/unauthorized"])
}

func (s *EngineSuite) TestForbiddenFields() {
	rec := s.seed(claims.Kind, claims.StateValidation, lifecycle.Fields{"amountClaimed": 400})

	_, err := s.apply(rec, roles.ClaimsAnalyst, lifecycle.Fields{
		"description":  "rewritten",
		"documentsUrl": "https://docs/1",
		"reviewNotes":  "ok",
	})

	rej, ok := lifecycle.AsRejection(err)
	s.Require().True(ok)
	s.Equal(lifecycle.RejectedForbiddenFields, rej.Kind)
	s.Equal([]string{"description", "documentsUrl"}, rej.Fields)
	s.requireUnchanged(rec)
}

func (s *EngineSuite) TestIllegalTransition() {
	rec := s.seed(claims.Kind, claims.StateDraft, lifecycle.Fields{})

	_, err := s.apply(rec, roles.Admin, lifecycle.Fields{"status": "SETTLED"})

	rej, ok := lifecycle.AsRejection(err)
	s.Require().True(ok)
	s.Equal(lifecycle.RejectedIllegalTransition, rej.Kind)
	s.Equal(claims.StateDraft, rej.From)
	s.Equal(claims.StateSettled, rej.To)
	s.requireUnchanged(rec)
}

func (s *EngineSuite) TestMissingRequirements() {
	rec := s.seed(claims.Kind, claims.StateSubmitted, lifecycle.Fields{"amountClaimed": 900})

	_, err := s.apply(rec, roles.ClaimsAnalyst, lifecycle.Fields{
		"status":         "SETTLED",
		"amountApproved": 850,
	})

	rej, ok := lifecycle.AsRejection(err)
	s.Require().True(ok)
	s.Equal(lifecycle.RejectedMissingRequirements, rej.Kind)
	s.Equal([]string{"settlementDate"}, rej.Fields)
	s.requireUnchanged(rec)
}

func (s *EngineSuite) TestRequirementsSatisfiedByStoredFields() {
	rec := s.seed(claims.Kind, claims.StateSubmitted, lifecycle.Fields{
		"amountClaimed":  900,
		"amountApproved": 850,
	})

	updated, err := s.apply(rec, roles.ClaimsAnalyst, lifecycle.Fields{
		"status":         "SETTLED",
		"settlementDate": "2026-09-01",
	})
	s.Require().NoError(err)
	s.Equal(claims.StateSettled, updated.Status)
	s.Equal(850, updated.Fields["amountApproved"])

	trail, err := s.audits.ListByRecord(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 1)
	s.Require().NotNil(trail[0].Transition)
	s.Equal("SUBMITTED", trail[0].Transition.From)
	s.Equal("SETTLED", trail[0].Transition.To)
}

func (s *EngineSuite) TestExplicitNullClearsRequiredField() {
	rec := s.seed(claims.Kind, claims.StateSubmitted, lifecycle.Fields{
		"amountApproved": 850,
		"settlementDate": "2026-09-01",
	})

	_, err := s.apply(rec, roles.Admin, lifecycle.Fields{
		"status":         "SETTLED",
		"settlementDate": nil,
	})

	rej, ok := lifecycle.AsRejection(err)
	s.Require().True(ok)
	s.Equal(lifecycle.RejectedMissingRequirements, rej.Kind)
	s.Equal([]string{"settlementDate"}, rej.Fields)
	s.requireUnchanged(rec)
}

func (s *EngineSuite) TestPermissionCheckedBeforeFieldScope() {
	rec := s.seed(claims.Kind, claims.StateSubmitted, lifecycle.Fields{})

	// Broker is not an editor in SUBMITTED; the payload also touches a field
	// outside scope and requests an illegal transition. Permission wins.
	_, err := s.apply(rec, roles.Broker, lifecycle.Fields{
		"policyId": "pol-1",
		"status":   "DRAFT",
	})

	rej, ok := lifecycle.AsRejection(err)
	s.Require().True(ok)
	s.Equal(lifecycle.RejectedUnauthorized, rej.Kind)
}

func (s *EngineSuite) TestFieldScopeCheckedBeforeTransition() {
	rec := s.seed(claims.Kind, claims.StateSubmitted, lifecycle.Fields{})

	_, err := s.apply(rec, roles.Admin, lifecycle.Fields{
		"policyId": "pol-1",
		"status":   "SETTLED",
	})

	rej, ok := lifecycle.AsRejection(err)
	s.Require().True(ok)
	s.Equal(lifecycle.RejectedForbiddenFields, rej.Kind)
	s.Equal([]string{"policyId"}, rej.Fields)
}

func (s *EngineSuite) TestStatusEqualToCurrentIsFieldEdit() {
	rec := s.seed(policies.Kind, policies.StatePending, lifecycle.Fields{})

	updated, err := s.apply(rec, roles.Broker, lifecycle.Fields{
		"status": "PENDING",
		"notes":  "unchanged state",
	})
	s.Require().NoError(err)
	s.Equal(policies.StatePending, updated.Status)

	trail, err := s.audits.ListByRecord(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 1)
	s.Nil(trail[0].Transition)
}

func (s *EngineSuite) TestTerminalStateHasNoExits() {
	rec := s.seed(policies.Kind, policies.StateExpired, lifecycle.Fields{})

	_, err := s.apply(rec, roles.Admin, lifecycle.Fields{"status": "ACTIVE"})

	rej, ok := lifecycle.AsRejection(err)
	s.Require().True(ok)
	s.Equal(lifecycle.RejectedIllegalTransition, rej.Kind)
	s.requireUnchanged(rec)
}

func (s *EngineSuite) TestUnknownRecord() {
	_, err := s.engine.ApplyEdit(s.ctx, claims.Kind, uuid.New(),
		lifecycle.Actor{ID: "a", Role: roles.Admin},
		lifecycle.EditRequest{Fields: lifecycle.Fields{"reviewNotes": "x"}})

	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EngineSuite) TestUnknownStateInPayload() {
	rec := s.seed(claims.Kind, claims.StateDraft, lifecycle.Fields{})

	_, err := s.apply(rec, roles.Admin, lifecycle.Fields{"status": "ARCHIVED"})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	s.requireUnchanged(rec)
}

func (s *EngineSuite) TestNonStringStatus() {
	rec := s.seed(claims.Kind, claims.StateDraft, lifecycle.Fields{})

	_, err := s.apply(rec, roles.Admin, lifecycle.Fields{"status": 7})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *EngineSuite) TestUnregisteredKind() {
	_, err := s.engine.ApplyEdit(s.ctx, "invoice", uuid.New(),
		lifecycle.Actor{ID: "a", Role: roles.Admin},
		lifecycle.EditRequest{Fields: lifecycle.Fields{}})

	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *EngineSuite) TestHooksRunAfterApply() {
	rec := s.seed(policies.Kind, policies.StatePending, lifecycle.Fields{"clientId": "c-1"})

	_, err := s.apply(rec, roles.Broker, lifecycle.Fields{"notes": "hello"})
	s.Require().NoError(err)

	s.Equal(1, s.hook.calls)
	s.Require().NotNil(s.hook.before)
	s.Require().NotNil(s.hook.after)
	s.NotContains(s.hook.before.Fields, "notes")
	s.Equal("hello", s.hook.after.Fields["notes"])
}

func (s *EngineSuite) TestHooksSkippedOnRejection() {
	rec := s.seed(policies.Kind, policies.StateActive, lifecycle.Fields{})

	_, err := s.apply(rec, roles.Broker, lifecycle.Fields{"notes": "x"})
	s.Error(err)
	s.Equal(0, s.hook.calls)
}

func (s *EngineSuite) TestHookFailureDoesNotAffectResult() {
	s.hook.err = context.DeadlineExceeded
	rec := s.seed(policies.Kind, policies.StatePending, lifecycle.Fields{})

	updated, err := s.apply(rec, roles.Broker, lifecycle.Fields{"notes": "x"})
	s.Require().NoError(err)
	s.Equal("x", updated.Fields["notes"])
	s.Equal(1, s.hook.calls)
}

func (s *EngineSuite) TestRecorderCountsOutcomes() {
	rec := s.seed(policies.Kind, policies.StatePending, lifecycle.Fields{})

	_, err := s.apply(rec, roles.Broker, lifecycle.Fields{"notes": "x"})
	s.Require().NoError(err)
	_, err = s.apply(rec, roles.Broker, lifecycle.Fields{"status": "ACTIVE"})
	s.Error(err)

	s.Equal(1, s.recorder.applied["policy"])
	s.Equal(1, s.recorder.rejected["policy/missing_requirements"])
}

// TestConcurrentTransitionsOneWins races a settlement against a return on the
// same SUBMITTED claim. Both transitions are individually legal from
// SUBMITTED, but the loser re-reads the winner's terminal state under lock
// and is rejected.
func (s *EngineSuite) TestConcurrentTransitionsOneWins() {
	rec := s.seed(claims.Kind, claims.StateSubmitted, lifecycle.Fields{
		"amountApproved": 500,
		"settlementDate": "2026-09-01",
		"returnReason":   "needs receipts",
	})

	edits := []lifecycle.Fields{
		{"status": "SETTLED"},
		{"status": "RETURNED"},
	}
	errs := make([]error, len(edits))

	var wg sync.WaitGroup
	for i, fields := range edits {
		wg.Add(1)
		go func(i int, fields lifecycle.Fields) {
			defer wg.Done()
			_, errs[i] = s.apply(rec, roles.Admin, fields)
		}(i, fields)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		rej, ok := lifecycle.AsRejection(err)
		s.Require().True(ok, "loser must be a rule rejection, got %v", err)
		s.Equal(lifecycle.RejectedIllegalTransition, rej.Kind)
		rejected++
	}
	s.Equal(1, succeeded)
	s.Equal(1, rejected)

	stored, err := s.store.Get(s.ctx, rec.Kind, rec.ID)
	s.Require().NoError(err)
	s.Contains([]lifecycle.StateName{claims.StateSettled, claims.StateReturned}, stored.Status)

	trail, err := s.audits.ListByRecord(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Len(trail, 1)
}
