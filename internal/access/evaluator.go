package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phasegate.org/internal/ids"
	"phasegate.org/internal/obs"
	"phasegate.org/internal/project"
)

// PermissionReviewAccess lets a non-admin keep working on a project while it
// sits in the review phase.
const PermissionReviewAccess = "review_access"

// Working hours window, local time. Hour 9 inclusive, hour 18 exclusive.
const (
	workdayStartHour = 9
	workdayEndHour   = 18
)

// Decision is the outcome of one evaluation. The sub-reasons are part of the
// caller-visible contract: a denied caller is told which gate failed.
type Decision struct {
	Granted        bool `json:"granted"`
	HasPermissions bool `json:"hasPermissions"`
	IsWorkingHours bool `json:"isWorkingHours"`
	IsReviewPhase  bool `json:"isReviewPhase"`
}

// Evaluator makes context-aware access decisions. Every call appends exactly
// one AccessLog record, granted or not; callers cannot opt out of the audit
// trail.
type Evaluator struct {
	registry *Registry
	phases   PhaseLookup
	logs     AccessLogStore
	now      func() time.Time
	publish  func(AccessLog)
}

// EvaluatorOption configures the evaluator.
type EvaluatorOption func(*Evaluator)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		if fn != nil {
			e.now = fn
		}
	}
}

// WithPublisher registers a fan-out callback invoked after each decision is
// durably logged (e.g. the SSE stream).
func WithPublisher(fn func(AccessLog)) EvaluatorOption {
	return func(e *Evaluator) {
		e.publish = fn
	}
}

// NewEvaluator constructs the evaluator. The phase lookup may be nil when no
// project-scoped decisions will be made.
func NewEvaluator(registry *Registry, phases PhaseLookup, logs AccessLogStore, opts ...EvaluatorOption) (*Evaluator, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: role registry is required", ErrInvalidInput)
	}
	if logs == nil {
		return nil, fmt.Errorf("%w: access log store is required", ErrInvalidInput)
	}
	e := &Evaluator{registry: registry, phases: phases, logs: logs, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate decides whether the actor may perform an action that needs every
// permission in required, optionally scoped to a target project.
//
// Grant iff: the actor's compiled permissions cover all required ones, AND the
// request falls inside working hours (admins bypass), AND the target project
// is not in review (admins and holders of review_access bypass).
func (e *Evaluator) Evaluate(ctx context.Context, actor Actor, required []string, targetProjectID string, reqCtx Context) (Decision, error) {
	perms, err := e.registry.PermissionsFor(ctx, actor.RoleIDs)
	if err != nil {
		return Decision{}, err
	}
	permSet := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		permSet[p] = struct{}{}
	}

	hasPermissions := true
	for _, p := range required {
		if _, ok := permSet[p]; !ok {
			hasPermissions = false
			break
		}
	}

	if reqCtx.Time.IsZero() {
		reqCtx.Time = e.now()
	}
	hour := reqCtx.Time.Hour()
	isWorkingHours := hour >= workdayStartHour && hour < workdayEndHour

	isReviewPhase := false
	if targetProjectID != "" && e.phases != nil {
		phase, err := e.phases.CurrentPhase(ctx, targetProjectID)
		switch {
		case err == nil:
			isReviewPhase = phase == project.PhaseReview
		case errors.Is(err, project.ErrNotFound):
			// An unknown project imposes no phase gate; permission and
			// not-found handling belong to the guarded handler itself.
		default:
			return Decision{}, err
		}
	}

	_, hasReviewAccess := permSet[PermissionReviewAccess]
	granted := hasPermissions &&
		(isWorkingHours || actor.IsAdmin) &&
		(!isReviewPhase || actor.IsAdmin || hasReviewAccess)

	if err := e.record(ctx, actor.ID, granted, reqCtx); err != nil {
		return Decision{}, err
	}

	return Decision{
		Granted:        granted,
		HasPermissions: hasPermissions,
		IsWorkingHours: isWorkingHours,
		IsReviewPhase:  isReviewPhase,
	}, nil
}

// AuthorizeAdmin grants iff the actor is an admin. Denials flow through the
// same unconditional audit path as Evaluate.
func (e *Evaluator) AuthorizeAdmin(ctx context.Context, actor Actor, reqCtx Context) (bool, error) {
	if reqCtx.Time.IsZero() {
		reqCtx.Time = e.now()
	}
	if err := e.record(ctx, actor.ID, actor.IsAdmin, reqCtx); err != nil {
		return false, err
	}
	return actor.IsAdmin, nil
}

// Logs returns the most recent decision records, newest first.
func (e *Evaluator) Logs(ctx context.Context, limit int) ([]*AccessLog, error) {
	return e.logs.ListAccessLogs(ctx, limit)
}

func (e *Evaluator) record(ctx context.Context, userID string, granted bool, reqCtx Context) error {
	entry := &AccessLog{
		ID:        ids.New(),
		UserID:    userID,
		Action:    reqCtx.Action,
		Resource:  reqCtx.Resource,
		Granted:   granted,
		Time:      reqCtx.Time,
		Device:    reqCtx.Device,
		IPAddress: reqCtx.IPAddress,
	}
	if err := e.logs.AppendAccessLog(ctx, entry); err != nil {
		return fmt.Errorf("append access log: %w", err)
	}
	obs.AccessDecision(granted)
	if e.publish != nil {
		e.publish(*entry)
	}
	return nil
}
