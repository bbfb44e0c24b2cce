// Package idempotency implements the locate-or-create protocol shared by every
// money-moving command: fingerprint the payload, find the record stored under
// the caller's key with a row lock, and either replay it, reject the reuse,
// or run the command once.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anticipa/backend/internal/application/txscope"
	"github.com/anticipa/backend/internal/domain/audit"
	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/domain/shared/canonical"
	applog "github.com/anticipa/backend/internal/infrastructure/logger"
	"github.com/anticipa/backend/internal/infrastructure/telemetry"
)

// Outcome is the result class of one protocol run
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeReplayed Outcome = "replayed"
	OutcomeConflict Outcome = "conflict"
	OutcomeFailed   Outcome = "failed"
)

// ErrKeyTaken is returned by an operation's Execute when its keyed insert
// found the key already taken by a concurrent writer.
var ErrKeyTaken = errors.New("idempotency key taken by a concurrent writer")

// Result carries the operation's value and how it was obtained
type Result[T any] struct {
	Value       T
	Outcome     Outcome
	PayloadHash string
}

// Replayed reports whether the value came from a prior execution
func (r Result[T]) Replayed() bool {
	return r.Outcome == OutcomeReplayed
}

// Operation describes one keyed mutation
type Operation[T any] struct {
	// Name identifies the operation in logs, metrics and failure records
	Name    string
	Command shared.CommandContext
	// Payload is the normalized command payload; its fingerprint is the payload hash
	Payload map[string]any
	// Find locks and returns the record stored under the command's key.
	// storedHash is empty for legacy records written before hashes were kept.
	Find func(ctx context.Context, repos txscope.Repositories) (existing T, storedHash string, found bool, err error)
	// SameIntent compares a legacy record's identifying fields with the new command
	SameIntent func(existing T) bool
	// Execute performs the side effects once and persists the keyed record with payloadHash
	Execute func(ctx context.Context, repos txscope.Repositories, payloadHash string) (T, error)
}

// Decide classifies a found record. Matching hashes replay; a missing stored
// hash falls back to sameIntent; anything else conflicts.
func Decide(storedHash, newHash string, sameIntent func() bool) Outcome {
	if storedHash != "" {
		if storedHash == newHash {
			return OutcomeReplayed
		}
		return OutcomeConflict
	}
	if sameIntent != nil && sameIntent() {
		return OutcomeReplayed
	}
	return OutcomeConflict
}

// MetricsRecorder receives one observation per protocol run
type MetricsRecorder interface {
	RecordMutation(ctx context.Context, operation, outcome string)
}

// Protocol runs operations inside a transaction scope
type Protocol struct {
	scope       txscope.TransactionScope
	failures    audit.Repository
	hints       HintStore
	hintTTL     time.Duration
	isDuplicate func(error) bool
	metrics     MetricsRecorder
	logger      *zap.Logger
}

// Option configures a Protocol
type Option func(*Protocol)

// WithFailureLog sets the repository used for best-effort failure records.
// It must write outside the mutation's transaction.
func WithFailureLog(repo audit.Repository) Option {
	return func(p *Protocol) {
		p.failures = repo
	}
}

// WithHintStore enables the fast-path conflict check
func WithHintStore(store HintStore, ttl time.Duration) Option {
	return func(p *Protocol) {
		p.hints = store
		p.hintTTL = ttl
	}
}

// WithDuplicateDetector sets the classifier for storage unique violations
func WithDuplicateDetector(fn func(error) bool) Option {
	return func(p *Protocol) {
		p.isDuplicate = fn
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(p *Protocol) {
		p.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Protocol) {
		p.logger = logger
	}
}

// NewProtocol creates a protocol over a transaction scope
func NewProtocol(scope txscope.TransactionScope, opts ...Option) *Protocol {
	p := &Protocol{
		scope:   scope,
		hintTTL: 24 * time.Hour,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Protocol) raceLost(err error) bool {
	if errors.Is(err, ErrKeyTaken) {
		return true
	}
	return p.isDuplicate != nil && p.isDuplicate(err)
}

// Run executes op under the protocol. A unique violation on the keyed insert
// is retried exactly once in a fresh transaction, which then finds the
// winner's record and replays or conflicts; a second race propagates.
func Run[T any](ctx context.Context, p *Protocol, op Operation[T]) (Result[T], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "idempotency", op.Name)
	defer span.End()

	var zero Result[T]
	if err := op.Command.Validate(); err != nil {
		telemetry.RecordError(span, err)
		p.recordFailure(ctx, op.Name, op.Command, "", err)
		return zero, err
	}
	key := op.Command.Key()
	ctx = txscope.WithTenant(ctx, op.Command.TenantID)
	ctx, _ = applog.WithMutation(ctx, p.logger, applog.Mutation{
		Operation:      op.Name,
		TenantID:       op.Command.TenantID.String(),
		ActorID:        op.Command.Actor.ID,
		IdempotencyKey: key,
		RequestID:      op.Command.RequestID,
	})

	hash, err := canonical.Fingerprint(op.Payload)
	if err != nil {
		err = shared.NewValidationError("invalid_payload", "payload cannot be fingerprinted: %v", err)
		telemetry.RecordError(span, err)
		p.recordFailure(ctx, op.Name, op.Command, "", err)
		return zero, err
	}
	telemetry.SetAttributes(span,
		"tenant_id", op.Command.TenantID.String(),
		"idempotency_key", key,
		"payload_hash", hash,
	)

	logger := applog.L(ctx)

	if cached, ok := p.lookupHint(ctx, op.Name, op.Command, logger); ok && cached != hash {
		err := conflictError(op.Name, key)
		logger.Warn("Idempotency conflict detected from hint cache")
		telemetry.RecordError(span, err)
		p.observe(ctx, op.Name, OutcomeConflict)
		p.recordFailure(ctx, op.Name, op.Command, hash, err)
		return Result[T]{Outcome: OutcomeConflict, PayloadHash: hash}, err
	}

	var res Result[T]
	for attempt := 1; attempt <= 2; attempt++ {
		res, err = attemptOnce(ctx, p, op, hash)
		if err == nil {
			break
		}
		if attempt == 1 && p.raceLost(err) {
			logger.Info("Concurrent writer won the idempotency key, retrying as replay", zap.Error(err))
			continue
		}
		break
	}

	if err != nil {
		if res.Outcome == "" {
			res.Outcome = OutcomeFailed
		}
		switch {
		case shared.IsInvariantViolation(err):
			logger.Error("Invariant violation during mutation", zap.Error(err), zap.Stack("stack"))
		case res.Outcome == OutcomeConflict:
			logger.Warn("Idempotency conflict", zap.String("payload_hash", hash))
		default:
			logger.Warn("Mutation failed", zap.String("error_code", shared.ErrorCode(err)), zap.Error(err))
		}
		telemetry.RecordError(span, err)
		p.observe(ctx, op.Name, res.Outcome)
		p.recordFailure(ctx, op.Name, op.Command, hash, err)
		return res, err
	}

	if res.Outcome == OutcomeReplayed {
		logger.Debug("Replayed idempotent mutation")
	}
	p.storeHint(ctx, op.Name, op.Command, hash, logger)
	p.observe(ctx, op.Name, res.Outcome)
	telemetry.SetAttribute(span, "outcome", string(res.Outcome))
	return res, nil
}

func attemptOnce[T any](ctx context.Context, p *Protocol, op Operation[T], hash string) (Result[T], error) {
	var res Result[T]
	err := p.scope.Execute(ctx, func(repos txscope.Repositories) error {
		existing, storedHash, found, err := op.Find(ctx, repos)
		if err != nil {
			return err
		}
		if found {
			outcome := Decide(storedHash, hash, func() bool {
				return op.SameIntent != nil && op.SameIntent(existing)
			})
			res = Result[T]{Value: existing, Outcome: outcome, PayloadHash: hash}
			if outcome == OutcomeConflict {
				return conflictError(op.Name, op.Command.Key())
			}
			return nil
		}

		created, err := op.Execute(ctx, repos, hash)
		if err != nil {
			return err
		}
		res = Result[T]{Value: created, Outcome: OutcomeCreated, PayloadHash: hash}
		return nil
	})
	if err != nil && res.Outcome != OutcomeConflict {
		res = Result[T]{PayloadHash: hash}
	}
	return res, err
}

func conflictError(operation, key string) error {
	return shared.NewConflictError("idempotency_conflict",
		"idempotency key %q was already used for a different %s request", key, operation)
}

// Reject records a command refused before it reached Run, such as one that
// failed payload validation, and returns err unchanged.
func (p *Protocol) Reject(ctx context.Context, operation string, cmd shared.CommandContext, err error) error {
	p.observe(ctx, operation, OutcomeFailed)
	p.recordFailure(ctx, operation, cmd, "", err)
	return err
}

func (p *Protocol) observe(ctx context.Context, operation string, outcome Outcome) {
	if p.metrics != nil {
		p.metrics.RecordMutation(ctx, operation, string(outcome))
	}
}

// recordFailure writes the forensic failure record. It never masks the
// caller's error; its own failure is only logged.
func (p *Protocol) recordFailure(ctx context.Context, operation string, cmd shared.CommandContext, hash string, cause error) {
	if p.failures == nil {
		return
	}
	code := shared.ErrorCode(cause)
	if code == "" {
		code = "internal_error"
	}
	rec := audit.NewRecord(cmd.TenantID, audit.ActionMutationFailed, cmd.Actor, operation, "")
	rec.IdempotencyKey = cmd.Key()
	rec.ErrorCode = code
	rec.Details["message"] = cause.Error()
	rec.Details["request_id"] = cmd.RequestID
	if hash != "" {
		rec.Details["payload_hash"] = hash
	}

	// The mutation's context may already be cancelled; the record is still worth writing.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.failures.Append(writeCtx, rec); err != nil {
		p.logger.Warn("Failed to write mutation failure log",
			zap.String("operation", operation),
			zap.String("idempotency_key", cmd.Key()),
			zap.String("error_code", code),
			zap.Error(err),
		)
	}
}

func hintKey(operation string, cmd shared.CommandContext) string {
	return fmt.Sprintf("%s:%s:%s", cmd.TenantID, operation, cmd.Key())
}

func (p *Protocol) lookupHint(ctx context.Context, operation string, cmd shared.CommandContext, logger *zap.Logger) (string, bool) {
	if p.hints == nil {
		return "", false
	}
	hash, ok, err := p.hints.Get(ctx, hintKey(operation, cmd))
	if err != nil {
		logger.Warn("Idempotency hint lookup failed", zap.Error(err))
		return "", false
	}
	return hash, ok
}

func (p *Protocol) storeHint(ctx context.Context, operation string, cmd shared.CommandContext, hash string, logger *zap.Logger) {
	if p.hints == nil {
		return
	}
	if err := p.hints.Put(ctx, hintKey(operation, cmd), hash, p.hintTTL); err != nil {
		logger.Warn("Idempotency hint store failed", zap.Error(err))
	}
}
