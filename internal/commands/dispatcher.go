package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/modgate/backend/internal/audit"
	"github.com/modgate/backend/internal/gate"
	"github.com/modgate/backend/internal/metrics"
	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

const (
	OutcomeDenied  = "denied"
	OutcomeSuccess = "success"
	OutcomeError   = "error"

	genericErrorMessage = "An error occurred while executing this command. The incident has been logged."
	defaultSuccess      = "Done."
)

// Outcome is returned to the platform collaborator for every invocation.
type Outcome struct {
	Status  string `json:"outcome"`
	Message string `json:"message"`
	CaseID  string `json:"case_id,omitempty"`
}

// Authorizer is the gate as seen by the dispatcher.
type Authorizer interface {
	Evaluate(ctx context.Context, inv *models.Invocation, d *models.CommandDescriptor) (gate.Decision, error)
}

// ErrorReporter receives failure detail for operators. It must not block.
type ErrorReporter interface {
	Report(ctx context.Context, r models.ErrorReport)
}

type Dispatcher struct {
	registry       *Registry
	gate           Authorizer
	audit          AuditLogger
	reporter       ErrorReporter
	metrics        *metrics.Metrics
	clock          clockwork.Clock
	log            *zap.Logger
	handlerTimeout time.Duration
}

func NewDispatcher(registry *Registry, g Authorizer, al AuditLogger, reporter ErrorReporter,
	m *metrics.Metrics, clock clockwork.Clock, log *zap.Logger, handlerTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:       registry,
		gate:           g,
		audit:          al,
		reporter:       reporter,
		metrics:        m,
		clock:          clock,
		log:            log,
		handlerTimeout: handlerTimeout,
	}
}

// Dispatch looks the command up and runs it. Every call produces one audit
// record: a denial, an execution record or a failure record.
func (d *Dispatcher) Dispatch(ctx context.Context, inv *models.Invocation) Outcome {
	cmd, ok := d.registry.Lookup(inv.CommandName)
	if !ok {
		err := &models.NotFoundError{Entity: "command", ID: inv.CommandName}
		return d.fail(ctx, inv, err, false)
	}
	return d.Run(ctx, inv, cmd)
}

func (d *Dispatcher) Run(ctx context.Context, inv *models.Invocation, cmd *Command) Outcome {
	desc := cmd.Descriptor

	dec, err := d.gate.Evaluate(ctx, inv, &desc)
	if err != nil {
		return d.fail(ctx, inv, err, false)
	}
	if !dec.Proceed() {
		return d.deny(ctx, inv, dec.Denial)
	}

	recorder := newActionRecorder(d.audit, inv)
	msg, panicked, err := d.invoke(ctx, cmd.Handler, &Call{Invocation: inv, Descriptor: &desc, Audit: recorder})
	if err != nil {
		out := d.fail(ctx, inv, err, panicked)
		if out.CaseID == "" {
			out.CaseID = recorder.CaseID()
		}
		return out
	}

	caseID := recorder.CaseID()
	if caseID == "" {
		extra := map[string]any{}
		if inv.ChannelID != "" {
			extra["channel_id"] = inv.ChannelID
		}
		caseID, err = d.audit.Record(ctx, audit.Entry{
			CommunityID: inv.CommunityID(),
			ActorID:     inv.Actor.ID,
			TargetID:    singleTarget(inv),
			ActionType:  inv.CommandName,
			Extra:       extra,
		})
		if err != nil {
			// The effect already happened; report the lost record but keep the success.
			d.log.Error("execution record failed", zap.String("command", inv.CommandName), zap.Error(err))
			d.report(ctx, inv, models.Classify(err), err, "", false)
		}
	}

	if msg == "" {
		msg = defaultSuccess
	}
	d.metrics.DispatchOutcome(inv.CommandName, OutcomeSuccess)
	return Outcome{Status: OutcomeSuccess, Message: msg, CaseID: caseID}
}

// Fail reports an error raised before dispatch, such as a failed
// resolution, as an error outcome with its failure record.
func (d *Dispatcher) Fail(ctx context.Context, inv *models.Invocation, err error) Outcome {
	return d.fail(ctx, inv, err, false)
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, call *Call) (msg string, panicked bool, err error) {
	hctx := ctx
	if d.handlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, d.handlerTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panic",
				zap.String("command", call.Invocation.CommandName),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			msg, panicked, err = "", true, fmt.Errorf("panic: %v", r)
		}
	}()
	msg, err = h(hctx, call)
	return msg, false, err
}

func (d *Dispatcher) deny(ctx context.Context, inv *models.Invocation, denial *models.DenialError) Outcome {
	caseID, err := d.audit.RecordDenial(ctx, inv, denial)
	if err != nil {
		d.log.Error("denial record failed",
			zap.String("command", inv.CommandName),
			zap.String("reason", denial.Reason),
			zap.Error(err),
		)
	}
	d.metrics.DispatchOutcome(inv.CommandName, OutcomeDenied)
	return Outcome{Status: OutcomeDenied, Message: denial.Message, CaseID: caseID}
}

// fail classifies err, reports it to operators, writes the failure record and
// converts it into a message that is safe to show.
func (d *Dispatcher) fail(ctx context.Context, inv *models.Invocation, err error, panicked bool) Outcome {
	kind := models.Classify(err)
	if panicked {
		kind = models.KindUnclassified
	}

	caseID, rerr := d.audit.RecordFailure(ctx, inv, kind)
	if rerr != nil {
		d.log.Error("failure record failed", zap.String("command", inv.CommandName), zap.Error(rerr))
	}

	d.log.Error("command failed",
		zap.String("command", inv.CommandName),
		zap.String("community_id", inv.CommunityID()),
		zap.String("actor_id", inv.Actor.ID),
		zap.String("kind", string(kind)),
		zap.String("case_id", caseID),
		zap.Error(err),
	)
	d.report(ctx, inv, kind, err, caseID, panicked)
	d.metrics.DispatchOutcome(inv.CommandName, OutcomeError)

	return Outcome{Status: OutcomeError, Message: userMessage(err, kind), CaseID: caseID}
}

func (d *Dispatcher) report(ctx context.Context, inv *models.Invocation, kind models.ErrorKind, err error, caseID string, panicked bool) {
	if d.reporter == nil {
		return
	}
	d.reporter.Report(context.WithoutCancel(ctx), models.ErrorReport{
		Command:     inv.CommandName,
		CommunityID: inv.CommunityID(),
		ChannelID:   inv.ChannelID,
		ActorID:     inv.Actor.ID,
		Kind:        kind,
		Error:       err.Error(),
		CaseID:      caseID,
		Panic:       panicked,
		OccurredAt:  d.clock.Now().UTC(),
	})
}

// userMessage never includes raw error text except for validation and
// not-found errors, whose text is built from safe fields.
func userMessage(err error, kind models.ErrorKind) string {
	switch kind {
	case models.KindValidation:
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			return "Invalid " + ve.Field + ": " + ve.Rule + "."
		}
	case models.KindNotFound:
		var nf *models.NotFoundError
		if errors.As(err, &nf) {
			if nf.Entity == "command" {
				return "Unknown command."
			}
			return capitalize(nf.Entity) + " not found."
		}
	case models.KindPermissionDenied:
		return "You are not allowed to do that."
	case models.KindPersistence:
		return "The service is temporarily unavailable. Please try again later."
	}
	return genericErrorMessage
}

func singleTarget(inv *models.Invocation) string {
	if len(inv.Targets) == 1 {
		return inv.Targets[0].ID
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
