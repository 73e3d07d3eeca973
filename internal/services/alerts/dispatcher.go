package alerts

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Bwilkie91/camera/internal/config"
	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/models"
	"github.com/Bwilkie91/camera/internal/services/dedup"
)

// DefaultTimeout bounds a single sink call.
const DefaultTimeout = 5 * time.Second

// Sink delivers alert payloads to an external collaborator.
type Sink interface {
	Send(ctx context.Context, payload models.AlertPayload) error
}

// Trigger is a dispatch candidate from one analysis cycle.
type Trigger struct {
	ThreatScore int
	CameraID    string
	Kind        models.EventKind
	Timestamp   time.Time
	Metadata    map[string]any
}

// Dispatcher decides whether a trigger becomes an alert and hands the
// payload to the sink. Its cooldown is independent of the event
// deduplicator and is shared by all cameras. Safe for concurrent use.
type Dispatcher struct {
	mu      sync.Mutex
	policy  config.AlertPolicy
	gate    *dedup.Gate
	sink    Sink
	timeout time.Duration
	logger  *logger.Logger
}

// NewDispatcher creates a dispatcher. A nil sink evaluates triggers
// without delivering them.
func NewDispatcher(policy config.AlertPolicy, sink Sink, timeout time.Duration, logger *logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		policy:  policy,
		gate:    dedup.NewGate(cooldown(policy)),
		sink:    sink,
		timeout: timeout,
		logger:  logger,
	}
}

func cooldown(p config.AlertPolicy) time.Duration {
	return time.Duration(p.CooldownSeconds * float64(time.Second))
}

// SetPolicy replaces the trigger policy. Cooldown history is kept.
func (d *Dispatcher) SetPolicy(policy config.AlertPolicy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.policy = policy
	d.gate.SetCooldown(cooldown(policy))
}

// Severity grades a threat score against the policy levels.
func (d *Dispatcher) Severity(score int) models.Severity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return severity(d.policy, score)
}

func severity(p config.AlertPolicy, score int) models.Severity {
	switch {
	case score >= p.HighLevel:
		return models.SeverityHigh
	case score >= p.MediumLevel:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// check applies the trigger predicate and, when it passes, consumes the
// cooldown for the trigger's kind.
func (d *Dispatcher) check(t Trigger) (models.Severity, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t.Kind == "" || t.Kind == models.KindNone {
		return "", false
	}
	if len(d.policy.Kinds) > 0 && !slices.Contains(d.policy.Kinds, t.Kind) {
		return "", false
	}
	if t.ThreatScore < d.policy.MinThreat {
		return "", false
	}
	if !d.gate.Allow(t.Kind, "", t.Timestamp) {
		return "", false
	}
	return severity(d.policy, t.ThreatScore), true
}

// Payload builds the structured alert for a trigger.
func Payload(t Trigger, sev models.Severity) models.AlertPayload {
	meta := make(map[string]any, len(t.Metadata))
	for k, v := range t.Metadata {
		meta[k] = v
	}
	return models.AlertPayload{
		EventType:   t.Kind,
		Severity:    sev,
		CameraID:    t.CameraID,
		Timestamp:   t.Timestamp.UTC(),
		ThreatScore: t.ThreatScore,
		Metadata:    meta,
	}
}

// Dispatch evaluates t and delivers an alert when it triggers. It reports
// whether the trigger fired. A sink failure is returned wrapped in
// ErrCollaboratorUnavailable; the cooldown is consumed either way.
func (d *Dispatcher) Dispatch(ctx context.Context, t Trigger) (bool, error) {
	sev, ok := d.check(t)
	if !ok {
		return false, nil
	}

	payload := Payload(t, sev)
	d.logger.Info("🚨 Alert %s (%s) on camera %s, threat %d", payload.EventType, payload.Severity, payload.CameraID, payload.ThreatScore)

	if d.sink == nil {
		return true, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.sink.Send(sendCtx, payload); err != nil {
		return true, fmt.Errorf("%w: alert delivery: %v", models.ErrCollaboratorUnavailable, err)
	}
	return true, nil
}
