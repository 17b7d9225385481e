// Package alert evaluates threshold rules against the metric registry on a
// fixed interval and dispatches notifications with cooldown suppression.
//
// Each rule is a two-state machine: Armed fires on breach and enters
// Cooldown; Cooldown re-arms once the cooldown period elapses, regardless
// of whether the condition cleared in between. While cooling down the
// condition is still evaluated for observability, but never dispatches.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/kanshi/internal/metrics"
	"github.com/ashita-ai/kanshi/internal/model"
	"github.com/ashita-ai/kanshi/internal/notify"
)

type ruleState int

const (
	stateArmed ruleState = iota
	stateCooldown
)

type boundRule struct {
	rule      model.AlertRule
	state     ruleState
	lastFired time.Time
}

// Engine owns rule state and the evaluation loop. Rule state is mutated
// only by the engine's own tick, never by external callers.
type Engine struct {
	reg             *metrics.Registry
	logger          *slog.Logger
	interval        time.Duration
	dispatchTimeout time.Duration

	mu        sync.Mutex
	rules     map[string]*boundRule
	ruleOrder []string
	notifiers []notify.Notifier
	active    map[string]model.Alert // most recent firing per rule

	// onFire is invoked after each firing, outside the engine lock.
	// The façade uses it to mirror alerts into the event stream.
	onFire func(model.Alert)

	now func() time.Time // test seam

	cancelLoop context.CancelFunc
	done       chan struct{}
}

// NewEngine creates an engine. Call AddRule/RegisterNotifier before Start.
func NewEngine(reg *metrics.Registry, logger *slog.Logger, interval, dispatchTimeout time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		reg:             reg,
		logger:          logger,
		interval:        interval,
		dispatchTimeout: dispatchTimeout,
		rules:           make(map[string]*boundRule),
		active:          make(map[string]model.Alert),
		now:             time.Now,
		done:            make(chan struct{}),
	}
}

// SetFireHook registers a callback invoked once per firing. Must be called
// before Start.
func (e *Engine) SetFireHook(fn func(model.Alert)) {
	e.onFire = fn
}

// AddRule validates and registers a rule. Rule names are unique; an unset
// severity defaults to warning.
func (e *Engine) AddRule(r model.AlertRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Severity == "" {
		r.Severity = model.SeverityWarning
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[r.Name]; exists {
		return fmt.Errorf("alert: rule %q already registered", r.Name)
	}
	e.rules[r.Name] = &boundRule{rule: r, state: stateArmed}
	e.ruleOrder = append(e.ruleOrder, r.Name)
	return nil
}

// Rules returns the registered rules in registration order.
func (e *Engine) Rules() []model.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.AlertRule, 0, len(e.ruleOrder))
	for _, name := range e.ruleOrder {
		out = append(out, e.rules[name].rule)
	}
	return out
}

// RegisterNotifier adds a delivery channel. Rules address channels by the
// notifier's Name; rules with no channels dispatch to every notifier.
func (e *Engine) RegisterNotifier(n notify.Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifiers = append(e.notifiers, n)
}

// ActiveAlerts returns the most recent firing of each rule that has ever
// fired, sorted by rule name.
func (e *Engine) ActiveAlerts() []model.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleName < out[j].RuleName })
	return out
}

// Start begins the background evaluation loop. Call Stop to halt it.
func (e *Engine) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancelLoop = cancel
	go e.evalLoop(loopCtx)
}

// Stop signals the loop to halt and waits for the in-flight tick to finish,
// bounded by ctx.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancelLoop == nil {
		return nil
	}
	e.cancelLoop()
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("alert: stop: %w", ctx.Err())
	}
}

func (e *Engine) evalLoop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.EvaluateOnce(ctx)
		}
	}
}

// EvaluateOnce runs a single evaluation tick over every rule. A rule whose
// metric is absent (or whose evaluation fails) is skipped without halting
// the remaining rules.
func (e *Engine) EvaluateOnce(ctx context.Context) {
	var fired []firing

	e.mu.Lock()
	notifiers := make([]notify.Notifier, len(e.notifiers))
	copy(notifiers, e.notifiers)
	for _, name := range e.ruleOrder {
		br := e.rules[name]
		if a, ok := e.evaluateRule(br); ok {
			e.active[name] = a
			fired = append(fired, firing{alert: a, channels: br.rule.Channels})
		}
	}
	e.mu.Unlock()

	// Dispatch and hooks run outside the lock so notifier latency never
	// blocks rule registration or ActiveAlerts.
	for _, f := range fired {
		e.reg.Increment("alerts_fired", 1, map[string]string{"rule": f.alert.RuleName})
		if e.onFire != nil {
			e.onFire(f.alert)
		}
		e.dispatch(ctx, f.alert, f.channels, notifiers)
	}
}

type firing struct {
	alert    model.Alert
	channels []string
}

// evaluateRule advances one rule's state machine. Caller holds e.mu.
func (e *Engine) evaluateRule(br *boundRule) (model.Alert, bool) {
	r := br.rule
	now := e.now()

	// Re-arm on cooldown expiry regardless of the condition's state.
	if br.state == stateCooldown && now.Sub(br.lastFired) >= r.CooldownPeriod {
		br.state = stateArmed
	}

	st, err := e.reg.Query(r.MetricName, r.Tags, r.DurationWindow)
	if err != nil {
		if errors.Is(err, metrics.ErrNoSeries) {
			e.logger.Debug("alert: rule skipped, no data", "rule", r.Name, "metric", r.MetricName)
		} else {
			e.logger.Warn("alert: rule evaluation failed", "rule", r.Name, "error", err)
		}
		return model.Alert{}, false
	}

	breached := r.Condition.Evaluate(st.Value, r.Threshold)
	if !breached || br.state != stateArmed {
		return model.Alert{}, false
	}

	br.state = stateCooldown
	br.lastFired = now
	return model.Alert{
		ID:         uuid.New(),
		RuleName:   r.Name,
		MetricName: r.MetricName,
		Tags:       r.Tags,
		Value:      st.Value,
		Threshold:  r.Threshold,
		Condition:  r.Condition,
		Severity:   r.Severity,
		Message:    fmt.Sprintf("%s is %g (%s %g)", r.MetricName, st.Value, r.Condition, r.Threshold),
		FiredAt:    now,
	}, true
}

// dispatch fans the alert out to the rule's channels. Each notifier gets
// its own bounded timeout; one channel's failure or hang never blocks or
// cancels the others, and failures are absorbed as warnings plus a
// notification_failures increment.
func (e *Engine) dispatch(ctx context.Context, alert model.Alert, channels []string, notifiers []notify.Notifier) {
	targets := notifiers
	if len(channels) > 0 {
		wanted := make(map[string]bool, len(channels))
		for _, c := range channels {
			wanted[c] = true
		}
		targets = nil
		for _, n := range notifiers {
			if wanted[n.Name()] {
				targets = append(targets, n)
			}
		}
	}

	g := new(errgroup.Group)
	for _, n := range targets {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
			defer cancel()
			if err := n.Send(sendCtx, alert); err != nil {
				e.logger.Warn("alert: notification failed",
					"rule", alert.RuleName, "channel", n.Name(), "error", err)
				e.reg.Increment("notification_failures", 1, map[string]string{"channel": n.Name()})
			}
			return nil
		})
	}
	_ = g.Wait()
}
