// Package dispatch fans transition events out to the automations registered
// for them. It owns the mapping from a detected transition to a trigger
// interaction kind, the automation index lookup, content rendering, and the
// invocation of response action executors.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"streamwire/internal/actions"
	"streamwire/internal/common/logging"
	"streamwire/internal/providers"
	"streamwire/internal/storage"
)

// EventKind is the direction of a detected transition.
type EventKind string

const (
	// KindStarted means the entity appeared between two snapshots.
	KindStarted EventKind = "started"
	// KindEnded means the entity disappeared between two snapshots.
	KindEnded EventKind = "ended"
)

// Trigger interaction kinds automations register for.
const (
	TriggerInLive  = "in_live"
	TriggerOutLive = "out_live"
)

// TriggerInteraction maps the transition direction to the interaction kind
// automations are registered under.
func (k EventKind) TriggerInteraction() string {
	if k == KindEnded {
		return TriggerOutLive
	}
	return TriggerInLive
}

// Event is a detected state transition for one credential. Events are
// ephemeral: produced and consumed within a single detector pass, never
// persisted.
type Event struct {
	CredentialID string
	Provider     string
	Kind         EventKind
	Entity       providers.Entity
}

// Stats counts dispatch outcomes per automation id.
type Stats struct {
	Dispatched int64
	Failed     int64
}

// Dispatcher looks up matching automations for an event and invokes the
// response executor for each. A failing executor is logged and never blocks
// the remaining automations for the same event or the rest of the tick.
type Dispatcher struct {
	store     storage.Storage
	executors *actions.Registry
	logger    logging.Logger

	mu    sync.Mutex
	stats map[string]*Stats
}

func NewDispatcher(store storage.Storage, executors *actions.Registry) *Dispatcher {
	return &Dispatcher{
		store:     store,
		executors: executors,
		logger:    logging.GetGlobalLogger().WithFields(logging.String("component", "dispatcher")),
		stats:     make(map[string]*Stats),
	}
}

// Dispatch delivers one transition event to every matching automation and
// returns how many executors were invoked. Only the automation index lookup
// can fail; executor failures are logged per automation and swallowed so the
// caller can still commit the snapshot.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) (int, error) {
	automations, err := d.store.FindAutomations(ctx, event.Provider,
		event.Kind.TriggerInteraction(), event.CredentialID)
	if err != nil {
		return 0, fmt.Errorf("automation lookup failed: %w", err)
	}

	if len(automations) == 0 {
		return 0, nil
	}

	content := renderContent(event)

	invoked := 0
	for _, automation := range automations {
		if err := d.execute(ctx, automation, content); err != nil {
			d.logger.Error("Automation action failed", err,
				logging.String("automation_id", automation.ID),
				logging.String("response_interaction", automation.ResponseInteraction),
				logging.String("entity", event.Entity.Key),
			)
			d.record(automation.ID, false)
			continue
		}
		d.record(automation.ID, true)
		invoked++
	}

	d.logger.Debug("Event dispatched",
		logging.String("provider", event.Provider),
		logging.String("kind", string(event.Kind)),
		logging.String("entity", event.Entity.Key),
		logging.Int("automations", invoked),
	)
	return invoked, nil
}

func (d *Dispatcher) execute(ctx context.Context, automation *storage.Automation, content actions.Content) error {
	executor, err := d.executors.Get(automation.ResponseInteraction)
	if err != nil {
		return err
	}

	cred, err := d.store.GetCredential(ctx, automation.ResponseCredentialID)
	if err != nil {
		return fmt.Errorf("response credential unavailable: %w", err)
	}

	return executor.Execute(ctx, content, cred)
}

func (d *Dispatcher) record(automationID string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats, exists := d.stats[automationID]
	if !exists {
		stats = &Stats{}
		d.stats[automationID] = stats
	}
	if ok {
		stats.Dispatched++
	} else {
		stats.Failed++
	}
}

// StatsFor returns a copy of the dispatch counters for one automation.
func (d *Dispatcher) StatsFor(automationID string) Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	if stats, exists := d.stats[automationID]; exists {
		return *stats
	}
	return Stats{}
}

// renderContent builds the human-readable payload from the entity's display
// attributes. Pure formatting, no side effects.
func renderContent(event Event) actions.Content {
	name := event.Entity.Attr("user_name")
	if name == "" {
		name = event.Entity.Key
	}

	providerName := displayName(event.Provider)

	if event.Kind == KindEnded {
		return actions.Content{
			Message: fmt.Sprintf("%s finished streaming on %s.", name, providerName),
		}
	}

	message := fmt.Sprintf("%s is live on %s!", name, providerName)
	if url := event.Entity.Attr("url"); url != "" {
		message += "\n" + url
	}

	return actions.Content{
		Title:   event.Entity.Attr("title"),
		Message: message,
	}
}

func displayName(provider string) string {
	if provider == "" {
		return provider
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}
