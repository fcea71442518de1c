// Package actions routes model-proposed actions to capability
// providers. The routing table is fixed at construction; every call
// returns a Result and no provider failure escapes as a panic or error.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/hearth/internal/calendar"
	"github.com/nugget/hearth/internal/email"
	"github.com/nugget/hearth/internal/lighting"
)

// Capability domains.
const (
	DomainCalendar = "calendar"
	DomainMail     = "mail"
	DomainLighting = "lighting"
	DomainTimers   = "timers"
)

// Action is one named capability call proposed by the model. On the wire
// it is {"type": domain, "action": name, "data": {...}}; "name" and
// "parameters" are accepted as aliases.
type Action struct {
	Type       string         `json:"type,omitempty"`
	Name       string         `json:"action"`
	Parameters map[string]any `json:"data,omitempty"`
}

// UnmarshalJSON accepts both field spellings.
func (a *Action) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type       string         `json:"type"`
		Action     string         `json:"action"`
		Name       string         `json:"name"`
		Data       map[string]any `json:"data"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	a.Type = raw.Type
	a.Name = raw.Action
	if a.Name == "" {
		a.Name = raw.Name
	}
	a.Parameters = raw.Data
	if a.Parameters == nil {
		a.Parameters = raw.Parameters
	}
	return nil
}

// Result is the outcome of one Execute call.
type Result struct {
	Action    string `json:"action"`
	Succeeded bool   `json:"succeeded"`
	Payload   any    `json:"payload,omitempty"`
	Error     string `json:"errorMessage,omitempty"`
	Err       error  `json:"-"`
}

// Combined aggregates the results of one batch in request order.
type Combined struct {
	Succeeded bool     `json:"succeeded"`
	Results   []Result `json:"results"`
	Summary   string   `json:"summary"`
}

// Combine folds results. An empty batch counts as succeeded.
func Combine(results []Result) Combined {
	ok := 0
	for _, r := range results {
		if r.Succeeded {
			ok++
		}
	}
	return Combined{
		Succeeded: ok == len(results),
		Results:   results,
		Summary:   fmt.Sprintf("%d of %d actions succeeded", ok, len(results)),
	}
}

// Handler runs one action against its provider.
type Handler func(ctx context.Context, params map[string]any, rc *RequestContext) (any, error)

// Definition describes a routable action.
type Definition struct {
	Name        string         `json:"name"`
	Domain      string         `json:"domain"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	handler     Handler
}

// CalendarProvider is the calendar capability.
type CalendarProvider interface {
	ListEvents(ctx context.Context, q calendar.Query) ([]calendar.Event, error)
	GetEvent(ctx context.Context, id string) (*calendar.Event, error)
	CreateEvent(ctx context.Context, ev calendar.Event) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, id string, patch calendar.Patch) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// MailProvider is the mail capability. account selects a mailbox;
// empty means the primary.
type MailProvider interface {
	ListMessages(ctx context.Context, account string, opts email.ListOptions) ([]email.Envelope, error)
	SearchMessages(ctx context.Context, account string, opts email.SearchOptions) ([]email.Envelope, error)
	ReadMessage(ctx context.Context, account, folder string, uid uint32) (*email.Message, error)
}

// LightingProvider is the lighting capability.
type LightingProvider interface {
	ListLights(ctx context.Context) ([]lighting.Light, error)
	SetLight(ctx context.Context, id string, st lighting.State) error
	SetGroup(ctx context.Context, id string, st lighting.State) error
	SetAll(ctx context.Context, st lighting.State) error
}

// Providers are the collaborators handed to New. Nil members leave
// their domain routed but failing with ErrNotConfigured.
type Providers struct {
	Calendar CalendarProvider
	Mail     MailProvider
	Lighting LightingProvider
	Alarms   AlarmScheduler
	// Location interprets zone-less times. Defaults to time.Local.
	Location *time.Location
}

// Dispatcher maps action names to provider calls. It holds no mutable
// state after New and is safe for concurrent use.
type Dispatcher struct {
	p      Providers
	defs   map[string]*Definition
	order  []string
	logger *slog.Logger
}

// New builds the routing table.
func New(p Providers, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if p.Location == nil {
		p.Location = time.Local
	}
	d := &Dispatcher{
		p:      p,
		defs:   make(map[string]*Definition),
		logger: logger,
	}
	d.registerCalendar()
	d.registerMail()
	d.registerLighting()
	d.registerTimers()
	return d
}

func (d *Dispatcher) register(def *Definition) {
	if _, dup := d.defs[def.Name]; dup {
		panic("actions: duplicate action " + def.Name)
	}
	d.defs[def.Name] = def
	d.order = append(d.order, def.Name)
}

// Has reports whether name is routable.
func (d *Dispatcher) Has(name string) bool {
	_, ok := d.defs[name]
	return ok
}

// Definitions returns the table in registration order.
func (d *Dispatcher) Definitions() []Definition {
	out := make([]Definition, 0, len(d.order))
	for _, name := range d.order {
		def := *d.defs[name]
		def.handler = nil
		out = append(out, def)
	}
	return out
}

// Describe renders the table as a capability listing for the system
// prompt, grouped by domain.
func (d *Dispatcher) Describe() string {
	var b strings.Builder
	domain := ""
	for _, name := range d.order {
		def := d.defs[name]
		if def.Domain != domain {
			if domain != "" {
				b.WriteByte('\n')
			}
			domain = def.Domain
			fmt.Fprintf(&b, "%s:\n", domain)
		}
		fmt.Fprintf(&b, "- %s(%s): %s\n", def.Name, strings.Join(paramNames(def.Parameters), ", "), def.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Execute runs a against its provider and always returns a Result.
// Provider errors and panics become a failed Result wrapping a
// *ProviderError; unknown names wrap an *UnknownActionError.
func (d *Dispatcher) Execute(ctx context.Context, a Action, rc *RequestContext) (res Result) {
	res.Action = a.Name
	log := d.logger.With("action", a.Name)
	if id := ConversationIDFromContext(ctx); id != "" {
		log = log.With("conversation_id", id)
	}

	def, ok := d.defs[a.Name]
	if !ok {
		log.Warn("unknown action")
		return fail(res, &UnknownActionError{Name: a.Name})
	}

	params := a.Parameters
	if params == nil {
		params = map[string]any{}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = fail(Result{Action: a.Name}, &ProviderError{Action: a.Name, Err: fmt.Errorf("panic: %v", r)})
		}
		if res.Succeeded {
			log.Debug("action succeeded", "elapsed", time.Since(start))
		} else {
			log.Warn("action failed", "elapsed", time.Since(start), "error", res.Error)
		}
	}()

	payload, err := def.handler(ctx, params, rc.Clone())
	if err != nil {
		return fail(res, &ProviderError{Action: a.Name, Err: err})
	}
	res.Succeeded = true
	res.Payload = payload
	return res
}

func fail(res Result, err error) Result {
	res.Succeeded = false
	res.Payload = nil
	res.Err = err
	res.Error = err.Error()
	if pe, ok := err.(*ProviderError); ok {
		res.Error = pe.Err.Error()
	}
	return res
}
