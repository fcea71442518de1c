// Package orchestrator turns a chat message into a model reply. It owns
// the conversation transcripts, parses the model's structured output
// into actions, dispatches them concurrently and asks the model to
// narrate the combined result.
//
// Every model call is one round-trip that appends exactly two turns,
// the prompt as a user turn and the reply as an assistant turn, and
// only once the model has answered. A failed call leaves the transcript
// untouched.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nugget/hearth/internal/actions"
	"github.com/nugget/hearth/internal/conversation"
	"github.com/nugget/hearth/internal/events"
	"github.com/nugget/hearth/internal/journal"
	"github.com/nugget/hearth/internal/llm"
	"github.com/nugget/hearth/internal/prompts"
)

// Result types.
const (
	TypeResponse = "response"
	TypeError    = "error"
)

// lightsTimeout bounds the lighting lookup made while building a system
// turn.
const lightsTimeout = 5 * time.Second

// Result is the outcome of a Chat call.
type Result struct {
	Type          string            `json:"type"`
	Content       string            `json:"content"`
	ActionResults *actions.Combined `json:"actionResults,omitempty"`
}

// Request is one inbound chat message.
type Request struct {
	ConversationID string
	SessionID      string
	Text           string
	// Context is the caller's connection snapshot. Each action gets its
	// own copy.
	Context *actions.RequestContext
	// Interim, when set, receives the model's "working on it" message
	// before actions run. It is called at most once.
	Interim func(string)
}

// Dispatcher executes actions.
type Dispatcher interface {
	Execute(ctx context.Context, a actions.Action, rc *actions.RequestContext) actions.Result
	Describe() string
}

// LightSummarizer supplies the lighting section of the system prompt.
type LightSummarizer interface {
	Summary(ctx context.Context) (string, error)
}

// Recorder journals model calls and dispatches.
type Recorder interface {
	RecordCall(ctx context.Context, c journal.Call)
	RecordDispatch(ctx context.Context, d journal.Dispatch)
}

// Config wires an Orchestrator. LLM, Dispatcher and Conversations are
// required.
type Config struct {
	LLM           llm.Client
	Dispatcher    Dispatcher
	Conversations *conversation.Store
	Lights        LightSummarizer
	Journal       Recorder
	// Bus receives interim messages so other sessions sharing a
	// conversation see them.
	Bus      *events.Bus
	Clock    clock.Clock
	Location *time.Location
	Logger   *slog.Logger
}

// Orchestrator runs chat turns. Safe for concurrent use; calls on the
// same conversation are serialized by the conversation's lock.
type Orchestrator struct {
	llm        llm.Client
	dispatcher Dispatcher
	convs      *conversation.Store
	lights     LightSummarizer
	journal    Recorder
	bus        *events.Bus
	clock      clock.Clock
	loc        *time.Location
	logger     *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		llm:        cfg.LLM,
		dispatcher: cfg.Dispatcher,
		convs:      cfg.Conversations,
		lights:     cfg.Lights,
		journal:    cfg.Journal,
		bus:        cfg.Bus,
		clock:      cfg.Clock,
		loc:        cfg.Location,
		logger:     cfg.Logger,
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.loc == nil {
		o.loc = time.Local
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.convs == nil {
		o.convs = conversation.NewStore()
	}
	return o
}

// Events returns the bus interim messages are published on.
func (o *Orchestrator) Events() *events.Bus {
	return o.bus
}

// Conversations returns the transcript store.
func (o *Orchestrator) Conversations() *conversation.Store {
	return o.convs
}

// Chat runs one message through the model and any actions it proposes.
// Failures are reported as a Result of TypeError; Chat never returns
// without a Result.
func (o *Orchestrator) Chat(ctx context.Context, req Request) Result {
	log := o.logger.With("conversation_id", req.ConversationID)
	if req.SessionID != "" {
		log = log.With("session_id", req.SessionID)
	}

	conv := o.convs.Get(req.ConversationID)
	if err := conv.Lock(ctx); err != nil {
		return Result{Type: TypeError, Content: err.Error()}
	}
	defer conv.Unlock()

	if !conv.Initialized() {
		o.initialize(ctx, conv)
	}

	raw, err := o.roundTrip(ctx, conv, req.Text, journal.PurposeChat)
	if err != nil {
		log.Error("chat failed", "error", err)
		return Result{Type: TypeError, Content: err.Error()}
	}

	r := parseReply(raw)
	if len(r.steps) == 0 {
		return Result{Type: TypeResponse, Content: r.text(raw)}
	}

	if r.message != "" {
		o.interim(req, r.message)
	}

	combined := o.dispatch(ctx, conv.ID, r.steps, req.Context)
	log.Info("actions dispatched", "count", len(r.steps), "summary", combined.Summary)

	res, err := o.narrate(ctx, conv, combined)
	if err != nil {
		var infErr error
		if errors.Is(err, llm.ErrInference) {
			infErr = err
		} else {
			// Narration could not even be prepared; fall back to an
			// error narration.
			res, infErr = o.narrateError(ctx, conv, err.Error())
		}
		if infErr != nil {
			log.Error("narration failed", "error", infErr)
			return Result{Type: TypeError, Content: infErr.Error(), ActionResults: &combined}
		}
	}
	res.ActionResults = &combined
	return res
}

// Clear resets a conversation to a fresh system turn.
func (o *Orchestrator) Clear(ctx context.Context, conversationID string) error {
	conv := o.convs.Get(conversationID)
	if err := conv.Lock(ctx); err != nil {
		return err
	}
	defer conv.Unlock()

	o.initialize(ctx, conv)
	o.logger.Info("conversation cleared", "conversation_id", conversationID)
	return nil
}

// Forget drops a conversation entirely. The next Chat on the id starts
// from a fresh system turn.
func (o *Orchestrator) Forget(conversationID string) {
	if o.convs.Drop(conversationID) {
		o.logger.Debug("conversation dropped", "conversation_id", conversationID)
	}
}

// initialize resets conv to a new system turn. Callers hold the lock.
func (o *Orchestrator) initialize(ctx context.Context, conv *conversation.Conversation) {
	conv.Reset(conversation.Turn{
		Text: prompts.System(o.dispatcher.Describe(), o.lightSummary(ctx, conv.ID)),
		At:   o.now(),
	})
}

func (o *Orchestrator) lightSummary(ctx context.Context, conversationID string) string {
	if o.lights == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, lightsTimeout)
	defer cancel()
	s, err := o.lights.Summary(ctx)
	if err != nil {
		o.logger.Warn("lighting summary unavailable for system prompt",
			"conversation_id", conversationID, "error", err)
		return ""
	}
	return s
}

func (o *Orchestrator) now() time.Time {
	return o.clock.Now().In(o.loc)
}

func (o *Orchestrator) interim(req Request, msg string) {
	if req.Interim != nil {
		req.Interim(msg)
	}
	o.bus.Publish(events.Event{
		Timestamp: o.now(),
		Source:    events.SourceOrchestrator,
		Kind:      events.KindInterim,
		Data: map[string]any{
			"conversation_id": req.ConversationID,
			"session_id":      req.SessionID,
			"content":         msg,
		},
	})
}

// roundTrip sends the transcript plus prompt to the model and, on
// success, appends the prompt and the reply.
func (o *Orchestrator) roundTrip(ctx context.Context, conv *conversation.Conversation, prompt, purpose string) (string, error) {
	asked := o.now()
	turns := conv.Turns()

	msgs := make([]llm.Message, 0, len(turns)+1)
	for i, t := range turns {
		content := t.Text
		if i == 0 && t.Role == conversation.RoleSystem {
			content += "\n\n" + prompts.CurrentTime(asked)
		}
		msgs = append(msgs, llm.Message{Role: t.Role, Content: content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt})

	start := time.Now()
	resp, err := o.llm.Chat(ctx, msgs)
	call := journal.Call{
		ConversationID: conv.ID,
		Purpose:        purpose,
		Model:          o.llm.Model(),
		Elapsed:        time.Since(start),
	}
	if err != nil {
		call.Error = err.Error()
		o.record(ctx, call)
		return "", err
	}
	call.Model = resp.Model
	call.InputTokens = resp.InputTokens
	call.OutputTokens = resp.OutputTokens
	o.record(ctx, call)

	conv.Append(
		conversation.Turn{Role: conversation.RoleUser, Text: prompt, At: asked},
		conversation.Turn{Role: conversation.RoleAssistant, Text: resp.Content, At: o.now()},
	)
	return resp.Content, nil
}

// dispatch runs every action concurrently and returns their results in
// request order. Dispatches are detached from ctx cancellation: once
// started they run to completion. Malformed steps never reach the
// dispatcher and fail in place.
func (o *Orchestrator) dispatch(ctx context.Context, conversationID string, steps []step, rc *actions.RequestContext) actions.Combined {
	ctx = actions.WithConversationID(context.WithoutCancel(ctx), conversationID)

	results := make([]actions.Result, len(steps))
	var wg sync.WaitGroup
	for i, st := range steps {
		if st.err != nil {
			o.logger.Warn("malformed action", "conversation_id", conversationID, "error", st.err)
			results[i] = actions.Rejected(st.err)
			o.recordDispatch(ctx, conversationID, results[i], 0)
			continue
		}
		wg.Add(1)
		go func(i int, a actions.Action) {
			defer wg.Done()
			start := time.Now()
			res := o.dispatcher.Execute(ctx, a, rc)
			if res.Action == "" {
				res.Action = a.Name
			}
			results[i] = res
			o.recordDispatch(ctx, conversationID, res, time.Since(start))
		}(i, st.action)
	}
	wg.Wait()
	return actions.Combine(results)
}

func (o *Orchestrator) recordDispatch(ctx context.Context, conversationID string, res actions.Result, elapsed time.Duration) {
	if o.journal == nil {
		return
	}
	o.journal.RecordDispatch(ctx, journal.Dispatch{
		ConversationID: conversationID,
		Action:         res.Action,
		Succeeded:      res.Succeeded,
		Error:          res.Error,
		Elapsed:        elapsed,
	})
}

// narrate asks the model to describe combined. When no action succeeded
// the reply is an error narration.
func (o *Orchestrator) narrate(ctx context.Context, conv *conversation.Conversation, combined actions.Combined) (Result, error) {
	if anySucceeded(combined.Results) {
		payload, err := json.Marshal(combined)
		if err != nil {
			return Result{}, err
		}
		raw, err := o.roundTrip(ctx, conv, prompts.ActionResult(string(payload)), journal.PurposeNarrate)
		if err != nil {
			return Result{}, err
		}
		return Result{Type: TypeResponse, Content: parseReply(raw).text(raw)}, nil
	}
	return o.narrateError(ctx, conv, failureMessage(combined.Results))
}

func (o *Orchestrator) narrateError(ctx context.Context, conv *conversation.Conversation, msg string) (Result, error) {
	raw, err := o.roundTrip(ctx, conv, prompts.ActionError(msg), journal.PurposeNarrateError)
	if err != nil {
		return Result{}, err
	}
	return Result{Type: TypeError, Content: parseReply(raw).text(raw)}, nil
}

func (o *Orchestrator) record(ctx context.Context, c journal.Call) {
	if o.journal != nil {
		o.journal.RecordCall(context.WithoutCancel(ctx), c)
	}
}

func anySucceeded(results []actions.Result) bool {
	for _, r := range results {
		if r.Succeeded {
			return true
		}
	}
	return false
}

func failureMessage(results []actions.Result) string {
	msgs := make([]string, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, r.Error)
	}
	return strings.Join(msgs, "; ")
}
