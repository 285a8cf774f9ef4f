// Package conversation implements the per-user questionnaire that collects
// consumption data and submits it to the tariff service exactly once.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/etf-team/tariffbot/core/logger"
	"github.com/etf-team/tariffbot/core/telegram/state"
	"github.com/etf-team/tariffbot/internal/render"
)

// ErrUnhandled is returned for events no route accepts, such as free text
// while idle. Transports fall back to a hint.
var ErrUnhandled = errors.New("conversation: event not handled in current state")

// Options configures a Machine.
type Options struct {
	// DocumentFlow is started by a spreadsheet upload.
	DocumentFlow string
	// ManualFlow is started by the manual-entry button.
	ManualFlow string
	// MaxInvalidInputs resets the session after this many invalid inputs in a row; 0 means unlimited.
	MaxInvalidInputs int
	// MaxDocumentBytes rejects larger uploads; 0 means unlimited.
	MaxDocumentBytes int64
	// Flows overrides the built-in catalog.
	Flows    map[string]Flow
	Observer Observer
	// OnFailure is called after a failed submission, after the session was cleared.
	OnFailure func(ctx context.Context, userID int64, flow string, err error)
}

type handlerFunc func(ctx context.Context, sess *state.Session, ev Event, r Replier) error

type routeKey struct {
	kind  EventKind
	state state.State
}

type route struct {
	name string
	fn   handlerFunc
}

// Route describes one entry of the transition table.
type Route struct {
	Kind    EventKind
	State   state.State
	Handler string
}

// Machine routes events to handlers by (event kind, session state).
type Machine struct {
	store     state.Manager
	submitter Submitter
	flows     map[string]Flow
	opts      Options
	observer  Observer
	locks     *userLocks
	routes    map[routeKey]route
}

// New validates opts and builds the routing table.
func New(store state.Manager, submitter Submitter, opts Options) (*Machine, error) {
	if store == nil || submitter == nil {
		return nil, errors.New("conversation: store and submitter are required")
	}
	flows := opts.Flows
	if flows == nil {
		flows = DefaultFlows()
	}
	if opts.DocumentFlow == "" {
		opts.DocumentFlow = FlowDocumentVolumes
	}
	if opts.ManualFlow == "" {
		opts.ManualFlow = FlowManualVolume
	}
	if f, ok := flows[opts.DocumentFlow]; !ok || !f.Document {
		return nil, fmt.Errorf("conversation: %q is not a document flow", opts.DocumentFlow)
	}
	if f, ok := flows[opts.ManualFlow]; !ok || f.Document || len(f.Steps) == 0 {
		return nil, fmt.Errorf("conversation: %q is not a manual flow", opts.ManualFlow)
	}
	for id, f := range flows {
		if f.Build == nil || f.Render == nil {
			return nil, fmt.Errorf("conversation: flow %q lacks Build or Render", id)
		}
	}

	m := &Machine{
		store:     store,
		submitter: submitter,
		flows:     flows,
		opts:      opts,
		observer:  opts.Observer,
		locks:     newUserLocks(),
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	m.routes = m.buildRoutes()
	return m, nil
}

func (m *Machine) buildRoutes() map[routeKey]route {
	routes := make(map[routeKey]route)
	add := func(kind EventKind, st state.State, name string, fn handlerFunc) {
		routes[routeKey{kind, st}] = route{name: name, fn: fn}
	}

	add(EventDocument, StateIdle, "start_document", m.onDocument)
	add(EventStartManual, StateIdle, "start_manual", m.onStartManual)
	add(EventCancel, StateIdle, "cancel", m.onCancel)
	add(EventChoice, StateIdle, "stale_choice", m.onStale)

	for _, st := range m.stepStates() {
		add(EventText, st, "step_text", m.onText)
		add(EventChoice, st, "step_choice", m.onChoice)
		add(EventDocument, st, "start_document", m.onDocument)
		add(EventStartManual, st, "start_manual", m.onStartManual)
		add(EventCancel, st, "cancel", m.onCancel)
	}

	// submit runs under the user's lock, so a stored submitting session seen
	// here was left behind by a crash or restart.
	add(EventText, StateSubmitting, "stale_submit", m.onStaleSubmit)
	add(EventDocument, StateSubmitting, "start_document", m.onDocument)
	add(EventStartManual, StateSubmitting, "start_manual", m.onStartManual)
	add(EventChoice, StateSubmitting, "stale_choice", m.onStale)
	add(EventCancel, StateSubmitting, "cancel", m.onCancel)
	return routes
}

func (m *Machine) stepStates() []state.State {
	seen := make(map[state.State]struct{})
	var out []state.State
	for _, f := range m.flows {
		for _, s := range f.Steps {
			if _, ok := seen[s.State]; ok {
				continue
			}
			seen[s.State] = struct{}{}
			out = append(out, s.State)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Routes returns the transition table sorted by state then event kind.
func (m *Machine) Routes() []Route {
	out := make([]Route, 0, len(m.routes))
	for k, r := range m.routes {
		out = append(out, Route{Kind: k.kind, State: k.state, Handler: r.name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].State != out[j].State {
			return out[i].State < out[j].State
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Handle processes one event. Events of the same user run one at a time.
func (m *Machine) Handle(ctx context.Context, ev Event, r Replier) error {
	if ev.UserID == 0 {
		return errors.New("conversation: event without user id")
	}
	if ev.Kind.fromButton() {
		if err := r.Ack(ctx); err != nil {
			logger.Debug(ctx, "fsm", "ack.fail", slog.String("err", err.Error()))
		}
	}

	unlock := m.locks.lock(ev.UserID)
	defer unlock()

	sess, err := m.store.Get(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("conversation: load session: %w", err)
	}

	rt, ok := m.routes[routeKey{ev.Kind, sess.State}]
	if !ok {
		logger.Debug(ctx, "fsm", "route.miss",
			slog.String("kind", string(ev.Kind)),
			slog.String("state", string(sess.State)),
		)
		if ev.Kind == EventText {
			return ErrUnhandled
		}
		return nil
	}
	logger.Debug(ctx, "fsm", "route",
		slog.String("kind", string(ev.Kind)),
		slog.String("state", string(sess.State)),
		slog.String("flow", sess.Flow),
		slog.String("handler", rt.name),
	)
	return rt.fn(ctx, sess, ev, r)
}

// Reset drops the user's session, waiting for an in-flight event to finish.
func (m *Machine) Reset(ctx context.Context, userID int64) error {
	unlock := m.locks.lock(userID)
	defer unlock()
	return m.store.Clear(ctx, userID)
}

// InProgress reports whether the user is in the middle of a flow.
func (m *Machine) InProgress(ctx context.Context, userID int64) bool {
	return m.store.InProgress(ctx, userID)
}

// position resolves the flow and step for a session in a step state.
// A session that no longer matches the catalog is cleared.
func (m *Machine) position(ctx context.Context, sess *state.Session, r Replier) (Flow, int, bool, error) {
	flow, ok := m.flows[sess.Flow]
	idx := -1
	if ok {
		idx = flow.indexOf(sess.State)
	}
	if idx >= 0 {
		return flow, idx, true, nil
	}
	logger.Warn(ctx, "fsm", "session.orphaned",
		slog.String("flow", sess.Flow),
		slog.String("state", string(sess.State)),
	)
	if err := m.store.Clear(ctx, sess.UserID); err != nil {
		return Flow{}, 0, false, fmt.Errorf("conversation: clear session: %w", err)
	}
	return Flow{}, 0, false, r.Reply(ctx, Reply{Kind: ReplyNotice, Text: textSessionReset})
}

func (m *Machine) onText(ctx context.Context, sess *state.Session, ev Event, r Replier) error {
	flow, idx, ok, err := m.position(ctx, sess, r)
	if !ok {
		return err
	}
	step := flow.Steps[idx]

	switch step.Kind {
	case KindDecimal:
		v, err := ParseDecimal(ev.Text)
		if err != nil {
			return m.reject(ctx, sess, flow, step, r)
		}
		sess.Set(step.Field, v)
	case KindInteger:
		v, err := ParseInteger(ev.Text)
		if err != nil {
			return m.reject(ctx, sess, flow, step, r)
		}
		sess.Set(step.Field, v)
	default:
		return m.reject(ctx, sess, flow, step, r)
	}
	return m.advance(ctx, sess, flow, idx, r)
}

func (m *Machine) onChoice(ctx context.Context, sess *state.Session, ev Event, r Replier) error {
	flow, idx, ok, err := m.position(ctx, sess, r)
	if !ok {
		return err
	}
	step := flow.Steps[idx]
	if step.Kind != KindChoice || ev.Choice.Key != step.ChoiceKey {
		return m.onStale(ctx, sess, ev, r)
	}
	opt, ok := MatchOption(step.Options, ev.Choice.Value)
	if !ok {
		return m.onStale(ctx, sess, ev, r)
	}
	sess.Set(step.Field, opt.Value)
	return m.advance(ctx, sess, flow, idx, r)
}

// onStale ignores a button that does not belong to the current step.
func (m *Machine) onStale(ctx context.Context, sess *state.Session, ev Event, _ Replier) error {
	logger.Debug(ctx, "fsm", "choice.stale",
		slog.String("outcome", "ignored"),
		slog.String("state", string(sess.State)),
		slog.String("cb_key", ev.Choice.Key),
	)
	return nil
}

func (m *Machine) onStaleSubmit(ctx context.Context, sess *state.Session, _ Event, r Replier) error {
	logger.Warn(ctx, "fsm", "session.orphaned",
		slog.String("flow", sess.Flow),
		slog.String("state", string(sess.State)),
	)
	if err := m.store.Clear(ctx, sess.UserID); err != nil {
		return fmt.Errorf("conversation: clear session: %w", err)
	}
	return r.Reply(ctx, Reply{Kind: ReplyNotice, Text: textSessionReset})
}

func (m *Machine) onCancel(ctx context.Context, sess *state.Session, _ Event, r Replier) error {
	if sess.Idle() {
		return r.Reply(ctx, Reply{Kind: ReplyNotice, Text: textNothingToCancel})
	}
	if err := m.store.Clear(ctx, sess.UserID); err != nil {
		return fmt.Errorf("conversation: clear session: %w", err)
	}
	logger.Info(ctx, "fsm", "flow.cancelled",
		slog.String("outcome", "cancelled"),
		slog.String("flow", sess.Flow),
		slog.String("state", string(sess.State)),
	)
	return r.Reply(ctx, Reply{Kind: ReplyNotice, Text: textCancelled})
}

func (m *Machine) onStartManual(ctx context.Context, sess *state.Session, _ Event, r Replier) error {
	flow := m.flows[m.opts.ManualFlow]
	return m.begin(ctx, state.NewSession(sess.UserID), flow, r)
}

func (m *Machine) onDocument(ctx context.Context, sess *state.Session, ev Event, r Replier) error {
	doc := ev.Document
	if doc == nil || doc.Fetch == nil {
		return nil
	}
	if !IsSpreadsheet(doc.Name) {
		return r.Reply(ctx, Reply{Kind: ReplyNotice, Text: textNeedSpreadsheet})
	}
	limit := m.opts.MaxDocumentBytes
	if limit > 0 && doc.Size > limit {
		return r.Reply(ctx, Reply{Kind: ReplyNotice, Text: fmt.Sprintf(textTooLarge, limit>>20)})
	}

	data, err := doc.Fetch(ctx)
	if err != nil {
		logger.Warn(ctx, "fsm", "document.fetch",
			slog.String("status", "fail"),
			slog.String("file_name", logger.SanitizeLimit(doc.Name, 128)),
			slog.String("err", err.Error()),
		)
		if clearErr := m.store.Clear(ctx, sess.UserID); clearErr != nil {
			logger.Warn(ctx, "fsm", "session.clear", slog.String("err", clearErr.Error()))
		}
		return r.Reply(ctx, Reply{Kind: ReplyError, Text: fmt.Sprintf(textDownloadFailed, err)})
	}
	if limit > 0 && int64(len(data)) > limit {
		return r.Reply(ctx, Reply{Kind: ReplyNotice, Text: fmt.Sprintf(textTooLarge, limit>>20)})
	}

	next := state.NewSession(sess.UserID)
	next.Document = &state.Attachment{Name: doc.Name, Data: data}
	logger.Info(ctx, "fsm", "document.accepted",
		slog.String("file_name", logger.SanitizeLimit(doc.Name, 128)),
		slog.Int("file_size", len(data)),
	)
	return m.begin(ctx, next, m.flows[m.opts.DocumentFlow], r)
}

// begin replaces any previous session with a fresh one positioned at the
// first step of flow, or submits right away when the flow has no steps.
func (m *Machine) begin(ctx context.Context, sess *state.Session, flow Flow, r Replier) error {
	sess.Flow = flow.ID
	logger.Info(ctx, "fsm", "flow.start", slog.String("flow", flow.ID), slog.Int("steps", len(flow.Steps)))
	if len(flow.Steps) == 0 {
		return m.submit(ctx, sess, flow, r)
	}
	first := flow.Steps[0]
	sess.State = first.State
	if err := m.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("conversation: save session: %w", err)
	}
	return r.Reply(ctx, first.prompt(ReplyPrompt, first.Prompt))
}

func (m *Machine) reject(ctx context.Context, sess *state.Session, flow Flow, step Step, r Replier) error {
	m.observer.InputRejected(flow.ID, string(step.State))
	logger.Debug(ctx, "fsm", "input.rejected",
		slog.String("outcome", "reprompt"),
		slog.String("flow", flow.ID),
		slog.String("state", string(step.State)),
	)
	if limit := m.opts.MaxInvalidInputs; limit > 0 {
		sess.Retries++
		if sess.Retries >= limit {
			if err := m.store.Clear(ctx, sess.UserID); err != nil {
				return fmt.Errorf("conversation: clear session: %w", err)
			}
			logger.Info(ctx, "fsm", "flow.abandoned",
				slog.String("outcome", "cancelled"),
				slog.String("flow", flow.ID),
				slog.Int("attempts", sess.Retries),
			)
			return r.Reply(ctx, Reply{Kind: ReplyNotice, Text: textTooManyAttempts})
		}
		if err := m.store.Save(ctx, sess); err != nil {
			return fmt.Errorf("conversation: save session: %w", err)
		}
	}
	return r.Reply(ctx, step.prompt(ReplyRetry, step.retryText()))
}

func (m *Machine) advance(ctx context.Context, sess *state.Session, flow Flow, idx int, r Replier) error {
	from := flow.Steps[idx].State
	m.observer.StepAccepted(flow.ID, string(from))
	sess.Retries = 0

	if idx+1 >= len(flow.Steps) {
		return m.submit(ctx, sess, flow, r)
	}
	next := flow.Steps[idx+1]
	sess.State = next.State
	if err := m.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("conversation: save session: %w", err)
	}
	logger.Debug(ctx, "fsm", "transition",
		slog.String("flow", flow.ID),
		slog.String("state", string(from)),
		slog.String("next_state", string(next.State)),
	)
	return r.Reply(ctx, next.prompt(ReplyPrompt, next.Prompt))
}

// submit sends the assembled request inline. The session is cleared whatever
// the outcome.
func (m *Machine) submit(ctx context.Context, sess *state.Session, flow Flow, r Replier) error {
	start := time.Now()
	sess.State = StateSubmitting
	if err := m.store.Save(ctx, sess); err != nil {
		logger.Warn(ctx, "fsm", "session.save", slog.String("err", err.Error()))
	}

	progress := textProcessingManual
	if flow.Document {
		progress = textProcessingFile
	}
	if err := r.Reply(ctx, Reply{Kind: ReplyProgress, Text: progress}); err != nil {
		logger.Warn(ctx, "fsm", "progress.fail", slog.String("err", err.Error()))
	}

	text, err := m.execute(ctx, sess, flow)

	if clearErr := m.store.Clear(ctx, sess.UserID); clearErr != nil {
		logger.Warn(ctx, "fsm", "session.clear", slog.String("err", clearErr.Error()))
	}

	outcome := render.Outcome(err)
	took := time.Since(start)
	m.observer.Submitted(flow.ID, outcome, took)

	if err != nil {
		logger.Warn(ctx, "fsm", "submit.fail",
			slog.String("status", "fail"),
			slog.String("flow", flow.ID),
			slog.String("err_kind", outcome),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		if m.opts.OnFailure != nil {
			m.opts.OnFailure(ctx, sess.UserID, flow.ID, err)
		}
		return r.Reply(ctx, Reply{Kind: ReplyError, Text: render.Failure(err)})
	}

	logger.Info(ctx, "fsm", "submit.done",
		slog.String("status", "ok"),
		slog.String("outcome", "submitted"),
		slog.String("flow", flow.ID),
		slog.Duration("duration", took),
	)
	return r.Reply(ctx, Reply{Kind: ReplyResult, Text: text})
}

func (m *Machine) execute(ctx context.Context, sess *state.Session, flow Flow) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("conversation: submission panicked: %v", p)
		}
	}()
	req, err := flow.Build(sess)
	if err != nil {
		return "", err
	}
	body, err := m.submitter.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	return flow.Render(body)
}
