package installments

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/urcash/urcash/internal/products"
)

// API is the remote surface the Store drives.
type API interface {
	ListGrouped(ctx context.Context, q GroupedQuery) (GroupedPage, error)
	Create(ctx context.Context, in InstallmentInput) (Installment, error)
	Update(ctx context.Context, id int64, in InstallmentInput) (Installment, error)
	Delete(ctx context.Context, id int64) error
	RecordPayment(ctx context.Context, req PaymentRequest) (*Receipt, error)
	CreatePlan(ctx context.Context, req PlanRequest) (*PlanResult, error)
	ConvertDebts(ctx context.Context, req ConvertRequest) (ConversionSummary, error)
}

// Op names a store operation.
type Op string

const (
	OpList    Op = "list"
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpPayment Op = "payment"
	OpPlan    Op = "plan"
	OpConvert Op = "convert"
)

// Phase is the lifecycle stage of an operation.
type Phase int

const (
	Pending Phase = iota + 1
	Fulfilled
	Rejected
	// Invalid reports a submission refused before it reached the API. It
	// never touches the in-flight flags.
	Invalid
)

// Event is a state transition message.
type Event struct {
	Op      Op
	Phase   Phase
	Seq     uint64
	Query   GroupedQuery
	Page    *GroupedPage
	Receipt *Receipt
	Plan    *PlanResult
	Summary *ConversionSummary
	Err     error
	Message string
}

// State is the store snapshot. Values are never mutated after publication.
type State struct {
	Query      GroupedQuery
	Plans      []Plan
	Total      int
	TotalPages int

	Loading    bool
	Saving     bool
	Paying     bool
	Creating   bool
	Converting bool

	LastReceipt *Receipt
	LastPlan    *PlanResult
	LastSummary *ConversionSummary

	Error  string
	Notice string

	listSeq uint64
}

// InFlight reports whether op is currently pending.
func (s State) InFlight(op Op) bool {
	switch op {
	case OpList:
		return s.Loading
	case OpCreate, OpUpdate, OpDelete:
		return s.Saving
	case OpPayment:
		return s.Paying
	case OpPlan:
		return s.Creating
	case OpConvert:
		return s.Converting
	}
	return false
}

// PlanView is a visible plan with its computed summary.
type PlanView struct {
	Plan    Plan
	Summary PlanSummary
}

// Visible applies f to the current page and summarises each plan.
func (s State) Visible(f Filter, now time.Time) []PlanView {
	plans := FilterPlans(s.Plans, f)
	out := make([]PlanView, len(plans))
	for i, p := range plans {
		out[i] = PlanView{Plan: p, Summary: SummarizeAt(p, now)}
	}
	return out
}

// Reduce applies e to s and returns the next state. It has no side effects.
func Reduce(s State, e Event) State {
	next := s
	if e.Phase == Invalid {
		next.Error = e.Message
		return next
	}
	setFlag(&next, e.Op, e.Phase == Pending)
	switch e.Phase {
	case Pending:
		next.Error = ""
		if e.Op == OpList {
			next.Query = e.Query
			next.listSeq = e.Seq
		}
	case Fulfilled:
		switch e.Op {
		case OpList:
			if e.Seq != s.listSeq {
				// A newer listing superseded this one.
				setFlag(&next, OpList, s.Loading)
				return next
			}
			if e.Page != nil {
				next.Plans = e.Page.Items
				next.Total = e.Page.Total
				next.TotalPages = e.Page.TotalPages
				next.Query.Page = e.Page.Page
				next.Query.Limit = e.Page.Limit
			}
		case OpPayment:
			next.LastReceipt = e.Receipt
		case OpPlan:
			next.LastPlan = e.Plan
		case OpConvert:
			next.LastSummary = e.Summary
		}
		if e.Message != "" {
			next.Notice = e.Message
		}
	case Rejected:
		if e.Op == OpList && e.Seq != s.listSeq {
			setFlag(&next, OpList, s.Loading)
			return next
		}
		if e.Summary != nil {
			next.LastSummary = e.Summary
		}
		if !errors.Is(e.Err, context.Canceled) {
			next.Error = e.Message
		}
	}
	return next
}

func setFlag(s *State, op Op, on bool) {
	switch op {
	case OpList:
		s.Loading = on
	case OpCreate, OpUpdate, OpDelete:
		s.Saving = on
	case OpPayment:
		s.Paying = on
	case OpPlan:
		s.Creating = on
	case OpConvert:
		s.Converting = on
	}
}

// ErrBusy is returned when the same kind of operation is already pending.
var ErrBusy = errors.New("operation already in progress")

// ErrStoreClosed is returned once Run has exited.
var ErrStoreClosed = errors.New("store is not running")

type envelope struct {
	event Event
	guard bool
	ack   chan ackResult
}

type ackResult struct {
	state State
	err   error
}

// Store owns the installments list state. Commands are methods; every state
// change is an Event reduced inside the Run loop.
type Store struct {
	api       API
	loc       *Localizer
	validator *Validator
	now       func() time.Time

	events chan envelope
	done   chan struct{}
	state  atomic.Pointer[State]
	seq    atomic.Uint64

	mu   sync.Mutex
	subs map[int]chan State
	next int
}

// NewStore builds a Store with the given initial query.
func NewStore(api API, loc *Localizer, initial GroupedQuery) *Store {
	if loc == nil {
		loc = DefaultLocalizer
	}
	s := &Store{
		api:       api,
		loc:       loc,
		validator: NewValidator(),
		now:       time.Now,
		events:    make(chan envelope),
		done:      make(chan struct{}),
		subs:      make(map[int]chan State),
	}
	st := State{Query: initial.Normalize()}
	s.state.Store(&st)
	return s
}

// Run reduces events until ctx is done.
func (s *Store) Run(ctx context.Context) {
	defer close(s.done)
	current := *s.state.Load()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.events:
			if env.guard && env.event.Phase == Pending && current.InFlight(env.event.Op) {
				env.ack <- ackResult{state: current, err: ErrBusy}
				continue
			}
			current = Reduce(current, env.event)
			snapshot := current
			s.state.Store(&snapshot)
			s.publish(snapshot)
			env.ack <- ackResult{state: snapshot}
		}
	}
}

// State returns the latest snapshot.
func (s *Store) State() State {
	return *s.state.Load()
}

// Subscribe returns a channel receiving the latest snapshot after each
// change. Slow subscribers only see the most recent state.
func (s *Store) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) publish(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func (s *Store) dispatch(ctx context.Context, e Event, guard bool) (State, error) {
	env := envelope{event: e, guard: guard, ack: make(chan ackResult, 1)}
	select {
	case s.events <- env:
	case <-s.done:
		return State{}, ErrStoreClosed
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case res := <-env.ack:
		return res.state, res.err
	case <-s.done:
		return State{}, ErrStoreClosed
	}
}

// settle dispatches a completion event even when the command context has
// been cancelled, so pending flags are always cleared.
func (s *Store) settle(ctx context.Context, e Event) {
	_, _ = s.dispatch(context.WithoutCancel(ctx), e, false)
}

func (s *Store) reject(ctx context.Context, op Op, err error) error {
	s.settle(ctx, Event{Op: op, Phase: Rejected, Err: err, Message: s.loc.Localize(err)})
	return err
}

// invalid reports a local validation failure without settling op.
func (s *Store) invalid(ctx context.Context, op Op, err error) error {
	s.settle(ctx, Event{Op: op, Phase: Invalid, Err: err, Message: s.loc.Localize(err)})
	return err
}

// Load fetches q and replaces the list. Responses of superseded loads are
// discarded.
func (s *Store) Load(ctx context.Context, q GroupedQuery) error {
	q = q.Normalize()
	seq := s.seq.Add(1)
	if _, err := s.dispatch(ctx, Event{Op: OpList, Phase: Pending, Seq: seq, Query: q}, false); err != nil {
		return err
	}
	page, err := s.api.ListGrouped(ctx, q)
	if err != nil {
		s.settle(ctx, Event{Op: OpList, Phase: Rejected, Seq: seq, Err: err, Message: s.loc.Localize(err)})
		return err
	}
	s.settle(ctx, Event{Op: OpList, Phase: Fulfilled, Seq: seq, Page: &page})
	return nil
}

// Refresh re-fetches the current query.
func (s *Store) Refresh(ctx context.Context) error {
	return s.Load(ctx, s.State().Query)
}

// SetPage loads another page of the current query.
func (s *Store) SetPage(ctx context.Context, page int) error {
	q := s.State().Query
	q.Page = page
	return s.Load(ctx, q)
}

// CreatePlan validates locally against catalog, creates the plan and reloads
// the first page so the new plan is visible.
func (s *Store) CreatePlan(ctx context.Context, req PlanRequest, catalog []products.Product) (*PlanResult, error) {
	if err := s.validator.ValidatePlan(req); err != nil {
		return nil, s.invalid(ctx, OpPlan, err)
	}
	if err := CheckStock(req.Products, products.Index(catalog)); err != nil {
		return nil, s.invalid(ctx, OpPlan, err)
	}
	if _, err := s.dispatch(ctx, Event{Op: OpPlan, Phase: Pending}, true); err != nil {
		return nil, err
	}
	plan, err := s.api.CreatePlan(ctx, req)
	if err != nil {
		return nil, s.reject(ctx, OpPlan, err)
	}
	s.settle(ctx, Event{Op: OpPlan, Phase: Fulfilled, Plan: plan, Message: s.loc.PlanCreatedMessage(*plan)})
	q := s.State().Query
	q.Page = 1
	return plan, s.Load(ctx, q)
}

// ConvertDebts converts the selected debts and reloads the list when at least
// one debt converted.
func (s *Store) ConvertDebts(ctx context.Context, req ConvertRequest) (ConversionSummary, error) {
	if err := s.validator.ValidateConvert(req); err != nil {
		return ConversionSummary{}, s.invalid(ctx, OpConvert, err)
	}
	if _, err := s.dispatch(ctx, Event{Op: OpConvert, Phase: Pending}, true); err != nil {
		return ConversionSummary{}, err
	}
	summary, err := s.api.ConvertDebts(ctx, req)
	if err != nil {
		return ConversionSummary{}, s.reject(ctx, OpConvert, err)
	}
	msg := s.loc.ConversionMessage(summary)
	if summary.AllFailed() {
		s.settle(ctx, Event{Op: OpConvert, Phase: Rejected, Summary: &summary, Message: msg})
		return summary, nil
	}
	s.settle(ctx, Event{Op: OpConvert, Phase: Fulfilled, Summary: &summary, Message: msg})
	return summary, s.Refresh(ctx)
}

// PaymentDraft pre-fills a payment for inst with the outstanding balance. The
// draft carries an idempotency key; retries must resubmit the same draft.
func (s *Store) PaymentDraft(inst Installment) PaymentRequest {
	method := inst.PaymentMethod
	if !method.Valid() {
		method = MethodCash
	}
	return PaymentRequest{
		InstallmentID:  inst.ID,
		PaidAmount:     SuggestedPayment(inst),
		PaymentMethod:  method,
		IdempotencyKey: uuid.NewString(),
	}
}

// RecordPayment validates and records a payment. The receipt is kept in the
// state; refreshing the list is left to the caller.
func (s *Store) RecordPayment(ctx context.Context, req PaymentRequest) (*Receipt, error) {
	if err := s.validator.ValidatePayment(req); err != nil {
		return nil, s.invalid(ctx, OpPayment, err)
	}
	if _, err := s.dispatch(ctx, Event{Op: OpPayment, Phase: Pending}, true); err != nil {
		return nil, err
	}
	receipt, err := s.api.RecordPayment(ctx, req)
	if err != nil {
		return nil, s.reject(ctx, OpPayment, err)
	}
	s.settle(ctx, Event{Op: OpPayment, Phase: Fulfilled, Receipt: receipt, Message: s.loc.PaymentMessage(*receipt)})
	return receipt, nil
}

// Create adds a single installment and reloads the list.
func (s *Store) Create(ctx context.Context, in InstallmentInput) (Installment, error) {
	if err := s.validator.ValidateInput(in); err != nil {
		return Installment{}, s.invalid(ctx, OpCreate, err)
	}
	if _, err := s.dispatch(ctx, Event{Op: OpCreate, Phase: Pending}, true); err != nil {
		return Installment{}, err
	}
	inst, err := s.api.Create(ctx, in)
	if err != nil {
		return Installment{}, s.reject(ctx, OpCreate, err)
	}
	s.settle(ctx, Event{Op: OpCreate, Phase: Fulfilled, Message: "تم إضافة القسط بنجاح"})
	return inst, s.Refresh(ctx)
}

// Update edits a single installment and reloads the list.
func (s *Store) Update(ctx context.Context, id int64, in InstallmentInput) (Installment, error) {
	if err := s.validator.ValidateInput(in); err != nil {
		return Installment{}, s.invalid(ctx, OpUpdate, err)
	}
	if _, err := s.dispatch(ctx, Event{Op: OpUpdate, Phase: Pending}, true); err != nil {
		return Installment{}, err
	}
	inst, err := s.api.Update(ctx, id, in)
	if err != nil {
		return Installment{}, s.reject(ctx, OpUpdate, err)
	}
	s.settle(ctx, Event{Op: OpUpdate, Phase: Fulfilled, Message: "تم تحديث القسط بنجاح"})
	return inst, s.Refresh(ctx)
}

// Delete removes a single installment and reloads the list.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.dispatch(ctx, Event{Op: OpDelete, Phase: Pending}, true); err != nil {
		return err
	}
	if err := s.api.Delete(ctx, id); err != nil {
		return s.reject(ctx, OpDelete, err)
	}
	s.settle(ctx, Event{Op: OpDelete, Phase: Fulfilled, Message: "تم حذف القسط بنجاح"})
	return s.Refresh(ctx)
}
