// Package classify drives one classification attempt from a composed
// submission to a persisted incident record.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"tokasu/internal/domain"
	"tokasu/internal/evidence"
	"tokasu/internal/incident"
	"tokasu/internal/integrations/llm"
)

type State string

const (
	StateIdle               State = "idle"
	StateValidating         State = "validating"
	StateQuotaChecking      State = "quota_checking"
	StateRequesting         State = "requesting"
	StateFallbackRequesting State = "fallback_requesting"
	StateValidatingResponse State = "validating_response"
	StatePersisting         State = "persisting"
	StateDone               State = "done"
	StateBlocked            State = "blocked"
)

const defaultTimeout = 60 * time.Second

var errNoClassifier = errors.New("no classifier configured")

type Quota interface {
	Limit() int
	Remaining(ctx context.Context, userID string, now time.Time) (int, error)
	Charge(ctx context.Context, userID string, now time.Time) (int, error)
}

type Incidents interface {
	Append(ctx context.Context, rec domain.IncidentRecord) error
}

// Notifier is told about every persisted incident. Failures are logged only.
type Notifier interface {
	NotifyIncident(ctx context.Context, rec domain.IncidentRecord) error
}

type Options struct {
	Timeout  time.Duration
	Notifier Notifier
	Now      func() time.Time
}

type Service struct {
	quota     Quota
	incidents Incidents
	completer llm.Completer
	notifier  Notifier
	timeout   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

// Outcome is what one attempt produced. Result is set whenever a
// classification was obtained, even if it could not be saved.
type Outcome struct {
	Result         domain.ClassificationResult
	Record         domain.IncidentRecord
	Saved          bool
	Fallback       bool
	FallbackReason string
	Remaining      int
	Trace          []State
}

// State returns the last state the attempt reached.
func (o Outcome) State() State {
	if len(o.Trace) == 0 {
		return StateIdle
	}
	return o.Trace[len(o.Trace)-1]
}

func (o *Outcome) enter(s State) {
	o.Trace = append(o.Trace, s)
}

// NewService wires the orchestrator. A nil completer means every attempt
// uses the local fallback.
func NewService(q Quota, incidents Incidents, completer llm.Completer, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		quota:     q,
		incidents: incidents,
		completer: completer,
		notifier:  opts.Notifier,
		timeout:   opts.Timeout,
		now:       opts.Now,
		inflight:  make(map[string]bool),
	}
}

// Remaining exposes the quota signal for display.
func (s *Service) Remaining(ctx context.Context, userID string) (int, error) {
	return s.quota.Remaining(ctx, userID, s.now())
}

func (s *Service) Limit() int {
	return s.quota.Limit()
}

func (s *Service) acquire(surface string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[surface] {
		return false
	}
	s.inflight[surface] = true
	return true
}

func (s *Service) release(surface string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, surface)
}

// Submit runs one classification attempt for the reporter. At most one
// attempt per reporter is in flight at a time.
//
// Errors: ErrSubmissionInProgress, ErrMissingReporter, ErrEmptyInput and
// ErrQuotaExhausted have no side effects; ErrStorageUnavailable from the
// quota read aborts before the classifier is called. ErrPersistenceFailed is returned together with
// an Outcome that carries the unsaved result.
func (s *Service) Submit(ctx context.Context, reporter domain.Reporter, sub evidence.Submission) (Outcome, error) {
	var out Outcome
	out.enter(StateIdle)
	if !s.acquire(reporter.ID) {
		return out, domain.ErrSubmissionInProgress
	}
	defer s.release(reporter.ID)

	out.enter(StateValidating)
	if strings.TrimSpace(reporter.ID) == "" {
		out.enter(StateIdle)
		return out, domain.ErrMissingReporter
	}
	labels, err := domain.Labels(sub.CheckedItems)
	if err != nil {
		out.enter(StateIdle)
		return out, fmt.Errorf("checked items: %w", err)
	}
	req, err := BuildRequest(sub.Description, sub.Category, labels)
	if err != nil {
		out.enter(StateIdle)
		return out, err
	}

	out.enter(StateQuotaChecking)
	remaining, err := s.quota.Remaining(ctx, reporter.ID, s.now())
	if err != nil {
		log.Printf("classify quota check failed user=%s err=%v", reporter.ID, err)
		return out, err
	}
	if remaining <= 0 {
		out.enter(StateBlocked)
		log.Printf("classify blocked user=%s limit=%d", reporter.ID, s.quota.Limit())
		return out, fmt.Errorf("%w: %d classifications per month; the counter resets on the 1st", domain.ErrQuotaExhausted, s.quota.Limit())
	}

	// Once the external call is issued the attempt runs to completion even
	// if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	out.enter(StateRequesting)
	result, callErr := s.request(ctx, req)
	if callErr != nil {
		out.enter(StateFallbackRequesting)
		out.Fallback = true
		out.FallbackReason = callErr.Error()
		result = llm.Fallback(len(labels))
		log.Printf("classify fallback user=%s checked=%d reason=%q", reporter.ID, len(labels), callErr)
	}
	out.enter(StateValidatingResponse)
	out.Result = result

	out.enter(StatePersisting)
	now := s.now()
	category := req.Category
	if category == "" {
		category = domain.Unclassified
	}
	rec := domain.IncidentRecord{
		ID:              incident.NewID(),
		Date:            now,
		ReporterID:      reporter.ID,
		ReporterName:    reporter.Name,
		Category:        category,
		Description:     req.Description,
		CheckedCriteria: labels,
		AttachedFiles:   append([]domain.FileMeta(nil), sub.Files...),
		Severity:        result.Severity,
		IsClassified:    true,
		Result:          result,
	}
	out.Record = rec
	if err := s.incidents.Append(ctx, rec); err != nil {
		out.Remaining = remaining
		log.Printf("classify persist failed user=%s id=%s err=%v", reporter.ID, rec.ID, err)
		return out, fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
	}
	out.Saved = true

	out.Remaining = remaining - 1
	if used, err := s.quota.Charge(ctx, reporter.ID, now); err != nil {
		log.Printf("classify quota charge failed user=%s id=%s err=%v", reporter.ID, rec.ID, err)
	} else {
		out.Remaining = s.quota.Limit() - used
	}
	out.enter(StateDone)
	log.Printf("classify done user=%s id=%s severity=%d source=%s remaining=%d", reporter.ID, rec.ID, rec.Severity, result.Source, out.Remaining)

	if s.notifier != nil {
		if err := s.notifier.NotifyIncident(ctx, rec); err != nil {
			log.Printf("classify notify failed id=%s err=%v", rec.ID, err)
		}
	}
	return out, nil
}

// request performs the external call under the client-side timeout and
// validates the payload. Any error sends the attempt to the fallback.
func (s *Service) request(ctx context.Context, req domain.ClassificationRequest) (domain.ClassificationResult, error) {
	if s.completer == nil {
		return domain.ClassificationResult{}, errNoClassifier
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	text, err := s.completer.Complete(callCtx, llm.BuildPrompt(req))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ClassificationResult{}, fmt.Errorf("%w: timed out after %s", domain.ErrClassifierUnreachable, s.timeout)
		}
		return domain.ClassificationResult{}, err
	}
	log.Printf("classify response elapsed=%s size=%d", time.Since(started).Round(time.Millisecond), len(text))
	return llm.ParseResult(text)
}
