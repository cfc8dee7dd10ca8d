// Package sync orchestrates one email-to-expense sync cycle: fetch candidate
// messages, extract transactions, persist them atomically, and keep the
// association graph current, reporting ordered progress throughout.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/minoapp/minosync/internal/domain"
	"github.com/minoapp/minosync/internal/extraction"
	"github.com/minoapp/minosync/internal/graph"
	"github.com/minoapp/minosync/internal/mail"
	"github.com/minoapp/minosync/internal/store"
)

// DefaultDaysBack is the lookback window used when Options doesn't set one.
const DefaultDaysBack = 7

// ErrSyncActive is returned when a run is requested while another is still in
// flight. Only one sync may be active per Runner.
var ErrSyncActive = errors.New("sync: a sync run is already active")

// ErrCancelled marks a run terminated by caller cancellation, as opposed to a
// failure.
var ErrCancelled = errors.New("sync: run cancelled")

// SourceGmail is the provenance tag stamped on expenses created by sync.
const SourceGmail = "Gmail"

// MailClient lists candidate messages in the lookback window.
type MailClient interface {
	FetchCandidates(ctx context.Context, daysBack int) ([]mail.Message, error)
}

// Extractor turns one email body into a structured transaction.
type Extractor interface {
	Extract(ctx context.Context, rawBody string, referenceDate time.Time) (*extraction.Transaction, error)
}

// Options configures one run.
type Options struct {
	DaysBack int          // defaults to DefaultDaysBack
	Progress ProgressFunc // optional, events are discarded when nil
}

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Result summarizes a finished run.
type Result struct {
	RunID   string
	Outcome Outcome
	Saved   int
	Skipped int // duplicates
}

// Runner drives sync cycles. A Runner is safe to keep around and reuse; it
// rejects overlapping runs instead of queuing them.
type Runner struct {
	mail      MailClient
	extractor Extractor
	store     store.Store
	log       zerolog.Logger
	active    atomic.Bool
}

// NewRunner wires a runner to its collaborators.
func NewRunner(mc MailClient, ex Extractor, st store.Store, log zerolog.Logger) *Runner {
	return &Runner{mail: mc, extractor: ex, store: st, log: log}
}

// Run executes one full sync cycle. Cancellation is cooperative through ctx:
// it is observed before connecting, after fetching, and before each message,
// never mid-extraction. A cancelled or failed run leaves no partial batch
// behind; only a completed run commits and advances the sync watermark.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	if !r.active.CompareAndSwap(false, true) {
		return Result{}, ErrSyncActive
	}
	defer r.active.Store(false)

	res := Result{RunID: uuid.NewString()}
	emit := func(ev Event) {
		if opts.Progress != nil {
			opts.Progress(ev)
		}
	}
	daysBack := opts.DaysBack
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}

	log := r.log.With().Str("run_id", res.RunID).Logger()
	log.Info().Int("days_back", daysBack).Msg("sync started")

	emit(Event{Type: EventStatus, Message: "Connecting to mailbox..."})
	if err := ctx.Err(); err != nil {
		return r.finishCancelled(res, emit, log)
	}

	msgs, err := r.mail.FetchCandidates(ctx, daysBack)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return r.finishCancelled(res, emit, log)
		}
		return r.finishFailed(res, err, emit, log)
	}
	if err := ctx.Err(); err != nil {
		return r.finishCancelled(res, emit, log)
	}

	total := len(msgs)
	if total == 0 {
		res.Outcome = OutcomeCompleted
		emit(Event{Type: EventComplete, Message: "No new mail.", Count: 0, Skipped: 0})
		log.Info().Msg("sync complete, no candidates")
		return res, nil
	}
	emit(Event{Type: EventFound, Message: fmt.Sprintf("Found %d emails", total), Total: total})

	// The whole batch shares one transaction: a cancellation or failure
	// before commit leaves no expense rows or graph changes behind.
	err = r.store.WithTx(ctx, func(tx store.Store) error {
		for i, msg := range msgs {
			if err := ctx.Err(); err != nil {
				return err
			}
			current := i + 1

			dup, err := r.isDuplicate(ctx, tx, msg)
			if err != nil {
				// Inserting without a working dedupe check risks a second
				// row for a known message, so the message is skipped.
				log.Warn().Err(err).Str("message_id", msg.MessageID).Msg("duplicate lookup failed")
				emit(Event{
					Type:    EventSkip,
					Message: fmt.Sprintf("[%d/%d] duplicate check failed: %v", current, total, err),
					Current: current,
					Total:   total,
				})
				continue
			}
			if dup {
				res.Skipped++
				emit(Event{
					Type:    EventDuplicate,
					Message: fmt.Sprintf("[%d/%d] Already processed", current, total),
					Current: current,
					Total:   total,
				})
				continue
			}

			emit(Event{
				Type:    EventAnalyzing,
				Message: fmt.Sprintf("[%d/%d] Analyzing...", current, total),
				Current: current,
				Total:   total,
			})

			item := r.processCandidate(ctx, tx, msg)
			if item.saved == nil {
				log.Debug().Str("reason", item.reason).Str("subject", msg.Subject).Msg("message skipped")
				emit(Event{
					Type:    EventSkip,
					Message: fmt.Sprintf("[%d/%d] Skipped: %s", current, total, item.reason),
					Current: current,
					Total:   total,
				})
				continue
			}

			res.Saved++
			emit(Event{
				Type:    EventSaved,
				Message: fmt.Sprintf("[%d/%d] %s (%d)", current, total, item.saved.Place, item.saved.Amount),
				Current: current,
				Total:   total,
			})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return r.finishCancelled(res, emit, log)
		}
		return r.finishFailed(res, err, emit, log)
	}

	if err := r.store.SetSyncInfo(ctx, store.WatermarkKey, time.Now().Format(time.RFC3339)); err != nil {
		return r.finishFailed(res, fmt.Errorf("update sync watermark: %w", err), emit, log)
	}

	res.Outcome = OutcomeCompleted
	emit(Event{
		Type:    EventComplete,
		Message: fmt.Sprintf("Done! %d saved, %d skipped", res.Saved, res.Skipped),
		Count:   res.Saved,
		Skipped: res.Skipped,
	})
	log.Info().Int("saved", res.Saved).Int("skipped", res.Skipped).Msg("sync complete")
	return res, nil
}

func (r *Runner) finishCancelled(res Result, emit func(Event), log zerolog.Logger) (Result, error) {
	res.Outcome = OutcomeCancelled
	res.Saved = 0
	res.Skipped = 0
	emit(Event{Type: EventCancelled, Message: "Sync cancelled."})
	log.Info().Msg("sync cancelled")
	return res, ErrCancelled
}

func (r *Runner) finishFailed(res Result, err error, emit func(Event), log zerolog.Logger) (Result, error) {
	res.Outcome = OutcomeFailed
	emit(Event{Type: EventError, Message: fmt.Sprintf("Sync failed: %v", err)})
	log.Error().Err(err).Msg("sync failed")
	return res, err
}

// isDuplicate reports whether the message's id already belongs to a stored
// expense. Known duplicates skip extraction entirely, saving model calls.
// A lookup failure is returned to the caller rather than read as "new".
func (r *Runner) isDuplicate(ctx context.Context, tx store.Store, msg mail.Message) (bool, error) {
	if msg.MessageID == "" {
		return false, nil
	}
	existing, err := tx.FindExpenseByMessageID(ctx, msg.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}

// itemResult is the outcome of processing one non-duplicate candidate:
// either saved carries the persisted expense, or reason says why the message
// was skipped. Skips never abort the batch.
type itemResult struct {
	saved  *domain.Expense
	reason string
}

// processCandidate extracts and persists one message inside the batch
// transaction. Every failure is local to the message.
func (r *Runner) processCandidate(ctx context.Context, tx store.Store, msg mail.Message) itemResult {
	referenceDate := msg.Date
	if referenceDate.IsZero() {
		referenceDate = time.Now()
	}

	t, err := r.extractor.Extract(ctx, msg.Body, referenceDate)
	if err != nil {
		return itemResult{reason: fmt.Sprintf("extraction failed: %v", err)}
	}

	analysis, _ := json.Marshal(t)
	e := &domain.Expense{
		TransactionDate: t.TransactionDate,
		Place:           t.Place,
		NormalizedPlace: extraction.NormalizeMerchant(t.Place),
		Amount:          int64(t.Amount),
		Category:        t.Category,
		Source:          SourceGmail,
		Type:            t.Type,
		EmailMessageID:  msg.MessageID,
		RawText:         t.RawTextSummary,
		AnalysisData:    string(analysis),
	}

	if _, err := tx.AddExpense(ctx, e); err != nil {
		return itemResult{reason: fmt.Sprintf("persist failed: %v", err)}
	}
	if err := graph.AddContribution(ctx, tx, e); err != nil {
		return itemResult{reason: fmt.Sprintf("graph update failed: %v", err)}
	}
	return itemResult{saved: e}
}

// LastSync reads the watermark of the previous successful run, or the zero
// time if no sync has completed yet.
func (r *Runner) LastSync(ctx context.Context) (time.Time, error) {
	v, err := r.store.SyncInfo(ctx, store.WatermarkKey)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse watermark %q: %w", v, err)
	}
	return t, nil
}
