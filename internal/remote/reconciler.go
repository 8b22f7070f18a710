package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"media-optimizer/internal/database"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediatypes"
	"media-optimizer/internal/metrics"
	"media-optimizer/internal/tracker"
)

// ErrAccountMismatch means a webhook carried an account id that does
// not match this installation. The callback is rejected without
// touching job state.
var ErrAccountMismatch = errors.New("webhook account id does not match configured account")

// ErrUnknownJob means a webhook referenced an asset that was never
// submitted. Accepting it would let a stray callback fabricate state.
var ErrUnknownJob = errors.New("webhook references an asset with no submitted job")

// JobCompletionEvent is the parsed inbound completion callback.
type JobCompletionEvent struct {
	AccountID    string              `json:"account_id"`
	AttachmentID string              `json:"attachment_id"`
	CDNURLs      database.CDNResults `json:"cdn_urls"`

	assetID int64
}

// AssetID returns the asset the event refers to.
func (e *JobCompletionEvent) AssetID() int64 {
	return e.assetID
}

// ParseEvent decodes and validates a webhook body. Parsing happens
// before any state logic so malformed payloads are rejected with no
// side effects.
func ParseEvent(body io.Reader) (*JobCompletionEvent, error) {
	var event JobCompletionEvent

	decoder := json.NewDecoder(io.LimitReader(body, 1<<20))
	if err := decoder.Decode(&event); err != nil {
		return nil, fmt.Errorf("decoding webhook body: %w", err)
	}

	if event.AccountID == "" {
		return nil, fmt.Errorf("webhook missing account_id")
	}

	assetID, err := strconv.ParseInt(event.AttachmentID, 10, 64)
	if err != nil || assetID <= 0 {
		return nil, fmt.Errorf("webhook attachment_id %q is not a positive integer", event.AttachmentID)
	}
	event.assetID = assetID

	return &event, nil
}

// Reconciler applies completion webhooks to job state and forwards the
// reported artifacts to the conversion tracker. Events for the same
// asset are serialized with a keyed mutex; the wire protocol has no
// sequence numbers, so the most recently received callback wins.
type Reconciler struct {
	db        *database.Database
	tracker   *tracker.Tracker
	accountID string

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewReconciler creates a reconciler bound to the configured account.
func NewReconciler(db *database.Database, tr *tracker.Tracker, accountID string) *Reconciler {
	return &Reconciler{
		db:        db,
		tracker:   tr,
		accountID: accountID,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// assetLock returns the mutex serializing one asset's reconciliations.
func (r *Reconciler) assetLock(assetID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[assetID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[assetID] = lock
	}
	return lock
}

// Reconcile applies one completion event and returns the resulting job
// state. An empty result set means the remote conversion failed;
// previously recorded local conversions stay untouched either way.
func (r *Reconciler) Reconcile(ctx context.Context, event *JobCompletionEvent) (database.JobState, error) {
	if event.AccountID != r.accountID {
		metrics.WebhookCallbacksTotal.WithLabelValues("rejected").Inc()
		logging.Warn("Rejected webhook for asset %d: account mismatch", event.assetID)
		return "", ErrAccountMismatch
	}

	lock := r.assetLock(event.assetID)
	lock.Lock()
	defer lock.Unlock()

	if len(event.CDNURLs) == 0 {
		if err := r.db.FinishExternalJob(ctx, event.assetID, database.JobFailed, nil); err != nil {
			return "", r.finishError(event.assetID, err)
		}
		metrics.WebhookCallbacksTotal.WithLabelValues("failed").Inc()
		logging.Info("External job for asset %d reported failure (no results)", event.assetID)
		return database.JobFailed, nil
	}

	if err := r.db.FinishExternalJob(ctx, event.assetID, database.JobCompleted, event.CDNURLs); err != nil {
		return "", r.finishError(event.assetID, err)
	}

	r.trackResults(ctx, event)

	metrics.WebhookCallbacksTotal.WithLabelValues("completed").Inc()
	logging.Info("External job for asset %d completed with %d rendition sizes", event.assetID, len(event.CDNURLs))
	return database.JobCompleted, nil
}

// finishError classifies a FinishExternalJob failure. A missing job row
// becomes ErrUnknownJob so callers can reject the callback outright.
func (r *Reconciler) finishError(assetID int64, err error) error {
	if errors.Is(err, database.ErrJobNotFound) {
		metrics.WebhookCallbacksTotal.WithLabelValues("rejected").Inc()
		logging.Warn("Rejected webhook for asset %d: no submitted job", assetID)
		return ErrUnknownJob
	}
	metrics.WebhookCallbacksTotal.WithLabelValues("invalid").Inc()
	return err
}

// trackResults records each reported artifact against the original byte
// size captured at dispatch time. Sizes with no recorded baseline are
// skipped: a savings number must never be fabricated.
func (r *Reconciler) trackResults(ctx context.Context, event *JobCompletionEvent) {
	for size, byFormat := range event.CDNURLs {
		originalBytes, ok, err := r.db.OriginalSize(ctx, event.assetID, size)
		if err != nil {
			logging.Warn("Baseline lookup for asset %d size %s failed: %v", event.assetID, size, err)
			continue
		}
		if !ok {
			logging.Debug("No original size recorded for asset %d size %s, skipping savings tracking",
				event.assetID, size)
			continue
		}

		for formatName, result := range byFormat {
			format, known := mediatypes.ParseFormat(formatName)
			if !known {
				logging.Debug("Webhook for asset %d carried unknown format %q, skipping", event.assetID, formatName)
				continue
			}
			if result.Bytes <= 0 {
				continue
			}

			rec := &database.ConversionRecord{
				AssetID:        event.assetID,
				Format:         format,
				RenditionSize:  size,
				OriginalBytes:  originalBytes,
				ConvertedBytes: result.Bytes,
			}
			if err := r.tracker.Record(ctx, rec); err != nil {
				logging.Warn("Failed to track external conversion for asset %d: %v", event.assetID, err)
			}
		}
	}
}
