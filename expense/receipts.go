package expense

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/cache"
	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/queue"
)

// =============================================================================
// EXTRACTOR - External receipt text extraction
// =============================================================================

// ErrExtractorUnavailable marks extractor failures worth retrying.
var ErrExtractorUnavailable = errors.New("receipt extractor unavailable")

// Extraction is the structured output of the receipt extractor. Fields
// uses the keys "vendor", "total", "tax" and "date" (YYYY-MM-DD).
type Extraction struct {
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	Fields     map[string]string `json:"fields"`
}

// Extractor turns a receipt image into text and fields.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (Extraction, error)
}

// HTTPExtractor posts the raw image to an extraction service and decodes
// its JSON reply.
type HTTPExtractor struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPExtractor(endpoint string, timeout time.Duration) *HTTPExtractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPExtractor{endpoint: endpoint, httpClient: &http.Client{Timeout: timeout}}
}

func (x *HTTPExtractor) Extract(ctx context.Context, image []byte) (Extraction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.endpoint, bytes.NewReader(image))
	if err != nil {
		return Extraction{}, fmt.Errorf("extractor: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrExtractorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Extraction{}, fmt.Errorf("extractor: failed to read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return Extraction{}, fmt.Errorf("%w: HTTP %d", ErrExtractorUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return Extraction{}, fmt.Errorf("extractor rejected receipt: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out Extraction
	if err := json.Unmarshal(body, &out); err != nil {
		return Extraction{}, fmt.Errorf("extractor: failed to decode response: %w", err)
	}
	return out, nil
}

// =============================================================================
// RECEIPT WORKER
// =============================================================================

// ReceiptJob asks for one receipt to be extracted. ExpenseID is optional;
// when set the expense is linked to the receipt.
type ReceiptJob struct {
	ReceiptID ledger.ReceiptID `json:"receipt_id"`
	ExpenseID ledger.ExpenseID `json:"expense_id,omitempty"`
	Image     []byte           `json:"image"`
}

// ReceiptWorker queues receipts and processes them in the background.
// A receipt is processed at most once however many times it is delivered:
// the processed-key store short-circuits known receipts and the
// receipt_extractions primary key catches the rest.
type ReceiptWorker struct {
	store     ledger.TxStore
	queue     queue.Queue
	extractor Extractor
	processed cache.ProcessedStore
	logger    *zap.Logger
	now       func() time.Time
}

// NewReceiptWorker wires a worker. processed and logger may be nil.
func NewReceiptWorker(store ledger.TxStore, q queue.Queue, ex Extractor, processed cache.ProcessedStore, logger *zap.Logger) *ReceiptWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptWorker{
		store:     store,
		queue:     q,
		extractor: ex,
		processed: processed,
		logger:    logger.Named("receipts"),
		now:       time.Now,
	}
}

// Submit enqueues a receipt, keyed by its id.
func (w *ReceiptWorker) Submit(ctx context.Context, job ReceiptJob) error {
	if strings.TrimSpace(string(job.ReceiptID)) == "" {
		return ledger.NewValidationError("receipt_id", "is required", nil)
	}
	if len(job.Image) == 0 {
		return ledger.NewValidationError("image", "is required", nil)
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode receipt job: %w", err)
	}
	return w.queue.Publish(ctx, string(job.ReceiptID), payload)
}

// Run consumes receipt jobs until ctx is done.
func (w *ReceiptWorker) Run(ctx context.Context) error {
	w.logger.Info("receipt worker started")
	defer w.logger.Info("receipt worker stopped")
	return w.queue.Consume(ctx, w.handle)
}

func (w *ReceiptWorker) handle(ctx context.Context, m queue.Message) error {
	var job ReceiptJob
	if err := json.Unmarshal(m.Value, &job); err != nil {
		// Redelivery cannot fix a malformed payload.
		w.logger.Error("dropping malformed receipt job", zap.String("key", m.Key), zap.Error(err))
		return nil
	}
	log := w.logger.With(zap.String("receipt_id", string(job.ReceiptID)), zap.Int("attempt", m.Attempt))

	if w.processed != nil {
		done, err := w.processed.IsProcessed(ctx, string(job.ReceiptID))
		if err != nil {
			log.Warn("processed-key lookup failed", zap.Error(err))
		} else if done {
			log.Debug("receipt already processed")
			return nil
		}
	}
	if _, err := w.store.GetReceiptExtraction(ctx, job.ReceiptID); err == nil {
		w.markProcessed(ctx, job.ReceiptID, log)
		return nil
	} else if !ledger.IsNotFound(err) {
		return err
	}

	ex, err := w.extractor.Extract(ctx, job.Image)
	if err != nil {
		log.Warn("receipt extraction failed", zap.Error(err))
		return err
	}

	err = w.store.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.InsertReceiptExtraction(ctx, ledger.ReceiptExtraction{
			ReceiptID:  job.ReceiptID,
			ExpenseID:  job.ExpenseID,
			Text:       ex.Text,
			Confidence: ex.Confidence,
			Fields:     ex.Fields,
			CreatedAt:  w.now().UTC(),
		}); err != nil {
			return err
		}
		if job.ExpenseID == "" {
			return nil
		}
		e, err := tx.GetExpense(ctx, job.ExpenseID)
		if err != nil {
			return err
		}
		e.ReceiptID = job.ReceiptID
		if e.Vendor == "" {
			e.Vendor = strings.TrimSpace(ex.Fields["vendor"])
		}
		return tx.UpdateExpense(ctx, e)
	})
	switch {
	case errors.Is(err, ledger.ErrDuplicateReceipt):
		log.Debug("receipt stored by a concurrent delivery")
	case ledger.IsNotFound(err):
		// The expense is gone; retrying will not bring it back.
		log.Error("dropping receipt for unknown expense", zap.String("expense_id", string(job.ExpenseID)))
		return nil
	case err != nil:
		return err
	default:
		log.Info("receipt processed", zap.Float64("confidence", ex.Confidence))
	}

	w.markProcessed(ctx, job.ReceiptID, log)
	return nil
}

func (w *ReceiptWorker) markProcessed(ctx context.Context, id ledger.ReceiptID, log *zap.Logger) {
	if w.processed == nil {
		return
	}
	if _, err := w.processed.MarkProcessed(ctx, string(id)); err != nil {
		log.Warn("failed to mark receipt processed", zap.Error(err))
	}
}

// =============================================================================
// DRAFTS
// =============================================================================

// DraftFromReceipt pre-fills an ExpenseInput from a stored extraction.
// Fields that fail to parse are left empty for the caller to fill in.
func (l *Ledger) DraftFromReceipt(ctx context.Context, id ledger.ReceiptID) (ExpenseInput, error) {
	r, err := l.store.GetReceiptExtraction(ctx, id)
	if err != nil {
		return ExpenseInput{}, err
	}

	draft := ExpenseInput{
		ReceiptID:   id,
		Vendor:      strings.TrimSpace(r.Fields["vendor"]),
		Description: firstLine(r.Text),
		Status:      ledger.ExpensePending,
	}
	if v, ok := r.Fields["total"]; ok {
		if amt, err := ledger.ParseMoney("total", strings.TrimSpace(v)); err == nil {
			draft.Amount = ledger.Cents(amt)
		}
	}
	if v, ok := r.Fields["tax"]; ok {
		if amt, err := ledger.ParseMoney("tax", strings.TrimSpace(v)); err == nil {
			draft.TaxAmount = ledger.Cents(amt)
		}
	}
	if v, ok := r.Fields["date"]; ok {
		if d, err := ledger.ParseDate(strings.TrimSpace(v)); err == nil {
			draft.TransactionDate = d
		}
	}
	if r.ExpenseID != "" {
		if e, err := l.store.GetExpense(ctx, r.ExpenseID); err == nil {
			draft.Owner = e.Owner
			draft.CategoryID = e.CategoryID
		}
	}
	return draft, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
