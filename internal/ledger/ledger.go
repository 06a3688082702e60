// Package ledger is the domain core: the append-only print event ledger,
// the per-tracking-number print aggregate, and duplicate detection. Every
// client-reported print outcome lands here as an immutable event; the
// aggregate is derived state the rest of the system reads.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/model"
)

// ErrInvalidEvent rejects structurally bad reports before anything persists.
var ErrInvalidEvent = errors.New("invalid print event")

const (
	busyRetries    = 3
	busyRetryDelay = 50 * time.Millisecond
)

// Snapshot is the aggregate state echoed back to the client after a report.
type Snapshot struct {
	PrintStatus         string
	PrintCount          int
	LastPrintTime       *time.Time
	LastPrintClientName string
}

// CheckResult is the outcome of a duplicate check. Allow is always true:
// duplicate signaling is advisory, the client decides whether to prompt the
// operator for a reprint reason.
type CheckResult struct {
	Allow         bool
	Status        string
	DuplicateKind string // "tracking", "order", or "" when no prior success
	PrintCount    int
	TrackingNo    string // the tracking number the check resolved to, may be ""
}

type Service struct {
	db *sql.DB
}

func NewService(database *sql.DB) *Service {
	return &Service{db: database}
}

// Report appends the event to the ledger and, for successful prints,
// advances the tracking aggregate in the same transaction, so either both
// are visible or neither is. Failed prints are recorded but never touch
// the aggregate. Returns the aggregate state after the report.
func (s *Service) Report(e *model.PrintEvent) (Snapshot, error) {
	normalize(e)
	if e.TrackingNo == "" {
		return Snapshot{}, fmt.Errorf("%w: tracking_no required", ErrInvalidEvent)
	}
	switch e.Result {
	case model.ResultSuccess, model.ResultFail, model.ResultSuccessReprint:
	default:
		return Snapshot{}, fmt.Errorf("%w: unknown result %q", ErrInvalidEvent, e.Result)
	}
	succeeded := e.Result == model.ResultSuccess || e.Result == model.ResultSuccessReprint

	var after *model.TrackingFile
	err := withBusyRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin report tx: %w", err)
		}
		defer tx.Rollback()

		id, err := db.InsertPrintEvent(tx, e)
		if err != nil {
			return fmt.Errorf("insert print event: %w", err)
		}
		e.ID = id

		if succeeded {
			now := time.Now().UTC()
			if err := db.EnsureTrackingFile(tx, e.TrackingNo, now); err != nil {
				return fmt.Errorf("ensure tracking row: %w", err)
			}
			after, err = db.ApplyPrintSuccess(tx, e.TrackingNo, e.Host, now)
			if err != nil {
				return fmt.Errorf("apply print success: %w", err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return Snapshot{}, err
	}

	if after == nil {
		// Failed print: echo whatever state the aggregate currently holds.
		tf, err := db.GetTrackingFile(s.db, e.TrackingNo)
		if err != nil {
			return Snapshot{}, fmt.Errorf("read tracking aggregate: %w", err)
		}
		after = tf
	}
	return snapshotOf(after), nil
}

// CheckDuplicate answers "has this been printed before" ahead of a print.
// Order-only input is resolved to its tracking number through the order
// mapping. Duplicate detection queries the raw ledger, not the aggregate;
// a tracking-level match outranks an order-level one because the tracking
// number is the physical ground truth on the parcel.
func (s *Service) CheckDuplicate(inputKind, orderID, trackingNo string) (CheckResult, error) {
	inputKind = strings.ToLower(strings.TrimSpace(inputKind))
	if inputKind == "" {
		inputKind = model.InputKindOrder
	}
	orderID = strings.TrimSpace(orderID)
	trackingNo = strings.TrimSpace(trackingNo)

	if inputKind == model.InputKindOrder && trackingNo == "" && orderID != "" {
		tn, err := db.ResolveTrackingNo(s.db, orderID)
		if err != nil {
			return CheckResult{}, fmt.Errorf("resolve order mapping: %w", err)
		}
		trackingNo = tn
	}

	res := CheckResult{Allow: true, Status: model.StatusNotPrinted, TrackingNo: trackingNo}

	var dupOrder, dupTracking bool
	var err error
	if orderID != "" {
		if dupOrder, err = db.HasOrderSuccess(s.db, orderID); err != nil {
			return CheckResult{}, fmt.Errorf("check order history: %w", err)
		}
	}
	if trackingNo != "" {
		if dupTracking, err = db.HasTrackingSuccess(s.db, trackingNo); err != nil {
			return CheckResult{}, fmt.Errorf("check tracking history: %w", err)
		}
	}
	switch {
	case dupTracking:
		res.DuplicateKind = model.InputKindTracking
	case dupOrder:
		res.DuplicateKind = model.InputKindOrder
	}

	if trackingNo != "" {
		tf, err := db.GetTrackingFile(s.db, trackingNo)
		if err != nil {
			return CheckResult{}, fmt.Errorf("read tracking aggregate: %w", err)
		}
		if tf != nil {
			res.Status = tf.PrintStatus
			res.PrintCount = tf.PrintCount
		}
	}
	return res, nil
}

func snapshotOf(tf *model.TrackingFile) Snapshot {
	if tf == nil {
		return Snapshot{PrintStatus: model.StatusNotPrinted}
	}
	return Snapshot{
		PrintStatus:         tf.PrintStatus,
		PrintCount:          tf.PrintCount,
		LastPrintTime:       tf.LastPrintTime,
		LastPrintClientName: tf.LastPrintClientName,
	}
}

func normalize(e *model.PrintEvent) {
	e.InputKind = strings.ToLower(strings.TrimSpace(e.InputKind))
	e.CodeValue = strings.TrimSpace(e.CodeValue)
	e.OrderID = strings.TrimSpace(e.OrderID)
	e.TrackingNo = strings.TrimSpace(e.TrackingNo)
	e.Result = strings.TrimSpace(e.Result)
	e.Host = strings.TrimSpace(e.Host)
	e.User = strings.TrimSpace(e.User)
	e.ClientVersion = strings.TrimSpace(e.ClientVersion)
	e.PrinterName = strings.TrimSpace(e.PrinterName)
	e.PDFSHA256 = strings.TrimSpace(e.PDFSHA256)
}

// withBusyRetry retries a transaction a few times when SQLite reports the
// database busy. The connection pool is capped at one connection and the
// driver carries a busy_timeout, so this only fires under pathological
// contention, but an aggregate update must not be lost to it.
func withBusyRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(busyRetryDelay * time.Duration(attempt+1))
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
