package transfers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nexopos/sucursalsync/internal/odoo"
	"github.com/nexopos/sucursalsync/internal/products"
)

// Repository persists pending transfers between the two phases.
type Repository interface {
	Create(ctx context.Context, p *Pending) (int64, error)
	FindByCode(ctx context.Context, code string) (*Pending, error)
	List(ctx context.Context, limit int) ([]Pending, error)
	MarkConfirmed(ctx context.Context, code string, at time.Time) error
	MarkCancelled(ctx context.Context, code string) error
}

// ReportBuilder renders transfer paperwork and returns stored file names.
type ReportBuilder interface {
	TransferSheet(ctx context.Context, code string, items []Snapshot) (string, error)
	TransferOutcome(ctx context.Context, out Outcome) (string, error)
}

// Recorder persists a summary of a confirmed transfer.
type Recorder interface {
	RecordTransfer(ctx context.Context, out Outcome) error
}

// Service coordinates the two phase transfer protocol.
type Service struct {
	logger  *slog.Logger
	sync    *products.Service
	repo    Repository
	reports ReportBuilder
	history Recorder
}

// NewService constructs the transfer coordinator. reports and history may be
// nil when the corresponding backend is not configured.
func NewService(logger *slog.Logger, sync *products.Service, repo Repository, reports ReportBuilder, history Recorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, sync: sync, repo: repo, reports: reports, history: history}
}

// Prepare validates the requested items against live stock, snapshots them
// and persists a pending transfer. No stock moves during this phase. Items
// that fail validation are dropped from the prepared set with a log entry.
func (s *Service) Prepare(ctx context.Context, src SourcePort, kind string, items []Item) (*Pending, error) {
	if len(items) == 0 {
		return nil, ErrEmptyTransfer
	}
	if kind != KindSingle && kind != KindDual {
		return nil, fmt.Errorf("transfers: unknown transfer kind %q", kind)
	}

	snapshots := make([]Snapshot, 0, len(items))
	for _, it := range items {
		snap, reason, err := s.snapshotItem(ctx, src, it, kind)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			s.logger.Warn("transfer item dropped at prepare",
				slog.String("barcode", it.Barcode),
				slog.Float64("requested", it.Quantity),
				slog.String("reason", reason),
			)
			continue
		}
		snapshots = append(snapshots, *snap)
	}
	if len(snapshots) == 0 {
		return nil, ErrNothingTransferred
	}

	now := time.Now().UTC()
	code := uuid.NewString()
	manifest, err := BuildManifest(code, snapshots, now)
	if err != nil {
		return nil, err
	}

	pending := &Pending{
		Code:        code,
		Kind:        kind,
		Status:      StatusPrepared,
		Items:       snapshots,
		ManifestXML: manifest,
		CreatedAt:   now,
	}
	if s.repo != nil {
		id, err := s.repo.Create(ctx, pending)
		if err != nil {
			return nil, err
		}
		pending.ID = id
	}

	if s.reports != nil {
		if _, err := s.reports.TransferSheet(ctx, code, snapshots); err != nil {
			s.logger.Warn("transfer sheet generation failed", slog.Any("error", err))
		}
	}

	s.logger.Info("transfer prepared",
		slog.String("code", code),
		slog.String("kind", kind),
		slog.Int("items", len(snapshots)),
	)
	return pending, nil
}

// snapshotItem resolves and validates one requested line. A non-empty reason
// means the line is inadmissible; an error means the catalog call failed in a
// way that should abort the whole prepare.
func (s *Service) snapshotItem(ctx context.Context, src SourcePort, it Item, kind string) (*Snapshot, string, error) {
	id, err := src.FindByBarcode(ctx, it.Barcode)
	if err != nil {
		if errors.Is(err, odoo.ErrProductNotFound) {
			return nil, "product not found", nil
		}
		return nil, "", err
	}
	rec, err := src.ReadProduct(ctx, id)
	if err != nil {
		return nil, "", err
	}

	reason := validateQuantity(it.Quantity, rec.QtyAvailable)
	if kind == KindDual {
		reason = validateDualQuantity(it.Quantity, rec.QtyAvailable)
	}
	if reason != "" {
		return nil, reason, nil
	}

	return &Snapshot{
		ProductID:      rec.ID,
		Name:           rec.Name,
		Barcode:        rec.Barcode,
		Quantity:       it.Quantity,
		Available:      rec.QtyAvailable,
		StandardPrice:  rec.StandardPrice,
		ListPrice:      rec.ListPrice,
		Tracking:       rec.Tracking,
		AvailableInPOS: rec.AvailableInPOS,
	}, "", nil
}

// Confirm applies a prepared single location transfer. Every line is
// re-validated against live stock before its reduction; a line that fails
// re-validation is skipped and the rest proceed.
func (s *Service) Confirm(ctx context.Context, src SourcePort, code string) (*Outcome, error) {
	pending, err := s.loadPending(ctx, code, KindSingle)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Code: code, Total: len(pending.Items)}
	for _, snap := range pending.Items {
		out.Items = append(out.Items, s.confirmItem(ctx, src, snap))
	}
	s.finishOutcome(ctx, out)
	return out, nil
}

func (s *Service) confirmItem(ctx context.Context, src SourcePort, snap Snapshot) ProcessedItem {
	item := ProcessedItem{Barcode: snap.Barcode, Name: snap.Name, Requested: snap.Quantity}

	id, err := src.FindByBarcode(ctx, snap.Barcode)
	if err != nil {
		item.Status = ItemSkipped
		item.Reason = "product no longer found"
		return item
	}
	rec, err := src.ReadProduct(ctx, id)
	if err != nil {
		item.Status = ItemFailed
		item.Reason = err.Error()
		return item
	}
	item.SourceBefore = rec.QtyAvailable
	item.SourceAfter = rec.QtyAvailable

	if reason := validateQuantity(snap.Quantity, rec.QtyAvailable); reason != "" {
		item.Status = ItemSkipped
		item.Reason = reason
		return item
	}

	if err := src.ReduceStock(ctx, id, snap.Quantity); err != nil {
		item.Status = ItemFailed
		item.Reason = err.Error()
		return item
	}
	item.SourceAfter = rec.QtyAvailable - snap.Quantity
	item.Status = ItemTransferred
	return item
}

// ConfirmDual applies a prepared dual location transfer. The principal side
// is reduced first, then the branch side receives the quantity. A branch
// failure after the reduction leaves the line partially transferred; there
// is no automatic rollback, the paperwork carries the discrepancy instead.
func (s *Service) ConfirmDual(ctx context.Context, principal SourcePort, branch DestinationPort, code string) (*Outcome, error) {
	pending, err := s.loadPending(ctx, code, KindDual)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Code: code, Total: len(pending.Items)}
	for _, snap := range pending.Items {
		out.Items = append(out.Items, s.confirmDualItem(ctx, principal, branch, snap))
	}
	s.finishOutcome(ctx, out)
	return out, nil
}

func (s *Service) confirmDualItem(ctx context.Context, principal SourcePort, branch DestinationPort, snap Snapshot) ProcessedItem {
	item := ProcessedItem{Barcode: snap.Barcode, Name: snap.Name, Requested: snap.Quantity}

	srcID, err := principal.FindByBarcode(ctx, snap.Barcode)
	if err != nil {
		item.Status = ItemSkipped
		item.Reason = "product no longer found on principal"
		return item
	}
	src, err := principal.ReadProduct(ctx, srcID)
	if err != nil {
		item.Status = ItemFailed
		item.Reason = err.Error()
		return item
	}
	item.SourceBefore = src.QtyAvailable
	item.SourceAfter = src.QtyAvailable

	if reason := validateDualQuantity(snap.Quantity, src.QtyAvailable); reason != "" {
		item.Status = ItemSkipped
		item.Reason = reason
		return item
	}

	destID, created, err := s.alignBranchProduct(ctx, branch, src)
	if err != nil {
		item.Status = ItemFailed
		item.Reason = err.Error()
		return item
	}
	item.DestProductID = destID
	item.DestCreated = created
	if before, err := branch.StockByBarcode(ctx, snap.Barcode); err == nil {
		item.DestBefore = before
		item.DestAfter = before
	}

	if err := principal.ReduceStock(ctx, srcID, snap.Quantity); err != nil {
		item.Status = ItemFailed
		item.Reason = err.Error()
		return item
	}
	item.SourceAfter = src.QtyAvailable - snap.Quantity

	if err := branch.AddStock(ctx, destID, snap.Quantity); err != nil {
		s.logger.Warn("branch stock addition failed after principal reduction",
			slog.String("barcode", snap.Barcode),
			slog.Float64("quantity", snap.Quantity),
			slog.Any("error", err),
		)
		item.Status = ItemPartiallyTransferred
		item.Reason = "principal reduced but branch addition failed: " + err.Error()
		return item
	}
	item.DestAfter = item.DestBefore + snap.Quantity
	item.Status = ItemTransferred
	return item
}

// alignBranchProduct makes sure the branch carries the product before stock
// arrives. An unknown barcode is created from the principal record with zero
// stock; an existing one gets the principal name and prices while keeping
// its own tracking and visibility settings.
func (s *Service) alignBranchProduct(ctx context.Context, branch DestinationPort, src *odoo.ProductRecord) (int64, bool, error) {
	mapped := products.MappedProduct{
		Name:           src.Name,
		Barcode:        src.Barcode,
		StandardPrice:  src.StandardPrice,
		ListPrice:      src.ListPrice,
		Tracking:       "none",
		AvailableInPOS: true,
	}

	existingID, err := branch.FindByBarcode(ctx, src.Barcode)
	created := false
	switch {
	case err == nil:
		rec, readErr := branch.ReadProduct(ctx, existingID)
		if readErr != nil {
			return 0, false, readErr
		}
		mapped.Tracking = rec.Tracking
		mapped.AvailableInPOS = rec.AvailableInPOS
	case errors.Is(err, odoo.ErrProductNotFound):
		created = true
	default:
		return 0, false, err
	}

	res := s.sync.Upsert(ctx, branch, mapped)
	if !res.Success {
		return 0, false, fmt.Errorf("transfers: branch alignment failed: %s", res.Message)
	}

	id, err := branch.FindByBarcode(ctx, src.Barcode)
	if err != nil {
		return 0, created, fmt.Errorf("transfers: branch product unresolvable after alignment: %w", err)
	}
	return id, created, nil
}

// Cancel voids a prepared transfer so it can never be confirmed.
func (s *Service) Cancel(ctx context.Context, code string) error {
	pending, err := s.loadPending(ctx, code, "")
	if err != nil {
		return err
	}
	if err := s.repo.MarkCancelled(ctx, pending.Code); err != nil {
		return err
	}
	s.logger.Info("transfer cancelled", slog.String("code", code))
	return nil
}

// Get returns a pending transfer by code.
func (s *Service) Get(ctx context.Context, code string) (*Pending, error) {
	if s.repo == nil {
		return nil, ErrTransferNotFound
	}
	return s.repo.FindByCode(ctx, code)
}

// List returns recent transfers, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Pending, error) {
	if s.repo == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, limit)
}

func (s *Service) loadPending(ctx context.Context, code, kind string) (*Pending, error) {
	if s.repo == nil {
		return nil, ErrTransferNotFound
	}
	pending, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	switch pending.Status {
	case StatusConfirmed:
		return nil, ErrAlreadyConfirmed
	case StatusCancelled:
		return nil, ErrTransferCancelled
	}
	if kind != "" && pending.Kind != kind {
		return nil, fmt.Errorf("transfers: transfer %s is a %s transfer", code, pending.Kind)
	}
	return pending, nil
}

// finishOutcome closes the books on a confirmation: counts, persistence,
// paperwork. A transfer succeeds when at least one line moved in full.
func (s *Service) finishOutcome(ctx context.Context, out *Outcome) {
	for _, it := range out.Items {
		switch it.Status {
		case ItemTransferred:
			out.ProcessedCount++
		case ItemSkipped:
			out.SkippedCount++
		}
	}
	out.Success = out.ProcessedCount > 0

	if out.Success && s.repo != nil {
		if err := s.repo.MarkConfirmed(ctx, out.Code, time.Now().UTC()); err != nil {
			s.logger.Error("marking transfer confirmed failed", slog.String("code", out.Code), slog.Any("error", err))
		}
	}
	if s.reports != nil {
		file, err := s.reports.TransferOutcome(ctx, *out)
		if err != nil {
			s.logger.Warn("transfer outcome report failed", slog.Any("error", err))
		} else {
			out.ReportFile = file
		}
	}
	if s.history != nil {
		if err := s.history.RecordTransfer(ctx, *out); err != nil {
			s.logger.Warn("recording transfer history failed", slog.Any("error", err))
		}
	}

	s.logger.Info("transfer confirmed",
		slog.String("code", out.Code),
		slog.Int("total", out.Total),
		slog.Int("processed", out.ProcessedCount),
		slog.Int("skipped", out.SkippedCount),
		slog.Bool("success", out.Success),
	)
}
