package inconsistencies

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/nexopos/sucursalsync/internal/odoo"
)

// Service compares the catalogs and applies repairs.
type Service struct {
	logger *slog.Logger
}

// NewService constructs the detector.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// Detect loads the POS range of both catalogs concurrently and reports every
// barcode whose prices or name diverge beyond the tolerance. Products that
// exist on only one side are not inconsistencies, they are sync backlog.
func (s *Service) Detect(ctx context.Context, principal, branch CatalogPort) (*Report, error) {
	var principalRows, branchRows []odoo.ProductRecord

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := principal.ListPOSProducts(gctx)
		if err != nil {
			return err
		}
		principalRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := branch.ListPOSProducts(gctx)
		if err != nil {
			return err
		}
		branchRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	branchByBarcode := make(map[string]odoo.ProductRecord, len(branchRows))
	for _, rec := range branchRows {
		if rec.Barcode != "" {
			branchByBarcode[rec.Barcode] = rec
		}
	}

	report := &Report{
		PrincipalTotal:  len(principalRows),
		BranchTotal:     len(branchRows),
		Inconsistencies: []Inconsistency{},
	}
	for _, p := range principalRows {
		if p.Barcode == "" {
			continue
		}
		b, ok := branchByBarcode[p.Barcode]
		if !ok {
			continue
		}
		inc := Inconsistency{
			Barcode:            p.Barcode,
			PrincipalID:        p.ID,
			BranchID:           b.ID,
			PrincipalName:      p.Name,
			BranchName:         b.Name,
			PrincipalListPrice: p.ListPrice,
			BranchListPrice:    b.ListPrice,
			PrincipalCostPrice: p.StandardPrice,
			BranchCostPrice:    b.StandardPrice,
			ListPriceMismatch:  math.Abs(p.ListPrice-b.ListPrice) > PriceTolerance,
			CostPriceMismatch:  math.Abs(p.StandardPrice-b.StandardPrice) > PriceTolerance,
			NameMismatch:       p.Name != b.Name,
		}
		if inc.ListPriceMismatch || inc.CostPriceMismatch || inc.NameMismatch {
			report.Inconsistencies = append(report.Inconsistencies, inc)
		}
	}

	s.logger.Info("inconsistency scan finished",
		slog.Int("principal_total", report.PrincipalTotal),
		slog.Int("branch_total", report.BranchTotal),
		slog.Int("inconsistent", len(report.Inconsistencies)),
	)
	return report, nil
}

// Fix applies the requested repairs to the branch catalog. Items are
// independent, a failed one never blocks the rest.
func (s *Service) Fix(ctx context.Context, branch CatalogPort, items []FixItem) *FixReport {
	report := &FixReport{Total: len(items)}
	for _, it := range items {
		res := s.fixOne(ctx, branch, it)
		if res.Fixed {
			report.FixedCount++
		}
		report.Results = append(report.Results, res)
	}
	report.Success = report.FixedCount > 0
	s.logger.Info("inconsistency fix finished",
		slog.Int("total", report.Total),
		slog.Int("fixed", report.FixedCount),
	)
	return report
}

func (s *Service) fixOne(ctx context.Context, branch CatalogPort, it FixItem) FixResult {
	fields := make(map[string]any)
	if it.Name != nil {
		fields["name"] = *it.Name
	}
	if it.ListPrice != nil {
		fields["list_price"] = *it.ListPrice
	}
	if it.StandardPrice != nil {
		fields["standard_price"] = *it.StandardPrice
	}
	if len(fields) == 0 {
		return FixResult{Barcode: it.Barcode, Error: ErrNoFixData.Error()}
	}

	id, err := branch.FindByBarcode(ctx, it.Barcode)
	if err != nil {
		return FixResult{Barcode: it.Barcode, Error: err.Error()}
	}
	if err := branch.UpdateProduct(ctx, id, fields); err != nil {
		s.logger.Warn("fix failed",
			slog.String("barcode", it.Barcode),
			slog.Any("error", err),
		)
		return FixResult{Barcode: it.Barcode, Error: err.Error()}
	}
	return FixResult{Barcode: it.Barcode, Fixed: true}
}
