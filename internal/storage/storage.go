package storage

import (
	"context"
	"errors"
	"fmt"

	"swapScope/internal/model"
)

// Exporter receives the report of a completed analysis.
type Exporter interface {
	Export(ctx context.Context, report model.Report) error
}

// MultiExporter hands a report to every exporter and joins their errors.
type MultiExporter []Exporter

func (m MultiExporter) Export(ctx context.Context, report model.Report) error {
	var errs []error
	for i, exp := range m {
		if exp == nil {
			continue
		}
		if err := exp.Export(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("exporter %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ReportPools lists the distinct resolved pools of a report in row order.
func ReportPools(report model.Report) []model.Pool {
	seen := make(map[string]struct{})
	pools := make([]model.Pool, 0, len(report.Rows))
	for _, row := range report.Rows {
		if row.PoolAddress == "" || row.PoolAddress == model.Placeholder {
			continue
		}
		if _, ok := seen[row.PoolAddress]; ok {
			continue
		}
		seen[row.PoolAddress] = struct{}{}
		pools = append(pools, model.Pool{
			Address: row.PoolAddress,
			Token0:  row.Token0Address,
			Token1:  row.Token1Address,
			Dex:     row.DexType,
		})
	}
	return pools
}
