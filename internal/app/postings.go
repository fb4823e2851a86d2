package app

import (
	"context"

	"github.com/hermes-erp/hermes/internal/payroll"
	"github.com/hermes-erp/hermes/internal/procurement"
	"github.com/hermes-erp/hermes/internal/sales"
	"github.com/hermes-erp/hermes/jobs"
)

// PostingSources exposes the modules that may leave documents unposted to the
// retry and sweep jobs. Nil services are skipped.
func PostingSources(salesSvc *sales.Service, procurementSvc *procurement.Service, payrollSvc *payroll.Service) jobs.Sources {
	var list []jobs.PostingSource
	if salesSvc != nil {
		list = append(list, jobs.PostingSource{
			Module:       jobs.ModuleSales,
			ListUnposted: salesSvc.ListUnposted,
			Retry: func(ctx context.Context, id int64) (bool, error) {
				inv, err := salesSvc.RetryPosting(ctx, id, 0)
				return inv.PostingStatus == sales.PostingPosted, err
			},
		})
	}
	if procurementSvc != nil {
		list = append(list, jobs.PostingSource{
			Module:       jobs.ModuleProcurement,
			ListUnposted: procurementSvc.ListUnposted,
			Retry: func(ctx context.Context, id int64) (bool, error) {
				rec, err := procurementSvc.RetryPosting(ctx, id, 0)
				return rec.PostingStatus == procurement.PostingPosted, err
			},
		})
	}
	if payrollSvc != nil {
		list = append(list, jobs.PostingSource{
			Module:       jobs.ModulePayroll,
			ListUnposted: payrollSvc.ListUnposted,
			Retry: func(ctx context.Context, id int64) (bool, error) {
				run, err := payrollSvc.RetryPosting(ctx, id, 0)
				return run.PostingStatus == payroll.PostingPosted, err
			},
		})
	}
	return jobs.NewSources(list...)
}
