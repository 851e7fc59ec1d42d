package engine

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/retrofix/internal/correction"
)

// BatchFailure is one rejected request of a batch.
type BatchFailure struct {
	EntityID string          `json:"entity_id"`
	Code     correction.Code `json:"code,omitempty"`
	Reason   string          `json:"reason"`
	Err      error           `json:"-"`
}

// BatchResult reports a batch in input order. There is no cross-entity
// atomicity: succeeded requests stay committed whatever happens to the rest.
type BatchResult struct {
	Succeeded []string       `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
	Receipts  []Receipt      `json:"receipts,omitempty"`
}

// OK reports whether every request succeeded.
func (r BatchResult) OK() bool {
	return len(r.Failed) == 0
}

// SubmitBatch runs an independent pipeline per request. Up to
// Policy.BatchConcurrency pipelines run at once; results follow input order.
func (c *Coordinator) SubmitBatch(ctx context.Context, reqs []correction.Request) BatchResult {
	return c.runBatch(ctx, reqs, func(ctx context.Context, req correction.Request) (*Receipt, error) {
		receipt, err := c.SubmitCorrection(ctx, req)
		if err != nil {
			return nil, err
		}
		return &receipt, nil
	})
}

// PrecheckBatch runs every gate except commit for each request. A caller
// wanting all-or-nothing semantics submits only when the precheck is OK;
// a concurrent writer can still make a commit fail afterwards.
func (c *Coordinator) PrecheckBatch(ctx context.Context, reqs []correction.Request) BatchResult {
	return c.runBatch(ctx, reqs, func(ctx context.Context, req correction.Request) (*Receipt, error) {
		p := c.Begin(req)
		for _, stage := range []func(context.Context) error{p.Validate, p.CheckConflicts, p.AnalyzeImpact} {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := stage(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

type batchOutcome struct {
	receipt *Receipt
	err     error
}

func (c *Coordinator) runBatch(ctx context.Context, reqs []correction.Request, run func(context.Context, correction.Request) (*Receipt, error)) BatchResult {
	outcomes := make([]batchOutcome, len(reqs))

	var g errgroup.Group
	g.SetLimit(max(c.policy.BatchConcurrency, 1))
	for i, req := range reqs {
		g.Go(func() error {
			receipt, err := run(ctx, req)
			outcomes[i] = batchOutcome{receipt: receipt, err: err}
			// failures are per request and never cancel the batch
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{Succeeded: []string{}, Failed: []BatchFailure{}}
	for i, o := range outcomes {
		entityID := reqs[i].EntityID
		if o.err != nil {
			result.Failed = append(result.Failed, batchFailure(entityID, o.err))
			continue
		}
		result.Succeeded = append(result.Succeeded, entityID)
		if o.receipt != nil {
			result.Receipts = append(result.Receipts, *o.receipt)
		}
	}

	c.logger.Info("batch complete",
		"requests", len(reqs),
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed))
	return result
}

func batchFailure(entityID string, err error) BatchFailure {
	f := BatchFailure{EntityID: entityID, Reason: err.Error(), Err: err}
	var re *RejectError
	if errors.As(err, &re) {
		f.Code = re.Code
	}
	return f
}
