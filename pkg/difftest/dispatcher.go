package difftest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

// Dispatcher issues one test case to every healthy service concurrently
// and collects a DatabaseResult per service. It waits for every service to
// settle before returning; a slow or failing service never suppresses the
// results of the others.
type Dispatcher struct {
	adapters map[string]vdb.Adapter
	timeout  time.Duration
	log      *zap.Logger
}

func NewDispatcher(adapters []vdb.Adapter, timeout time.Duration, log *zap.Logger) *Dispatcher {
	byName := make(map[string]vdb.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Dispatcher{adapters: byName, timeout: timeout, log: log}
}

// Dispatch runs tc against every service named in healthy. Results are
// returned in the order of healthy, one per dispatched service; names
// with no registered adapter are dropped from the result set so every
// returned result carries a service and, when failed, an error.
func (d *Dispatcher) Dispatch(ctx context.Context, tc TestCase, healthy []string) []DatabaseResult {
	targets := make([]string, 0, len(healthy))
	for _, name := range healthy {
		if _, ok := d.adapters[name]; ok {
			targets = append(targets, name)
		} else {
			d.log.Warn("no adapter registered for healthy service",
				zap.String("service", name))
		}
	}

	results := make([]DatabaseResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)

	for i, name := range targets {
		i, name, adapter := i, name, d.adapters[name]
		g.Go(func() error {
			opCtx, cancel := context.WithTimeout(gctx, d.timeout)
			defer cancel()

			start := time.Now()
			data, err := d.execute(opCtx, adapter, tc)
			elapsed := time.Since(start)

			res := DatabaseResult{
				Service:  name,
				Duration: elapsed,
			}
			if err != nil {
				res.Error = toResultError(err)
				d.log.Debug("operation failed",
					zap.String("service", name),
					zap.String("operation", string(tc.Op)),
					zap.Int64("case", tc.ID),
					zap.String("kind", string(res.Error.Kind)),
					zap.Duration("elapsed", elapsed))
			} else {
				res.Success = true
				res.Data = data
			}
			results[i] = res
			// Failures are data, never group errors: every service must
			// run to completion for the comparison to be meaningful.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) execute(ctx context.Context, a vdb.Adapter, tc TestCase) (*Outcome, error) {
	p := tc.Params
	switch tc.Op {
	case OpInsert, OpBatchInsert:
		ins, err := a.Insert(ctx, p.Collection, p.Vectors, p.IDs, p.Metadata)
		if err != nil {
			return nil, err
		}
		return &Outcome{InsertedIDs: ins.IDs}, nil

	case OpSearch, OpBatchSearch:
		searches := make([][]vdb.SearchHit, 0, len(p.Queries))
		for _, q := range p.Queries {
			sr, err := a.Search(ctx, p.Collection, q, p.K, p.Metric)
			if err != nil {
				return nil, err
			}
			searches = append(searches, sr.Hits)
		}
		return &Outcome{Searches: searches}, nil

	case OpDelete:
		del, err := a.Delete(ctx, p.Collection, p.IDs)
		if err != nil {
			return nil, err
		}
		removed := del.Removed
		return &Outcome{Removed: &removed}, nil

	case OpMixed:
		return d.executeMixed(ctx, a, p)

	default:
		return nil, &vdb.Error{Service: a.Name(), Op: string(tc.Op), Kind: vdb.KindProtocol, Err: errors.New("unknown operation")}
	}
}

// executeMixed runs the sub-operations in order, stopping at the first
// failure. The partial trace is a success at the case level; how far each
// service got is exactly what the comparator wants to see.
func (d *Dispatcher) executeMixed(ctx context.Context, a vdb.Adapter, p Parameters) (*Outcome, error) {
	sub := make([]SubOutcome, 0, len(p.Ops))
	for _, op := range p.Ops {
		var err error
		switch op.Op {
		case OpInsert:
			_, err = a.Insert(ctx, p.Collection, [][]float32{op.Vector}, []string{op.ID}, []map[string]any{op.Meta})
		case OpSearch:
			_, err = a.Search(ctx, p.Collection, op.Query, op.K, p.Metric)
		case OpDelete:
			_, err = a.Delete(ctx, p.Collection, op.IDs)
		default:
			err = &vdb.Error{Service: a.Name(), Op: string(op.Op), Kind: vdb.KindProtocol, Err: errors.New("unsupported sub-operation")}
		}
		if err != nil {
			sub = append(sub, SubOutcome{Op: op.Op, Success: false, Error: err.Error()})
			break
		}
		sub = append(sub, SubOutcome{Op: op.Op, Success: true})
	}
	return &Outcome{Sub: sub}, nil
}

func toResultError(err error) *ResultError {
	re := &ResultError{
		Kind:    vdb.KindOf(err),
		Message: err.Error(),
	}
	var verr *vdb.Error
	if errors.As(err, &verr) {
		re.Body = verr.Body
	}
	return re
}
