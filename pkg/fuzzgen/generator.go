// Package fuzzgen produces randomized vector-database operations. The
// generator is deliberately hostile: a tunable fraction of its output
// carries NaN and infinity components, empty or wrong-width vectors,
// malformed identifiers and references to collections that do not exist.
// Given the same seed and configuration it always produces the same
// sequence, so any finding can be replayed.
package fuzzgen

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/vdbdiff/vdbdiff/pkg/difftest"
	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

var (
	errInvalidDimension = errors.New("fuzzgen: dimension must be positive")
	errInvalidBounds    = errors.New("fuzzgen: max_batch and max_k must be positive")
	errNoOperations     = errors.New("fuzzgen: all operation weights are zero")
	errNegativeWeight   = errors.New("fuzzgen: operation weights must not be negative")
)

// Generator emits test cases one at a time. It is not safe for concurrent
// use; the runner drives it from a single goroutine.
type Generator struct {
	cfg    Config
	rng    *rand.Rand
	seed   int64
	nextID int64

	// issuedIDs remembers identifiers from earlier cases so deletes can
	// target existing points and the duplicate-id edge case can fire.
	issuedIDs []string
}

// New creates a generator. A zero seed is replaced with the current time,
// and the effective seed is recoverable via Seed for replay.
func New(cfg Config, seed int64) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(seed)),
		seed: seed,
	}, nil
}

// Seed returns the effective seed the generator runs on.
func (g *Generator) Seed() int64 { return g.seed }

// Next produces the next test case in the deterministic sequence.
func (g *Generator) Next() difftest.TestCase {
	g.nextID++
	tc := difftest.TestCase{
		ID: g.nextID,
		Op: g.pickOp(),
	}
	tc.Params.Collection = g.collection()

	switch tc.Op {
	case difftest.OpInsert:
		g.fillInsert(&tc.Params, 1)
	case difftest.OpBatchInsert:
		g.fillInsert(&tc.Params, g.batchSize())
	case difftest.OpSearch:
		g.fillSearch(&tc.Params, 1)
	case difftest.OpBatchSearch:
		g.fillSearch(&tc.Params, 2+g.rng.Intn(4))
	case difftest.OpDelete:
		g.fillDelete(&tc.Params)
	case difftest.OpMixed:
		g.fillMixed(&tc.Params)
	}
	return tc
}

func (g *Generator) pickOp() difftest.Operation {
	w := g.cfg.Weights
	weights := []int{w.Insert, w.BatchInsert, w.Search, w.BatchSearch, w.Delete, w.Mixed}
	total := 0
	for _, v := range weights {
		total += v
	}
	n := g.rng.Intn(total)
	for i, v := range weights {
		if n < v {
			return difftest.Operations[i]
		}
		n -= v
	}
	return difftest.OpInsert
}

func (g *Generator) batchSize() int {
	if g.cfg.MaxBatch <= 2 {
		return 2
	}
	return 2 + g.rng.Intn(g.cfg.MaxBatch-1)
}

func (g *Generator) collection() string {
	if g.rng.Float64() < g.cfg.MissingCollProb {
		return fmt.Sprintf("missing_%d", g.rng.Intn(1_000_000))
	}
	return g.cfg.Collection
}

func (g *Generator) fillInsert(p *difftest.Parameters, n int) {
	p.Vectors = make([][]float32, n)
	p.IDs = make([]string, n)
	for i := 0; i < n; i++ {
		p.Vectors[i] = g.vector()
		p.IDs[i] = g.id()
	}
	if g.rng.Float64() < g.cfg.MetadataProb {
		p.Metadata = make([]map[string]any, n)
		for i := 0; i < n; i++ {
			p.Metadata[i] = g.metadata()
		}
	}
	g.issuedIDs = append(g.issuedIDs, p.IDs...)
}

func (g *Generator) fillSearch(p *difftest.Parameters, queries int) {
	p.Queries = make([][]float32, queries)
	for i := range p.Queries {
		p.Queries[i] = g.vector()
	}
	p.K = 1 + g.rng.Intn(g.cfg.MaxK)
	p.Metric = g.metric()
}

func (g *Generator) fillDelete(p *difftest.Parameters) {
	n := 1 + g.rng.Intn(5)
	p.IDs = make([]string, n)
	for i := range p.IDs {
		// Half the targets are ids actually issued before, so deletes
		// exercise both the hit and the miss path.
		if len(g.issuedIDs) > 0 && g.rng.Float64() < 0.5 {
			p.IDs[i] = g.issuedIDs[g.rng.Intn(len(g.issuedIDs))]
		} else {
			p.IDs[i] = g.id()
		}
	}
}

func (g *Generator) fillMixed(p *difftest.Parameters) {
	p.Metric = g.metric()
	steps := 2 + g.rng.Intn(4)
	p.Ops = make([]difftest.SubOp, 0, steps)
	for i := 0; i < steps; i++ {
		switch g.rng.Intn(3) {
		case 0:
			id := g.id()
			g.issuedIDs = append(g.issuedIDs, id)
			sub := difftest.SubOp{Op: difftest.OpInsert, Vector: g.vector(), ID: id}
			if g.rng.Float64() < g.cfg.MetadataProb {
				sub.Meta = g.metadata()
			}
			p.Ops = append(p.Ops, sub)
		case 1:
			p.Ops = append(p.Ops, difftest.SubOp{
				Op:    difftest.OpSearch,
				Query: g.vector(),
				K:     1 + g.rng.Intn(g.cfg.MaxK),
			})
		default:
			ids := []string{g.id()}
			if len(g.issuedIDs) > 0 {
				ids = append(ids, g.issuedIDs[g.rng.Intn(len(g.issuedIDs))])
			}
			p.Ops = append(p.Ops, difftest.SubOp{Op: difftest.OpDelete, IDs: ids})
		}
	}
}

// vector draws a vector of the configured dimension, or an empty or
// wrong-width one when the corresponding edge case fires. Components are
// uniform in [-1, 1) except when the edge-value draw replaces one with
// 0, NaN or an infinity.
func (g *Generator) vector() []float32 {
	if g.rng.Float64() < g.cfg.EmptyVectorProb {
		return []float32{}
	}
	dim := g.cfg.Dimension
	if g.rng.Float64() < g.cfg.WrongDimensionProb {
		if g.rng.Intn(2) == 0 {
			dim = g.cfg.Dimension + 1 + g.rng.Intn(g.cfg.Dimension)
		} else if g.cfg.Dimension > 1 {
			dim = 1 + g.rng.Intn(g.cfg.Dimension-1)
		}
	}
	v := make([]float32, dim)
	for i := range v {
		if g.rng.Float64() < g.cfg.EdgeValueProb {
			v[i] = g.edgeValue()
		} else {
			v[i] = g.rng.Float32()*2 - 1
		}
	}
	return v
}

func (g *Generator) edgeValue() float32 {
	switch g.rng.Intn(4) {
	case 0:
		return 0
	case 1:
		return float32(math.NaN())
	case 2:
		return float32(math.Inf(1))
	default:
		return float32(math.Inf(-1))
	}
}

// id draws a well-formed identifier, or one of the malformed shapes when
// the edge case fires: empty, excessively long, control characters, or a
// duplicate of an id issued earlier in the run.
func (g *Generator) id() string {
	if g.rng.Float64() < g.cfg.MalformedIDProb {
		switch g.rng.Intn(4) {
		case 0:
			return ""
		case 1:
			return strings.Repeat("x", 512+g.rng.Intn(512))
		case 2:
			return fmt.Sprintf("id\x00%d\x07", g.rng.Intn(1000))
		default:
			if len(g.issuedIDs) > 0 {
				return g.issuedIDs[g.rng.Intn(len(g.issuedIDs))]
			}
		}
	}
	return fmt.Sprintf("id_%d_%d", g.nextID, g.rng.Intn(1_000_000))
}

func (g *Generator) metadata() map[string]any {
	meta := map[string]any{
		"tag":   fmt.Sprintf("t%d", g.rng.Intn(100)),
		"batch": g.rng.Intn(10),
	}
	if g.rng.Intn(2) == 0 {
		meta["score"] = g.rng.Float64()
	}
	return meta
}

func (g *Generator) metric() vdb.Metric {
	switch g.rng.Intn(3) {
	case 0:
		return vdb.MetricL2
	case 1:
		return vdb.MetricCosine
	default:
		return vdb.MetricInnerProduct
	}
}
