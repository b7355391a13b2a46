package ocr

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNoEngineAvailable is returned when every engine failed or timed
// out for a page. The caller marks the document as failed; the batch
// continues with other documents.
var ErrNoEngineAvailable = errors.New("no-engine-available")

// Orchestrator fans a page image out to all configured engines
// concurrently, bounds each engine with a time budget and merges the
// surviving results into one ranked candidate set.
type Orchestrator struct {
	engines []Provider
	weights []float64
	timeout time.Duration
}

// OrchestratorConfig tunes engine weighting and per-page budgets.
type OrchestratorConfig struct {
	// PerPageTimeout bounds every engine call for one page. Engines
	// exceeding the budget are skipped, not retried.
	PerPageTimeout time.Duration

	// Weights by engine position in the priority order (earlier =
	// higher weight). Missing positions fall back to 1/(1+index).
	Weights []float64
}

const defaultPerPageTimeout = 60 * time.Second

// NewOrchestrator builds an orchestrator over engines given in
// priority order.
func NewOrchestrator(engines []Provider, config OrchestratorConfig) *Orchestrator {
	timeout := config.PerPageTimeout
	if timeout <= 0 {
		timeout = defaultPerPageTimeout
	}
	weights := make([]float64, len(engines))
	for i := range engines {
		if i < len(config.Weights) && config.Weights[i] > 0 {
			weights[i] = config.Weights[i]
		} else {
			weights[i] = 1.0 / float64(1+i)
		}
	}
	return &Orchestrator{engines: engines, weights: weights, timeout: timeout}
}

// Recognize runs all engines on one page image and merges their
// candidates. Engine failures and timeouts only exclude that engine's
// vote; the error return is non-nil only when no engine completed.
func (o *Orchestrator) Recognize(ctx context.Context, imageContent []byte, page int) (MergedResult, error) {
	results := make([]*Result, len(o.engines))

	var mu sync.Mutex
	var g errgroup.Group

	for i, engine := range o.engines {
		i, engine := i, engine
		g.Go(func() error {
			engineCtx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()

			start := time.Now()
			res, err := engine.ProcessImage(engineCtx, imageContent, page)
			if err != nil {
				log.WithFields(logrus.Fields{
					"engine":  engine.Name(),
					"page":    page,
					"elapsed": time.Since(start),
				}).WithError(err).Warn("Engine skipped for this page")
				return nil
			}

			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}

	// Merge must never observe a partial engine set.
	if err := g.Wait(); err != nil {
		return MergedResult{Page: page}, err
	}

	completed := 0
	for _, r := range results {
		if r != nil {
			completed++
		}
	}
	if completed == 0 {
		return MergedResult{Page: page}, ErrNoEngineAvailable
	}

	merged := Merge(results, o.engineIDs(), o.weights, page)
	log.WithFields(logrus.Fields{
		"page":       page,
		"engines":    completed,
		"candidates": len(merged.Candidates),
	}).Debug("Merged engine results")
	return merged, nil
}

func (o *Orchestrator) engineIDs() []string {
	ids := make([]string, len(o.engines))
	for i, e := range o.engines {
		ids[i] = e.Name()
	}
	return ids
}

// Merge combines per-engine results into a ranked, deduplicated
// candidate set. results is indexed by engine priority position; nil
// entries mark engines that failed or timed out. The ordering is fully
// deterministic: combined score descending, then engine id, page and
// normalized text ascending.
func Merge(results []*Result, engineIDs []string, weights []float64, page int) MergedResult {
	type group struct {
		best        Candidate
		weightedSum float64
		weightSum   float64
		// highest raw confidence this engine contributed, per engine
		perEngine map[int]float64
	}

	groups := make(map[string]*group)
	order := make([]string, 0)

	for i, res := range results {
		if res == nil {
			continue
		}
		w := 1.0
		if i < len(weights) && weights[i] > 0 {
			w = weights[i]
		}
		for _, cand := range res.Candidates {
			norm := NormalizeText(cand.Text)
			if norm == "" {
				continue
			}
			g, ok := groups[norm]
			if !ok {
				g = &group{best: cand, perEngine: make(map[int]float64)}
				groups[norm] = g
				order = append(order, norm)
			}
			// One vote per engine per text: keep the engine's strongest span.
			if prev, seen := g.perEngine[i]; !seen || cand.Confidence > prev {
				if seen {
					g.weightedSum -= w * prev
					g.weightSum -= w
				}
				g.perEngine[i] = cand.Confidence
				g.weightedSum += w * cand.Confidence
				g.weightSum += w
			}
			if cand.Confidence > g.best.Confidence ||
				(cand.Confidence == g.best.Confidence && cand.Engine < g.best.Engine) {
				g.best = cand
			}
		}
	}

	merged := MergedResult{Page: page, Candidates: make([]MergedCandidate, 0, len(groups))}
	for _, norm := range order {
		g := groups[norm]
		combined := 0.0
		if g.weightSum > 0 {
			combined = g.weightedSum / g.weightSum
		}
		merged.Candidates = append(merged.Candidates, MergedCandidate{
			Candidate: g.best,
			Combined:  combined,
		})
	}

	sort.SliceStable(merged.Candidates, func(a, b int) bool {
		ca, cb := merged.Candidates[a], merged.Candidates[b]
		if ca.Combined != cb.Combined {
			return ca.Combined > cb.Combined
		}
		if ca.Engine != cb.Engine {
			return ca.Engine < cb.Engine
		}
		if ca.Page != cb.Page {
			return ca.Page < cb.Page
		}
		return NormalizeText(ca.Text) < NormalizeText(cb.Text)
	})

	return merged
}
