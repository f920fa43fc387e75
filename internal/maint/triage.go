package maint

import (
	"context"
	"sort"

	logx "ftmaint/pkg/logx"
)

const gb = int64(1) << 30

// triage removes candidates not worth maintaining: first the fragment
// floor, then (only when a cap is set) the catalog size cap. Sizes are
// fetched lazily so an unlimited run never queries them.
//
// A catalog exactly at the cap stays; only strictly larger ones drop.
func (r *Runner) triage(ctx context.Context, cands []Candidate, cfg RunConfig) ([]Candidate, error) {
	kept := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.FragmentCount < cfg.ReorgThreshold {
			r.log.Debug("below reorganize threshold; dropped",
				logx.String("db", c.Name), logx.Int("fragments", c.FragmentCount))
			continue
		}
		kept = append(kept, c)
	}

	if cfg.MaxSizeGB == 0 {
		return kept, nil
	}

	capBytes := int64(cfg.MaxSizeGB) * gb
	sized := kept[:0]
	for _, c := range kept {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		size, err := r.eng.CatalogSizeBytes(ctx, c.Name)
		if err != nil {
			return nil, err
		}
		c.SizeBytes = size
		if size > capBytes {
			r.log.Info("catalog exceeds size cap; dropped",
				logx.String("db", c.Name),
				logx.Int64("size_bytes", size),
				logx.Int("max_size_gb", cfg.MaxSizeGB))
			continue
		}
		sized = append(sized, c)
	}
	return sized, nil
}

// buildQueue orders candidates by fragment count descending. The sort is
// stable so ties keep their scan order, and the queue is fixed for the
// rest of the run.
func buildQueue(cands []Candidate) []Candidate {
	queue := append([]Candidate(nil), cands...)
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].FragmentCount > queue[j].FragmentCount
	})
	return queue
}
