package maint

import (
	"context"

	logx "ftmaint/pkg/logx"
)

// scan builds the candidate set: every enumerated database that actually
// hosts the full-text feature, with its current fragment count.
//
// Databases without a catalog are dropped, not zero-filled; "no
// fragmentation" and "not applicable" must stay distinguishable.
func (r *Runner) scan(ctx context.Context) ([]Candidate, error) {
	dbs, err := r.eng.Databases(ctx)
	if err != nil {
		return nil, err
	}

	cands := make([]Candidate, 0, len(dbs))
	for _, db := range dbs {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		ok, err := r.eng.HasCatalog(ctx, db)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.log.Debug("no full-text catalog; dropped", logx.String("db", db))
			continue
		}
		frags, err := r.eng.FragmentCount(ctx, db)
		if err != nil {
			return nil, err
		}
		cands = append(cands, Candidate{Name: db, FragmentCount: frags})
	}
	return cands, nil
}
