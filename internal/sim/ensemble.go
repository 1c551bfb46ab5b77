package sim

import (
	"context"
	"sync"

	"github.com/jijoderick/ambit/internal/config"
)

// Ensemble runs several configurations concurrently, one runner per
// configuration. Configurations must not share an output directory.
type Ensemble struct {
	configs []*config.Config
}

func NewEnsemble(cfgs ...*config.Config) *Ensemble {
	return &Ensemble{configs: cfgs}
}

// Run executes all member configurations and returns their results in input
// order. The first build or run error aborts the collection.
func (e *Ensemble) Run(ctx context.Context) ([]*Result, error) {
	results := make([]*Result, len(e.configs))
	errs := make([]error, len(e.configs))

	var wg sync.WaitGroup
	for i, cfg := range e.configs {
		wg.Add(1)
		go func(idx int, cfg *config.Config) {
			defer wg.Done()

			r, err := New(cfg)
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = r.Run(ctx)
		}(i, cfg)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
