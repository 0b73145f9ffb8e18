package cache

import (
	"context"
	"time"
)

// ReportCache memoizes report responses under a generation. Callers read the
// generation once before computing a report and pass it to both Get and Set,
// so a report computed across an Invalidate is written under a generation
// that is no longer read.
type ReportCache interface {
	Generation(ctx context.Context) (string, error)
	Get(ctx context.Context, gen string, key string, dest any) (bool, error)
	Set(ctx context.Context, gen string, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) Generation(_ context.Context) (string, error) {
	return "0", nil
}

func (NoopReportCache) Get(_ context.Context, _ string, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context) error {
	return nil
}
