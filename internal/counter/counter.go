package counter

import "context"

// Well-known counter keys.
const (
	KeyDownloads = "downloads"
	KeyUploads   = "uploads"
)

// Store tracks monotonically increasing usage counters. Implementations are
// best-effort; callers log failures and never fail the request over them.
type Store interface {
	Incr(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (int64, error)
}
