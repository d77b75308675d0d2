// Package locks serializes writers that touch the same ledger scope, donor
// capacity record or subscription pair.
package locks

import (
	"context"
	"errors"
	"sort"
	"time"

	"bloodbank-ledger/internal/domain"
)

// Locker grants exclusive access to a set of keys. Keys are always taken in
// sorted order so two callers asking for overlapping sets cannot deadlock.
// The returned release func is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

// DefaultTimeout bounds how long Acquire waits when ctx carries no deadline.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is wrapped into a domain conflict when a lock cannot be taken in time.
var ErrTimeout = errors.New("lock wait timed out")

func conflict() error {
	return domain.NewError(domain.ErrConflict, "Resource is busy, please retry")
}

// normalize sorts and dedupes keys, dropping empties.
func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// isTimeout reports whether err came from waiting out the lock deadline.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout)
}
