package reconcile

import (
	"context"

	"golang.org/x/sync/singleflight"
)

var auditGroup singleflight.Group

// singleflightAudit coalesces concurrent audits of one counter. The shared
// call runs detached from the first caller's cancellation so that a caller
// going away does not fail the others.
func singleflightAudit(ctx context.Context, key string, fn func(context.Context) (Report, error)) (Report, error, bool) {
	resultChan := auditGroup.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err(), false
	case res := <-resultChan:
		if res.Err != nil {
			return Report{}, res.Err, res.Shared
		}
		return res.Val.(Report), nil, res.Shared
	}
}
