package responder

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"inbox_monitor/internal/domain/inbound"
)

// RateLimited spaces out calls to the wrapped Responder so a burst of
// matching items cannot flood the provider.
type RateLimited struct {
	next    inbound.Responder
	limiter *rate.Limiter
}

func NewRateLimited(next inbound.Responder, perSecond float64) *RateLimited {
	burst := int(math.Ceil(perSecond))
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Respond waits for a token and then delegates. A context that ends while
// waiting returns an error without calling the wrapped responder.
func (r *RateLimited) Respond(ctx context.Context, item inbound.Item, content string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("responder rate limit: %w", err)
	}
	return r.next.Respond(ctx, item, content)
}
