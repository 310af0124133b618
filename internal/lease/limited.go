package lease

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited throttles every call of c through one token bucket shared by all
// workers. A non-positive limit returns c unchanged.
func Limited(c Client, perSecond float64, burst int) Client {
	if perSecond <= 0 {
		return c
	}
	if burst < 1 {
		burst = 1
	}
	return &limited{next: c, lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

type limited struct {
	next Client
	lim  *rate.Limiter
}

func (l *limited) Create(ctx context.Context) (string, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Create(ctx)
}

func (l *limited) Start(ctx context.Context, id string) (string, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Start(ctx, id)
}

func (l *limited) Close(ctx context.Context, id string) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	return l.next.Close(ctx, id)
}

func (l *limited) Delete(ctx context.Context, id string) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	return l.next.Delete(ctx, id)
}
