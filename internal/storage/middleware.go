package storage

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Instrumented wraps next so every call is reported to obs.
func Instrumented(next ObjectStore, obs Observer) ObjectStore {
	if obs == nil {
		obs = nopObserver{}
	}
	return &instrumented{next: next, obs: obs}
}

type instrumented struct {
	next ObjectStore
	obs  Observer
}

func (s *instrumented) List(ctx context.Context, prefix string) ([]Object, error) {
	start := time.Now()
	objects, err := s.next.List(ctx, prefix)
	s.obs.RecordOperation("list", time.Since(start), err)
	if err == nil {
		var total int64
		for _, o := range objects {
			total += o.SizeBytes
		}
		s.obs.RecordListed(len(objects), total)
	}
	return objects, err
}

func (s *instrumented) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := s.next.Delete(ctx, path)
	s.obs.RecordOperation("delete", time.Since(start), err)
	return err
}

func (s *instrumented) Copy(ctx context.Context, src, dst string) error {
	start := time.Now()
	err := s.next.Copy(ctx, src, dst)
	s.obs.RecordOperation("copy", time.Since(start), err)
	return err
}

func (s *instrumented) URL(ctx context.Context, path string) (string, error) {
	start := time.Now()
	u, err := s.next.URL(ctx, path)
	s.obs.RecordOperation("url", time.Since(start), err)
	return u, err
}

// RateLimited wraps next so Delete and Copy wait on a token bucket of
// perSecond tokens. A non-positive perSecond returns next unchanged.
func RateLimited(next ObjectStore, perSecond float64, burst int) ObjectStore {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

type rateLimited struct {
	next    ObjectStore
	limiter *rate.Limiter
}

func (s *rateLimited) List(ctx context.Context, prefix string) ([]Object, error) {
	return s.next.List(ctx, prefix)
}

func (s *rateLimited) Delete(ctx context.Context, path string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.next.Delete(ctx, path)
}

func (s *rateLimited) Copy(ctx context.Context, src, dst string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.next.Copy(ctx, src, dst)
}

func (s *rateLimited) URL(ctx context.Context, path string) (string, error) {
	return s.next.URL(ctx, path)
}
