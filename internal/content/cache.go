package content

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"certprep/internal/quiz"
)

const cacheKeyPrefix = "certprep:cert:"

// CachedSource puts a Redis read-through cache and in-process request
// coalescing in front of another Source. A nil redis client keeps only the
// coalescing. Cache failures are logged and never fail a fetch.
type CachedSource struct {
	next  Source
	redis redis.Cmdable
	ttl   time.Duration
	group singleflight.Group
}

func NewCachedSource(next Source, client redis.Cmdable, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedSource{next: next, redis: client, ttl: ttl}
}

func cacheKey(slug string) string {
	return cacheKeyPrefix + slug
}

func (s *CachedSource) FetchCertification(ctx context.Context, slug string) (Certification, error) {
	slug = strings.TrimSpace(slug)
	if cert, ok := s.lookup(ctx, slug); ok {
		return cert, nil
	}

	// Coalesced callers share this fetch, so it must not die with the first
	// caller's request.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(slug, func() (interface{}, error) {
		cert, err := s.next.FetchCertification(shared, slug)
		if err != nil {
			return Certification{}, err
		}
		s.store(shared, slug, cert)
		return cert, nil
	})
	if err != nil {
		return Certification{}, err
	}
	return cloneCertification(v.(Certification)), nil
}

// Invalidate drops the cached copy of slug.
func (s *CachedSource) Invalidate(ctx context.Context, slug string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, cacheKey(slug)).Err()
}

func (s *CachedSource) lookup(ctx context.Context, slug string) (Certification, bool) {
	if s.redis == nil || slug == "" {
		return Certification{}, false
	}
	raw, err := s.redis.Get(ctx, cacheKey(slug)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("content cache get %s: %v", slug, err)
		}
		return Certification{}, false
	}
	var cert Certification
	if err := json.Unmarshal(raw, &cert); err != nil || len(cert.Questions) == 0 {
		log.Printf("content cache entry %s unreadable, refetching", slug)
		return Certification{}, false
	}
	return cert, true
}

func (s *CachedSource) store(ctx context.Context, slug string, cert Certification) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(cert)
	if err != nil {
		log.Printf("content cache encode %s: %v", slug, err)
		return
	}
	if err := s.redis.Set(ctx, cacheKey(slug), raw, s.ttl).Err(); err != nil {
		log.Printf("content cache set %s: %v", slug, err)
	}
}

func cloneCertification(c Certification) Certification {
	out := c
	if c.PassThreshold != nil {
		n := *c.PassThreshold
		out.PassThreshold = &n
	}
	out.Questions = make([]quiz.Question, len(c.Questions))
	for i, q := range c.Questions {
		q.Choices = append([]quiz.Choice(nil), q.Choices...)
		out.Questions[i] = q
	}
	return out
}
