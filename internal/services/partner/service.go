package partner

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/metrics"
	"tapdeal/internal/models"
	"tapdeal/internal/repositories"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL = 5 * time.Minute
	cacheName       = "partner"
)

type service struct {
	store   repositories.Store
	cache   Cache
	ttl     time.Duration
	maxRate decimal.Decimal
	metrics metrics.Collector
	group   singleflight.Group
}

// NewService creates the partner directory. cache may be nil, in which case
// every lookup goes to the store.
func NewService(store repositories.Store, cache Cache, maxRate decimal.Decimal, m metrics.Collector) Service {
	if store == nil {
		panic("store is required")
	}
	if m == nil {
		m = metrics.NoopCollector{}
	}
	return &service{
		store:   store,
		cache:   cache,
		ttl:     DefaultCacheTTL,
		maxRate: maxRate,
		metrics: m,
	}
}

func idKey(id uint) string        { return fmt.Sprintf("partner:id:%d", id) }
func ownerKey(userID uint) string { return fmt.Sprintf("partner:owner:%d", userID) }

func (s *service) Get(ctx context.Context, id uint) (*models.Partner, error) {
	return s.lookup(ctx, idKey(id), func() (*models.Partner, error) {
		return s.store.Partners().GetByID(ctx, id)
	})
}

func (s *service) GetByOwner(ctx context.Context, userID uint) (*models.Partner, error) {
	return s.lookup(ctx, ownerKey(userID), func() (*models.Partner, error) {
		return s.store.Partners().GetByOwner(ctx, userID)
	})
}

func (s *service) lookup(ctx context.Context, key string, load func() (*models.Partner, error)) (*models.Partner, error) {
	if s.cache != nil {
		var cached models.Partner
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("partner cache read failed")
		}
		if found {
			s.metrics.RecordCacheHit(cacheName)
			return &cached, nil
		}
		s.metrics.RecordCacheMiss(cacheName)
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		p, err := load()
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.SetWithTTL(ctx, key, p, s.ttl); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("partner cache write failed")
			}
		}
		return p, nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.ErrPartnerNotFound
		}
		return nil, fmt.Errorf("failed to load partner: %w", err)
	}
	p := *v.(*models.Partner)
	return &p, nil
}

func (s *service) UpdateDiscountRate(ctx context.Context, id uint, rate decimal.Decimal) (*models.Partner, error) {
	if rate.IsNegative() || rate.GreaterThan(s.maxRate) {
		return nil, apperrors.Validation("discountRate", fmt.Sprintf("must be between 0 and %s", s.maxRate.String()))
	}
	if !rate.Shift(2).IsInteger() {
		return nil, apperrors.Validation("discountRate", "must have at most two decimal places")
	}

	if err := s.store.Partners().UpdateDiscountRate(ctx, id, rate); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.ErrPartnerNotFound
		}
		return nil, fmt.Errorf("failed to update discount rate: %w", err)
	}
	p, err := s.store.Partners().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload partner: %w", err)
	}
	s.Invalidate(ctx, p)
	log.Info().Uint("partner_id", id).Str("discount_rate", rate.StringFixed(2)).Msg("partner discount rate updated")
	return p, nil
}

// Invalidate drops the cached copies of p.
func (s *service) Invalidate(ctx context.Context, p *models.Partner) {
	if s.cache == nil || p == nil {
		return
	}
	if err := s.cache.Delete(ctx, idKey(p.ID), ownerKey(p.OwnerUserID)); err != nil {
		log.Warn().Err(err).Uint("partner_id", p.ID).Msg("partner cache invalidation failed")
	}
}
