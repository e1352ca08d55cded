package eta

import (
	"context"
	"fmt"

	"github.com/farzanaafroz998-source/FASTgo/internal/cache"
	"github.com/farzanaafroz998-source/FASTgo/internal/geo"
	"github.com/farzanaafroz998-source/FASTgo/internal/models"
)

// Estimator returns the travel time in seconds between two points.
type Estimator interface {
	EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error)
}

// DefaultSpeedMps is roughly 29 km/h, a city riding speed.
const DefaultSpeedMps = 8.0

// StraightLine divides great-circle distance by a fixed speed.
type StraightLine struct {
	SpeedMps float64
}

func (s StraightLine) EstimateSeconds(_ context.Context, from, to models.Coord) (float64, error) {
	speed := s.SpeedMps
	if speed <= 0 {
		speed = DefaultSpeedMps
	}
	return geo.Distance(from, to) / speed, nil
}

// Fallback tries Primary and answers from Secondary when it fails.
type Fallback struct {
	Primary   Estimator
	Secondary Estimator
}

func (f Fallback) EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error) {
	if f.Primary != nil {
		if v, err := f.Primary.EstimateSeconds(ctx, from, to); err == nil {
			return v, nil
		}
	}
	return f.Secondary.EstimateSeconds(ctx, from, to)
}

// Cached memoizes another estimator per coordinate pair.
type Cached struct {
	next  Estimator
	cache *cache.TTL[string, float64]
}

func NewCached(next Estimator, c *cache.TTL[string, float64]) *Cached {
	return &Cached{next: next, cache: c}
}

func (c *Cached) EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error) {
	k := keyFor(from, to)
	if v, ok := c.cache.Get(k); ok {
		return v, nil
	}
	v, err := c.next.EstimateSeconds(ctx, from, to)
	if err != nil {
		return 0, err
	}
	c.cache.Set(k, v)
	return v, nil
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}
