package geo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/farzanaafroz998-source/FASTgo/internal/models"
)

// DefaultKey is the sorted set shared with the location consumer.
const DefaultKey = "riders_geo"

// RedisGeo implements Geo with Redis GEO commands so every instance sees
// the same riders.
type RedisGeo struct {
	client  redis.UniversalClient
	key     string
	radiusM float64
}

func NewRedisGeo(client redis.UniversalClient, key string, radiusM float64) *RedisGeo {
	if key == "" {
		key = DefaultKey
	}
	if radiusM <= 0 {
		radiusM = 5000
	}
	return &RedisGeo{client: client, key: key, radiusM: radiusM}
}

func (r *RedisGeo) Upsert(ctx context.Context, loc models.RiderLocation) error {
	return Store(ctx, r.client, r.key, loc)
}

func (r *RedisGeo) Remove(ctx context.Context, riderID string) error {
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, r.key, riderID)
	pipe.Del(ctx, MetaKey(riderID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("geo remove %s: %w", riderID, err)
	}
	return nil
}

func (r *RedisGeo) Nearby(ctx context.Context, at models.Coord, limit int) ([]models.RiderLocation, error) {
	res, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  at.Lng,
			Latitude:   at.Lat,
			Radius:     r.radiusM,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}
	out := make([]models.RiderLocation, 0, len(res))
	for _, g := range res {
		loc := models.RiderLocation{RiderID: g.Name, Lat: g.Latitude, Lng: g.Longitude}
		if ts, err := r.client.HGet(ctx, MetaKey(g.Name), "updated_at").Result(); err == nil {
			loc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		}
		out = append(out, loc)
	}
	return out, nil
}

// Store writes one rider position and its metadata hash.
func Store(ctx context.Context, c redis.Cmdable, key string, loc models.RiderLocation) error {
	if _, err := c.GeoAdd(ctx, key, &redis.GeoLocation{Longitude: loc.Lng, Latitude: loc.Lat, Name: loc.RiderID}).Result(); err != nil {
		return fmt.Errorf("geoadd %s: %w", loc.RiderID, err)
	}
	ts := loc.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	if err := c.HSet(ctx, MetaKey(loc.RiderID), "updated_at", ts.UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", loc.RiderID, err)
	}
	return nil
}

func MetaKey(riderID string) string { return "rider:meta:" + riderID }
