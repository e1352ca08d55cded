package geo

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/farzanaafroz998-source/FASTgo/internal/models"
)

// Geo indexes the positions of online riders.
type Geo interface {
	Upsert(ctx context.Context, loc models.RiderLocation) error
	Remove(ctx context.Context, riderID string) error
	Nearby(ctx context.Context, at models.Coord, limit int) ([]models.RiderLocation, error)
}

// Index is the in-process Geo.
type Index struct {
	mu     sync.RWMutex
	riders map[string]models.RiderLocation
}

func NewIndex() *Index {
	return &Index{riders: make(map[string]models.RiderLocation)}
}

func (g *Index) Upsert(_ context.Context, loc models.RiderLocation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.riders[loc.RiderID] = loc
	return nil
}

func (g *Index) Remove(_ context.Context, riderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.riders, riderID)
	return nil
}

// naive scan; fine for a city's worth of riders
func (g *Index) Nearby(_ context.Context, at models.Coord, limit int) ([]models.RiderLocation, error) {
	g.mu.RLock()
	type pair struct {
		loc  models.RiderLocation
		dist float64
	}
	arr := make([]pair, 0, len(g.riders))
	for _, l := range g.riders {
		arr = append(arr, pair{l, Distance(at, models.Coord{Lat: l.Lat, Lng: l.Lng})})
	}
	g.mu.RUnlock()

	sort.Slice(arr, func(i, j int) bool {
		if arr[i].dist != arr[j].dist {
			return arr[i].dist < arr[j].dist
		}
		return arr[i].loc.RiderID < arr[j].loc.RiderID
	})
	if limit > 0 && limit < len(arr) {
		arr = arr[:limit]
	}
	out := make([]models.RiderLocation, len(arr))
	for i, p := range arr {
		out[i] = p.loc
	}
	return out, nil
}

// Distance is the great-circle distance in meters.
func Distance(a, b models.Coord) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
