package matcher

import (
	"context"
	"fmt"
	"sort"

	"github.com/farzanaafroz998-source/FASTgo/internal/eta"
	"github.com/farzanaafroz998-source/FASTgo/internal/geo"
	"github.com/farzanaafroz998-source/FASTgo/internal/models"
)

type Geo interface {
	Nearby(ctx context.Context, at models.Coord, limit int) ([]models.RiderLocation, error)
}

// Suggestion is one candidate rider for an order.
type Suggestion struct {
	RiderID      string  `json:"riderId"`
	DistanceM    float64 `json:"distanceM"`
	ETASeconds   float64 `json:"etaSeconds"`
	ActiveOrders int     `json:"activeOrders"`
	Cost         float64 `json:"cost"`
}

// Service ranks nearby riders for an order. It only suggests; assignment
// stays an explicit command.
type Service struct {
	Geo  Geo
	ETA  eta.Estimator // optional, straight line when nil
	TopN int
	// Load returns how many active orders a rider already carries.
	Load func(riderID string) int
	// LoadPenaltySec is added to the ETA for every active order.
	LoadPenaltySec float64
}

func (s *Service) Suggest(ctx context.Context, o models.Order) ([]Suggestion, error) {
	topN := s.TopN
	if topN <= 0 {
		topN = 5
	}
	est := s.ETA
	if est == nil {
		est = eta.StraightLine{}
	}
	cands, err := s.Geo.Nearby(ctx, o.Location, topN)
	if err != nil {
		return nil, fmt.Errorf("nearby riders: %w", err)
	}
	out := make([]Suggestion, 0, len(cands))
	for _, c := range cands {
		from := models.Coord{Lat: c.Lat, Lng: c.Lng}
		etaSec, err := est.EstimateSeconds(ctx, from, o.Location)
		if err != nil {
			etaSec, _ = eta.StraightLine{}.EstimateSeconds(ctx, from, o.Location)
		}
		sg := Suggestion{RiderID: c.RiderID, ETASeconds: etaSec, DistanceM: geo.Distance(from, o.Location)}
		if s.Load != nil {
			sg.ActiveOrders = s.Load(c.RiderID)
		}
		sg.Cost = etaSec + s.LoadPenaltySec*float64(sg.ActiveOrders)
		out = append(out, sg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	return out, nil
}
