package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/farzanaafroz998-source/FASTgo/internal/cache"
	"github.com/farzanaafroz998-source/FASTgo/internal/lifecycle"
	"github.com/farzanaafroz998-source/FASTgo/internal/observability"
)

const (
	FallbackStoreSummary = "Fast and delicious food delivered to your door."
	FallbackAdminInsight = "Operations are running smoothly today."
)

const (
	storeSystem = "You write short, upbeat copy for a food delivery app. Plain text only."
	adminSystem = "You advise the operations team of a food delivery platform. Be concrete and brief."
)

// Client generates text for a prompt. system is an optional instruction
// and may be empty.
type Client interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// Advisor produces the advisory blurbs shown on the dashboards. Every call
// answers: on any failure the fixed fallback is returned.
type Advisor struct {
	client  Client
	cache   *cache.TTL[string, string]
	timeout time.Duration
	logger  *slog.Logger
}

// New builds an Advisor. A nil client always answers with the fallbacks.
func New(client Client, ttl time.Duration, logger *slog.Logger) *Advisor {
	return &Advisor{
		client:  client,
		cache:   cache.NewTTL[string, string](ttl),
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

func (a *Advisor) StoreSummary(ctx context.Context, storeName string) string {
	prompt := fmt.Sprintf("Provide a catchy 2-sentence marketing summary for a food store named %s. Mention quality and speed.", storeName)
	return a.ask(ctx, "store:"+storeName, prompt, storeSystem, FallbackStoreSummary)
}

func (a *Advisor) AdminInsight(ctx context.Context, stats lifecycle.Stats) string {
	b, _ := json.Marshal(stats)
	prompt := fmt.Sprintf("Analyze these delivery stats: %s. Provide a very brief 1-sentence strategic advice for the admin.", b)
	return a.ask(ctx, "admin:"+string(b), prompt, adminSystem, FallbackAdminInsight)
}

func (a *Advisor) ask(ctx context.Context, key, prompt, system, fallback string) string {
	if a.client == nil {
		observability.AdvisorTotal.WithLabelValues("disabled").Inc()
		return fallback
	}
	if v, ok := a.cache.Get(key); ok {
		observability.AdvisorTotal.WithLabelValues("cached").Inc()
		return v
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	text, err := a.client.Generate(ctx, prompt, system)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		observability.AdvisorTotal.WithLabelValues("fallback").Inc()
		a.logger.Warn("advisor fallback", "key", key, "error", err)
		return fallback
	}
	observability.AdvisorTotal.WithLabelValues("ok").Inc()
	a.cache.Set(key, text)
	return text
}
