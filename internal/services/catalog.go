package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/flowdeck/ports"
	"github.com/soochol/flowdeck/internal/nodetypes"
)

const defaultCatalogTTL = 5 * time.Minute

// CatalogService keeps the node type registry's tool catalog current.
// Concurrent refreshes share one fetch; a failed fetch leaves the last
// known catalog (possibly empty) in place.
type CatalogService struct {
	source   ports.ToolCatalog
	registry *nodetypes.Registry
	ttl      time.Duration
	group    singleflight.Group

	mu        sync.Mutex
	fetchedAt time.Time
}

func NewCatalogService(source ports.ToolCatalog, registry *nodetypes.Registry, ttl time.Duration) *CatalogService {
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	return &CatalogService{source: source, registry: registry, ttl: ttl}
}

// Refresh fetches the catalog now. On failure the previous catalog is
// returned together with an ErrCatalogUnavailable error.
func (s *CatalogService) Refresh(ctx context.Context) ([]flowdeck.ToolInfo, error) {
	_, err, _ := s.group.Do("catalog", func() (any, error) {
		if err := s.registry.RefreshTools(ctx, s.source); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.fetchedAt = time.Now()
		s.mu.Unlock()
		return nil, nil
	})
	return s.registry.Tools(), err
}

// Tools returns the catalog, refreshing it first when it is older than the
// TTL. Refresh failures are logged and the stale catalog is served.
func (s *CatalogService) Tools(ctx context.Context) []flowdeck.ToolInfo {
	s.mu.Lock()
	fresh := !s.fetchedAt.IsZero() && time.Since(s.fetchedAt) < s.ttl
	s.mu.Unlock()
	if fresh {
		return s.registry.Tools()
	}
	tools, err := s.Refresh(ctx)
	if err != nil {
		slog.WarnContext(ctx, "serving stale tool catalog", "err", err, "tools", len(tools))
	}
	return tools
}

// Registry exposes the node type registry the catalog feeds.
func (s *CatalogService) Registry() *nodetypes.Registry {
	return s.registry
}
