// Package directory answers which provider governs a clinic location.
package directory

import (
	"context"
	"strings"
	"sync"

	"clinicsched/backend/internal/store"
)

type Directory interface {
	// FindProviderForLocation returns store.ErrNotFound when no provider is
	// assigned to the location.
	FindProviderForLocation(ctx context.Context, locationID string) (string, error)
}

// Static is an in-memory location to provider table.
type Static struct {
	mu       sync.RWMutex
	mappings map[string]string
}

func NewStatic(mappings map[string]string) *Static {
	s := &Static{mappings: make(map[string]string, len(mappings))}
	for loc, prov := range mappings {
		s.mappings[loc] = prov
	}
	return s
}

func (s *Static) FindProviderForLocation(ctx context.Context, locationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prov, ok := s.mappings[locationID]
	if !ok {
		return "", store.ErrNotFound
	}
	return prov, nil
}

func (s *Static) Assign(locationID, providerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[locationID] = providerID
}

// ParseMappings reads "loc=provider,loc2=provider2" as used by the
// directory.static config key. Malformed pairs are skipped.
func ParseMappings(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		loc, prov, ok := strings.Cut(strings.TrimSpace(pair), "=")
		loc, prov = strings.TrimSpace(loc), strings.TrimSpace(prov)
		if !ok || loc == "" || prov == "" {
			continue
		}
		out[loc] = prov
	}
	return out
}
