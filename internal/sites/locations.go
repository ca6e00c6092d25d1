package sites

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wolfdevsllc/rocketctl/internal/api"
	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/transport"
)

// Location catalog cache lifetimes.
const (
	LocationsTTL         = 24 * time.Hour
	DefaultLocationsTTL  = time.Hour
	locationsCachePrefix = "locations:"
)

//go:embed locations.yaml
var defaultLocationsYAML []byte

// DefaultLocations returns the built-in catalog used when the API is unavailable.
func DefaultLocations() []Location {
	var entries []struct {
		ID   int    `yaml:"id"`
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(defaultLocationsYAML, &entries); err != nil {
		panic(fmt.Sprintf("sites: embedded locations.yaml: %v", err))
	}
	locs := make([]Location, len(entries))
	for i, e := range entries {
		locs[i] = Location{ID: strconv.Itoa(e.ID), Name: e.Name}
	}
	return locs
}

func (s *Service) locationsKey() string {
	return locationsCachePrefix + s.client.Transport().BaseURL()
}

// Locations returns the location catalog. It never fails: a cached catalog
// is returned when present, then the API is tried, then the built-in list.
// A cached catalog with a non-numeric first id is discarded.
func (s *Service) Locations(ctx context.Context) []Location {
	key := s.locationsKey()

	var cached []Location
	if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn("failed to read location cache", "error", err)
	} else if ok && len(cached) > 0 {
		if cached[0].Numeric() {
			return cached
		}
		s.logger.Info("discarding cached locations with non-numeric ids")
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to clear location cache", "error", err)
		}
	}

	locs, err := s.FetchLocations(ctx)
	if err == nil && len(locs) > 0 {
		s.store(ctx, key, locs, LocationsTTL)
		return locs
	}
	if err != nil {
		s.logger.Error("failed to fetch Rocket.net locations", "error", err)
	}

	defaults := DefaultLocations()
	s.store(ctx, key, defaults, DefaultLocationsTTL)
	return defaults
}

// RefreshLocations drops the cached catalog and reloads it.
func (s *Service) RefreshLocations(ctx context.Context) []Location {
	if err := s.cache.Delete(ctx, s.locationsKey()); err != nil {
		s.logger.Warn("failed to clear location cache", "error", err)
	}
	return s.Locations(ctx)
}

func (s *Service) store(ctx context.Context, key string, locs []Location, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, locs, ttl); err != nil {
		s.logger.Warn("failed to cache locations", "error", err)
	}
}

// FetchLocations calls the API without the cache or fallback.
func (s *Service) FetchLocations(ctx context.Context) ([]Location, error) {
	resp := s.client.Request(ctx, "locations", http.MethodGet, nil, true)
	if err := api.Check(resp); err != nil {
		return nil, err
	}

	var data map[string]json.RawMessage
	if err := transport.Parse(resp, &data); err != nil {
		return nil, err
	}
	for _, key := range []string{"locations", "result"} {
		raw, ok := data[key]
		if !ok {
			continue
		}
		var locs []Location
		if err := json.Unmarshal(raw, &locs); err != nil {
			continue
		}
		s.logger.Debug("fetched locations", "count", len(locs))
		return locs, nil
	}
	return nil, output.ErrInvalidResponse("Invalid API response: no location list")
}
