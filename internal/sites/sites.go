// Package sites implements site operations on the Rocket.net API.
package sites

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wolfdevsllc/rocketctl/internal/api"
	"github.com/wolfdevsllc/rocketctl/internal/cache"
	"github.com/wolfdevsllc/rocketctl/internal/events"
	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/transport"
)

// Defaults holds the configured values applied to requests.
type Defaults struct {
	ControlPanelURL string
	Location        int
	AdminUsername   string
	AccessTokenTTL  int
}

// Provider defaults used when a Defaults field is zero.
const (
	DefaultControlPanelURL = "https://my.rocket.net"
	DefaultLocation        = 21
	DefaultAdminUsername   = "admin"
	DefaultAccessTokenTTL  = 400
)

// BodyFilter may adjust a create request body before it is sent.
type BodyFilter func(body *Body, spec CreateSpec)

// Service performs site operations through an authenticated client.
type Service struct {
	client    *api.Client
	defaults  Defaults
	cache     cache.Cache
	publisher events.Publisher
	logger    *slog.Logger
	filter    BodyFilter
	password  func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the location catalog cache.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBodyFilter installs a create body filter.
func WithBodyFilter(f BodyFilter) Option {
	return func(s *Service) { s.filter = f }
}

// NewService creates a site service.
func NewService(client *api.Client, defaults Defaults, opts ...Option) *Service {
	if defaults.ControlPanelURL == "" {
		defaults.ControlPanelURL = DefaultControlPanelURL
	}
	if defaults.Location <= 0 {
		defaults.Location = DefaultLocation
	}
	if defaults.AdminUsername == "" {
		defaults.AdminUsername = DefaultAdminUsername
	}
	if defaults.AccessTokenTTL <= 0 {
		defaults.AccessTokenTTL = DefaultAccessTokenTTL
	}

	s := &Service{
		client:    client,
		defaults:  defaults,
		cache:     cache.NewMemoryCache(),
		publisher: events.Nop{},
		logger:    slog.New(slog.DiscardHandler),
		password:  GeneratePassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defaults returns the effective defaults.
func (s *Service) Defaults() Defaults {
	return s.defaults
}

// Create validates spec, applies defaults, and creates the site.
func (s *Service) Create(ctx context.Context, spec CreateSpec) (*Site, error) {
	if err := validateCreate(spec); err != nil {
		return nil, err
	}

	generated := false
	if spec.AdminPassword == "" {
		pw, err := s.password()
		if err != nil {
			return nil, fmt.Errorf("generate admin password: %w", err)
		}
		spec.AdminPassword = pw
		generated = true
	}

	body := s.createBody(spec)
	if s.filter != nil {
		s.filter(body, spec)
	}

	s.logger.Info("creating Rocket.net site", "name", spec.Name, "domain", spec.Domain, "fields", body.Keys())

	resp := s.client.Request(ctx, "partner/sites", http.MethodPost, body, true)
	s.logger.Debug("create site response", "status", resp.StatusCode)

	raw, err := decodeRecord(resp, true)
	if err != nil {
		s.logger.Error("site creation failed", "error", err)
		return nil, err
	}

	var site Site
	if err := json.Unmarshal(raw, &site); err != nil {
		return nil, output.ErrInvalidResponse("Invalid API response: site record is not an object")
	}
	if site.ID == "" {
		return nil, output.ErrInvalidResponse("Invalid API response: site record has no id")
	}
	if generated {
		site.AdminPassword = spec.AdminPassword
	}

	s.logger.Info("site created", "id", site.ID)
	s.publish(ctx, events.NewEvent(events.SiteCreated, site.ID, site))
	return &site, nil
}

func validateCreate(spec CreateSpec) error {
	var missing []string
	if strings.TrimSpace(spec.Domain) == "" {
		missing = append(missing, "domain")
	}
	if strings.TrimSpace(spec.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(spec.AdminEmail) == "" {
		missing = append(missing, "admin_email")
	}
	if len(missing) > 0 {
		return output.ErrInvalidInput("Missing required site data: " + strings.Join(missing, ", "))
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(spec.AdminEmail)); err != nil {
		return output.ErrInvalidInput("Invalid admin email: " + spec.AdminEmail)
	}
	if spec.Location < 0 {
		return output.ErrInvalidInput("location must be a positive id")
	}
	return nil
}

func (s *Service) createBody(spec CreateSpec) *Body {
	location := spec.Location
	if location == 0 {
		location = s.defaults.Location
	}
	username := strings.TrimSpace(spec.AdminUsername)
	if username == "" {
		username = s.defaults.AdminUsername
	}
	label := strings.TrimSpace(spec.Label)
	if label == "" {
		label = strings.TrimSpace(spec.Name)
	}

	b := NewBody()
	b.Set("domain", strings.TrimSpace(spec.Domain))
	b.Set("multisite", spec.Multisite)
	b.Set("name", strings.TrimSpace(spec.Name))
	b.Set("location", location)
	b.Set("admin_username", username)
	b.Set("admin_password", spec.AdminPassword)
	b.Set("admin_email", strings.TrimSpace(spec.AdminEmail))
	b.Set("install_plugins", JoinPlugins(spec.InstallPlugins))
	b.Set("label", label)
	if spec.QuotaMB > 0 {
		b.Set("quota", spec.QuotaMB)
	}
	if spec.BandwidthMB > 0 {
		b.Set("bwlimit", spec.BandwidthMB)
	}
	return b
}

// JoinPlugins comma-joins plugin slugs, dropping empty entries.
func JoinPlugins(plugins []string) string {
	out := make([]string, 0, len(plugins))
	for _, p := range plugins {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

// Get returns one site.
func (s *Service) Get(ctx context.Context, id string) (*Site, error) {
	endpoint, err := siteEndpoint(id, "")
	if err != nil {
		return nil, err
	}
	raw, err := decodeRecord(s.client.Request(ctx, endpoint, http.MethodGet, nil, true), false)
	if err != nil {
		return nil, err
	}
	var site Site
	if err := json.Unmarshal(raw, &site); err != nil {
		return nil, output.ErrInvalidResponse("Invalid API response: site record is not an object")
	}
	return &site, nil
}

// List returns one page of sites.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Site, error) {
	if f.Page <= 0 {
		f.Page = DefaultPage
	}
	if f.PerPage <= 0 {
		f.PerPage = DefaultPerPage
	}
	q := url.Values{}
	for k, v := range f.Extra {
		q.Set(k, v)
	}
	q.Set("page", strconv.Itoa(f.Page))
	q.Set("per_page", strconv.Itoa(f.PerPage))

	resp := s.client.Request(ctx, "sites?"+q.Encode(), http.MethodGet, nil, true)
	if err := api.Check(resp); err != nil {
		return nil, err
	}
	return decodeSiteList(resp.Body)
}

func decodeSiteList(body []byte) ([]Site, error) {
	var sites []Site
	if json.Unmarshal(body, &sites) == nil {
		return sites, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, output.ErrParse(err)
	}
	for _, key := range []string{"result", "data", "sites"} {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		if json.Unmarshal(raw, &sites) == nil {
			return sites, nil
		}
		// Paginated results nest the list one level down.
		var page map[string]json.RawMessage
		if json.Unmarshal(raw, &page) == nil {
			if inner, ok := page["data"]; ok && json.Unmarshal(inner, &sites) == nil {
				return sites, nil
			}
		}
	}
	return nil, output.ErrInvalidResponse("Invalid API response: no site list")
}

// Delete deletes a site. The provider must confirm with "success": true.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	endpoint, err := siteEndpoint(id, "")
	if err != nil {
		return false, err
	}
	s.logger.Info("deleting Rocket.net site", "id", id)

	resp := s.client.Request(ctx, endpoint, http.MethodDelete, nil, true)
	if err := confirm(resp, "Failed to delete site"); err != nil {
		s.logger.Error("site deletion failed", "id", id, "error", err)
		return false, err
	}

	s.logger.Info("site deleted", "id", id)
	s.publish(ctx, events.NewEvent(events.SiteDeleted, id, nil))
	return true, nil
}

// Update applies patch to a site. The provider must confirm with "success": true.
func (s *Service) Update(ctx context.Context, id string, patch map[string]any) (bool, error) {
	endpoint, err := siteEndpoint(id, "")
	if err != nil {
		return false, err
	}
	if len(patch) == 0 {
		return false, output.ErrInvalidInput("nothing to update")
	}
	resp := s.client.Request(ctx, endpoint, http.MethodPut, patch, true)
	if err := confirm(resp, "Failed to update site"); err != nil {
		return false, err
	}
	return true, nil
}

// AccessToken issues a short-lived control panel token. A ttl of zero uses
// the configured default.
func (s *Service) AccessToken(ctx context.Context, id string, ttl time.Duration) (string, error) {
	endpoint, err := siteEndpoint(id, "access_token")
	if err != nil {
		return "", err
	}
	seconds := int(ttl / time.Second)
	if seconds <= 0 {
		seconds = s.defaults.AccessTokenTTL
	}

	resp := s.client.Request(ctx, endpoint, http.MethodPost, map[string]int{"ttl": seconds}, true)
	if err := api.Check(resp); err != nil {
		return "", err
	}

	var data struct {
		Result struct {
			Token string `json:"token"`
		} `json:"result"`
		Token string `json:"token"`
	}
	if err := transport.Parse(resp, &data); err != nil {
		// result may be a non-object; retry with the flat shape only.
		var flat struct {
			Token string `json:"token"`
		}
		if ferr := transport.Parse(resp, &flat); ferr != nil {
			return "", err
		}
		data.Token = flat.Token
	}
	if data.Result.Token != "" {
		return data.Result.Token, nil
	}
	if data.Token != "" {
		return data.Token, nil
	}
	s.logger.Error("access token not found in response", "id", id)
	return "", output.ErrInvalidResponse("Access token not found in response")
}

// ControlPanelURL returns the hosted control panel link for a site.
func (s *Service) ControlPanelURL(siteID, accessToken string) string {
	q := url.Values{}
	q.Set("site", siteID)
	q.Set("token", accessToken)
	return strings.TrimRight(s.defaults.ControlPanelURL, "/") + "/manage?" + q.Encode()
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event", "type", e.Type, "site", e.SiteID, "error", err)
	}
}

func siteEndpoint(id, suffix string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", output.ErrInvalidInput("site id is required")
	}
	endpoint := "sites/" + url.PathEscape(id)
	if suffix != "" {
		endpoint += "/" + suffix
	}
	return endpoint, nil
}

// decodeRecord resolves a response to the site record it carries.
// allowFlat accepts a bare record with an id.
func decodeRecord(resp *transport.Response, allowFlat bool) (json.RawMessage, error) {
	if err := api.Check(resp); err != nil {
		return nil, err
	}

	env, err := ParseEnvelope(resp.Body)
	if err != nil {
		return nil, err
	}
	switch e := env.(type) {
	case SuccessEnvelope:
		return e.Result, nil
	case FlatEnvelope:
		if allowFlat {
			return e.Record, nil
		}
	case ErrorEnvelope:
		msg := e.Message
		if msg == "" {
			msg = "Provider reported failure"
		}
		return nil, output.ErrAPI(resp.StatusCode, msg)
	}
	return nil, output.ErrInvalidResponse("Invalid API response")
}

// confirm requires a 2xx response with "success": true.
func confirm(resp *transport.Response, failure string) error {
	if err := api.Check(resp); err != nil {
		return err
	}
	ok, msg, err := SuccessFlag(resp.Body)
	if err != nil {
		return err
	}
	if !ok {
		if msg != "" {
			failure += ": " + msg
		}
		return output.ErrAPI(resp.StatusCode, failure)
	}
	return nil
}
