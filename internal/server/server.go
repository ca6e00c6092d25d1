// Package server exposes site operations over HTTP for collaborating
// services. Every /v1 route requires an HS256 bearer token.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/wolfdevsllc/rocketctl/internal/auth"
	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/sites"
)

const shutdownTimeout = 10 * time.Second

// Sites is the subset of sites.Service the server calls.
type Sites interface {
	Create(ctx context.Context, spec sites.CreateSpec) (*sites.Site, error)
	Get(ctx context.Context, id string) (*sites.Site, error)
	List(ctx context.Context, f sites.ListFilter) ([]sites.Site, error)
	Update(ctx context.Context, id string, patch map[string]any) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	AccessToken(ctx context.Context, id string, ttl time.Duration) (string, error)
	ControlPanelURL(siteID, accessToken string) string
	Locations(ctx context.Context) []sites.Location
}

// Connector checks provider connectivity.
type Connector interface {
	TestConnection(ctx context.Context) auth.ConnectionResult
}

// Config configures the server.
type Config struct {
	Addr   string
	Secret string
	Logger *slog.Logger
}

// Server is the collaborator HTTP server.
type Server struct {
	echo   *echo.Echo
	addr   string
	sites  Sites
	conn   Connector
	logger *slog.Logger
}

// New builds the server. It refuses to run without a signing secret.
func New(cfg Config, conn Connector, svc Sites) (*Server, error) {
	if cfg.Secret == "" {
		return nil, output.ErrUsageHint("server_secret is not configured",
			"Run: rocketctl config set server_secret <value>, or set ROCKET_SERVER_SECRET")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		echo:   echo.New(),
		addr:   cfg.Addr,
		sites:  svc,
		conn:   conn,
		logger: logger,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	v1 := s.echo.Group("/v1", middleware.BodyLimit("64K"), echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(cfg.Secret),
		SigningMethod: jwt.SigningMethodHS256.Name,
		ErrorHandler:  s.unauthorized,
	}))
	v1.GET("/connection", s.getConnection)
	v1.GET("/locations", s.getLocations)
	v1.GET("/sites", s.listSites)
	v1.POST("/sites", s.createSite)
	v1.GET("/sites/:id", s.getSite)
	v1.PUT("/sites/:id", s.updateSite)
	v1.DELETE("/sites/:id", s.deleteSite)
	v1.POST("/sites/:id/access-token", s.createAccessToken)

	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errCh <- s.echo.Start(s.addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) getConnection(c echo.Context) error {
	res := s.conn.TestConnection(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{"success": res.Success, "message": res.Message})
}

func (s *Server) getLocations(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sites.Locations(c.Request().Context()))
}

func (s *Server) listSites(c echo.Context) error {
	f := sites.ListFilter{Extra: map[string]string{}}
	for k, v := range c.QueryParams() {
		if len(v) == 0 {
			continue
		}
		switch k {
		case "page":
			f.Page, _ = strconv.Atoi(v[0])
		case "per_page":
			f.PerPage, _ = strconv.Atoi(v[0])
		default:
			f.Extra[k] = v[0]
		}
	}
	list, err := s.sites.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

type createRequest struct {
	Domain         string   `json:"domain"`
	Name           string   `json:"name"`
	Location       int      `json:"location"`
	AdminUsername  string   `json:"admin_username"`
	AdminPassword  string   `json:"admin_password"`
	AdminEmail     string   `json:"admin_email"`
	Multisite      bool     `json:"multisite"`
	InstallPlugins []string `json:"install_plugins"`
	Quota          int64    `json:"quota"`
	BandwidthLimit int64    `json:"bwlimit"`
	Label          string   `json:"label"`
}

func (s *Server) createSite(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return output.ErrInvalidInput("invalid body")
	}
	site, err := s.sites.Create(c.Request().Context(), sites.CreateSpec{
		Domain:         req.Domain,
		Name:           req.Name,
		Location:       req.Location,
		AdminUsername:  req.AdminUsername,
		AdminPassword:  req.AdminPassword,
		AdminEmail:     req.AdminEmail,
		Multisite:      req.Multisite,
		InstallPlugins: req.InstallPlugins,
		QuotaMB:        req.Quota,
		BandwidthMB:    req.BandwidthLimit,
		Label:          req.Label,
	})
	if err != nil {
		return err
	}
	s.logger.Info("site created via api", "id", site.ID, "caller", subject(c))
	return c.JSON(http.StatusCreated, site)
}

func (s *Server) getSite(c echo.Context) error {
	site, err := s.sites.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, site)
}

func (s *Server) updateSite(c echo.Context) error {
	// Decoded directly: Bind would copy the :id path param into the map.
	var patch map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&patch); err != nil {
		return output.ErrInvalidInput("invalid body")
	}
	if _, err := s.sites.Update(c.Request().Context(), c.Param("id"), patch); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) deleteSite(c echo.Context) error {
	if _, err := s.sites.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	s.logger.Info("site deleted via api", "id", c.Param("id"), "caller", subject(c))
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) createAccessToken(c echo.Context) error {
	var req struct {
		TTL int `json:"ttl"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return output.ErrInvalidInput("invalid body")
	}
	id := c.Param("id")
	token, err := s.sites.AccessToken(c.Request().Context(), id, time.Duration(req.TTL)*time.Second)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"token":             token,
		"control_panel_url": s.sites.ControlPanelURL(id, token),
	})
}

// handleError renders errors as {"error", "code"} with a status derived from
// the error code. Echo's own errors keep their status.
// unauthorized reports every missing, malformed or invalid bearer token as 401.
func (s *Server) unauthorized(c echo.Context, err error) error {
	s.logger.Debug("bearer token rejected", "path", c.Path(), "error", err)
	return echo.NewHTTPError(http.StatusUnauthorized, "Missing or invalid bearer token")
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		_ = c.JSON(he.Code, map[string]string{"error": msg, "code": codeForStatus(he.Code)})
		return
	}

	e := output.AsError(err)
	status := StatusFor(e)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "code", e.Code, "error", e.Message)
	}
	_ = c.JSON(status, map[string]string{"error": e.Message, "code": e.Code})
}

// StatusFor maps an error to the status returned to collaborators. Provider
// and token failures are upstream problems and surface as 502.
func StatusFor(e *output.Error) int {
	switch e.Code {
	case output.CodeInvalidInput, output.CodeUsage:
		return http.StatusBadRequest
	case output.CodeNotFound:
		return http.StatusNotFound
	case output.CodeAPI:
		if e.HTTPStatus >= 400 && e.HTTPStatus < 500 && e.HTTPStatus != http.StatusUnauthorized {
			return e.HTTPStatus
		}
		return http.StatusBadGateway
	case output.CodeNetwork, output.CodeParse, output.CodeInvalidResponse,
		output.CodeAuth, output.CodeMissingCredentials, output.CodeLoginFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return output.CodeAuth
	case http.StatusNotFound:
		return output.CodeNotFound
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return output.CodeInvalidInput
	default:
		return output.CodeAPI
	}
}

func subject(c echo.Context) string {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return ""
	}
	sub, _ := token.Claims.GetSubject()
	return sub
}
