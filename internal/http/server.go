// README: Ops HTTP surface: health, Prometheus metrics, and read-only
// dispatch introspection. Ride lifecycle traffic never flows through here;
// the document stores are the only write path.
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"ridelink/internal/http/middleware"
	"ridelink/internal/modules/location"
	"ridelink/internal/schema"
	"ridelink/internal/store"
	"ridelink/internal/types"
)

type ServerDeps struct {
	Passengers store.Store
	Drivers    store.Store
	Geo        *location.GeoIndex // optional; nearby lookups 503 without it
	Log        *logrus.Logger
}

type Server struct {
	passengers store.Store
	drivers    store.Store
	geo        *location.GeoIndex
	log        *logrus.Logger
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		passengers: deps.Passengers,
		drivers:    deps.Drivers,
		geo:        deps.Geo,
		log:        deps.Log,
	}
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Logging(s.log), middleware.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/api/requests/:id", s.handleGetRequest)
	r.GET("/api/drivers/:id", s.handleGetDriver)
	r.GET("/api/drivers/nearby", s.handleNearbyDrivers)

	return r
}

// Run serves until ctx ends, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleGetRequest(c *gin.Context) {
	doc, err := s.passengers.Get(c.Request.Context(), schema.RequestsCollection, c.Param("id"))
	if err != nil {
		s.respondDocError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": doc.ID, "data": doc.Data})
}

func (s *Server) handleGetDriver(c *gin.Context) {
	doc, err := s.drivers.Get(c.Request.Context(), schema.DriversCollection, c.Param("id"))
	if err != nil {
		s.respondDocError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": doc.ID, "data": doc.Data})
}

func (s *Server) handleNearbyDrivers(c *gin.Context) {
	if s.geo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "geo index not configured"})
		return
	}
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if latErr != nil || lngErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required"})
		return
	}
	radiusKm := 5.0
	if raw := c.Query("radius_km"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid radius_km"})
			return
		}
		radiusKm = r
	}

	ids, err := s.geo.Nearby(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radiusKm)
	if err != nil {
		s.log.WithError(err).Warn("nearby lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"drivers": ids, "radius_km": radiusKm})
}

func (s *Server) respondDocError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.log.WithError(err).Warn("document read failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "read failed"})
}
