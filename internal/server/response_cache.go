package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/vilosource/cielo-azure-billing/internal/cache"
	obsmiddleware "github.com/vilosource/cielo-azure-billing/internal/observability/logger"
	"go.uber.org/zap"
)

// respondCached serves the stored body for the request when present and
// otherwise builds, stores and writes a fresh one. Only successful payloads
// are stored.
func (s *Server) respondCached(c *gin.Context, endpoint, date string, build func() (any, error)) {
	ctx := c.Request.Context()
	key := cache.Key(c.Request.URL.Path, date, c.Request.URL.Query())

	if body, ok := s.cache.Get(ctx, key); ok {
		s.obsMetrics.RecordCacheLookup(ctx, endpoint, true)
		c.Set(obsmiddleware.CacheStatusKey, "hit")
		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
		return
	}
	s.obsMetrics.RecordCacheLookup(ctx, endpoint, false)
	c.Set(obsmiddleware.CacheStatusKey, "miss")

	payload, err := build()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.cache.Set(ctx, key, body, s.cfg.Cache.TTL)
	s.log.Debug("response cached", zap.String("endpoint", endpoint), zap.Int("bytes", len(body)))

	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
