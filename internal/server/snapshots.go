package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
)

func (s *Server) ListSnapshots(c *gin.Context) {
	var query struct {
		SourceID string `form:"source_id"`
		Status   string `form:"status"`
		Limit    string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	resp, err := s.snapshotSvc.List(c.Request.Context(), snapshotdomain.ListRequest{
		SourceID: strings.TrimSpace(query.SourceID),
		Status:   strings.TrimSpace(query.Status),
		Limit:    limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSnapshot(c *gin.Context) {
	resp, err := s.snapshotSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// LatestSnapshots resolves one snapshot per active source and reports the
// sources that could not be resolved.
func (s *Server) LatestSnapshots(c *gin.Context) {
	date, err := parseOptionalDate(c.Query("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.snapshotSvc.Latest(c.Request.Context(), date)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	snapshots := res.Snapshots
	if snapshots == nil {
		snapshots = []snapshotdomain.Snapshot{}
	}

	c.JSON(http.StatusOK, gin.H{
		"date":             formatOptionalDate(date),
		"sources_queried":  res.SourcesQueried,
		"sources_included": len(snapshots),
		"sources_missing":  missingOf(res),
		"data":             snapshots,
	})
}

func (s *Server) SnapshotForDate(c *gin.Context) {
	date, err := parseOptionalDate(c.Query("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if date == nil {
		AbortWithError(c, newValidationError("date", "date_required", "date is required"))
		return
	}

	snap, err := s.snapshotSvc.LatestForDate(c.Request.Context(), *date)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if snap == nil {
		AbortWithError(c, snapshotdomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snap})
}

func (s *Server) LatestSnapshotPerSubscription(c *gin.Context) {
	date, err := parseOptionalDate(c.Query("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.snapshotSvc.LatestPerSubscription(c.Request.Context(), date)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp == nil {
		resp = []snapshotdomain.SubscriptionSnapshot{}
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
