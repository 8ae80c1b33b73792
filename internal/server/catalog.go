package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/vilosource/cielo-azure-billing/internal/customer/domain"
	meterdomain "github.com/vilosource/cielo-azure-billing/internal/meter/domain"
	resourcedomain "github.com/vilosource/cielo-azure-billing/internal/resource/domain"
	subscriptiondomain "github.com/vilosource/cielo-azure-billing/internal/subscription/domain"
)

func (s *Server) ListSources(c *gin.Context) {
	active, err := parseOptionalBool(c.Query("active"))
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	resp, err := s.sourceSvc.List(c.Request.Context(), active != nil && *active)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if active != nil && !*active {
		filtered := resp[:0]
		for _, source := range resp {
			if !source.Active {
				filtered = append(filtered, source)
			}
		}
		resp = filtered
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSource(c *gin.Context) {
	resp, err := s.sourceSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomers(c *gin.Context) {
	limit, ok := s.limitParam(c)
	if !ok {
		return
	}

	resp, err := s.customerSvc.List(c.Request.Context(), customerdomain.ListRequest{
		TenantID: strings.TrimSpace(c.Query("tenant_id")),
		Limit:    limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCustomer(c *gin.Context) {
	resp, err := s.customerSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	limit, ok := s.limitParam(c)
	if !ok {
		return
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), subscriptiondomain.ListRequest{
		CustomerID: strings.TrimSpace(c.Query("customer_id")),
		Name:       strings.TrimSpace(c.Query("name")),
		Limit:      limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSubscription(c *gin.Context) {
	resp, err := s.subscriptionSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListResources(c *gin.Context) {
	limit, ok := s.limitParam(c)
	if !ok {
		return
	}

	resp, err := s.resourceSvc.List(c.Request.Context(), resourcedomain.ListRequest{
		ResourceGroup: strings.TrimSpace(c.Query("resource_group")),
		Name:          strings.TrimSpace(c.Query("name")),
		Limit:         limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetResource(c *gin.Context) {
	resp, err := s.resourceSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMeters(c *gin.Context) {
	limit, ok := s.limitParam(c)
	if !ok {
		return
	}

	resp, err := s.meterSvc.List(c.Request.Context(), meterdomain.ListRequest{
		Category: strings.TrimSpace(c.Query("category")),
		Limit:    limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMeter(c *gin.Context) {
	resp, err := s.meterSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) limitParam(c *gin.Context) (int, bool) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return 0, false
	}
	return limit, true
}
