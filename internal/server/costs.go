package server

import (
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	costdomain "github.com/vilosource/cielo-azure-billing/internal/costentry/domain"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
)

const virtualMachinesCategory = "Virtual Machines"

type summaryResponse struct {
	Date            *string                        `json:"date"`
	SourcesQueried  int                            `json:"sources_queried"`
	SourcesIncluded int                            `json:"sources_included"`
	SourcesMissing  []snapshotdomain.MissingSource `json:"sources_missing"`
	Data            []map[string]any               `json:"data"`
}

type resourceGroupTotalsResponse struct {
	ResourceGroup  string                         `json:"resource_group"`
	Date           *string                        `json:"date"`
	TotalResources int                            `json:"total_resources"`
	SourcesMissing []snapshotdomain.MissingSource `json:"sources_missing"`
	Data           []map[string]any               `json:"data"`
}

type aggregateResponse struct {
	summaryResponse
	GroupBy []string `json:"group_by"`
}

func (s *Server) SubscriptionSummary(c *gin.Context) {
	s.summary(c, "subscription-summary", nil, costdomain.DimSubscriptionID, costdomain.DimSubscriptionName)
}

func (s *Server) VirtualMachinesSummary(c *gin.Context) {
	s.summary(c, "virtual-machines-summary", func(f *costdomain.Filter) {
		if f.MeterCategory == "" {
			f.MeterCategory = virtualMachinesCategory
		}
	}, costdomain.DimSubscriptionID, costdomain.DimSubscriptionName)
}

func (s *Server) ResourceGroupSummary(c *gin.Context) {
	s.summary(c, "resource-group-summary", nil, costdomain.DimResourceGroup)
}

func (s *Server) MeterCategorySummary(c *gin.Context) {
	s.summary(c, "meter-category-summary", nil, costdomain.DimMeterCategory)
}

func (s *Server) RegionSummary(c *gin.Context) {
	s.summary(c, "region-summary", nil, costdomain.DimLocation)
}

func (s *Server) summary(c *gin.Context, endpoint string, defaults func(*costdomain.Filter), dims ...costdomain.Dimension) {
	date, err := parseOptionalDate(c.Query("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	filter, err := parseCostFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if defaults != nil {
		defaults(&filter)
	}

	s.respondCached(c, endpoint, c.Query("date"), func() (any, error) {
		result, err := s.costSvc.Aggregate(c.Request.Context(), costdomain.AggregateRequest{
			Dimensions: dims,
			Date:       date,
			Filter:     filter,
		})
		if err != nil {
			return nil, err
		}
		return newSummaryResponse(result), nil
	})
}

func (s *Server) ResourceGroupTotals(c *gin.Context) {
	group := strings.TrimSpace(c.Query("resource_group"))
	if group == "" {
		AbortWithError(c, costdomain.ErrResourceGroupRequired)
		return
	}
	date, err := parseOptionalDate(c.Query("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	filter, err := parseCostFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.respondCached(c, "resource-group-totals", c.Query("date"), func() (any, error) {
		result, err := s.costSvc.ResourceGroupTotals(c.Request.Context(), costdomain.ResourceGroupTotalsRequest{
			ResourceGroup: group,
			Date:          date,
			Filter:        filter,
		})
		if err != nil {
			return nil, err
		}
		rows := groupRows(result.Dimensions, result.Groups)
		return resourceGroupTotalsResponse{
			ResourceGroup:  group,
			Date:           formatOptionalDate(date),
			TotalResources: len(rows),
			SourcesMissing: missingOf(result.Resolution),
			Data:           rows,
		}, nil
	})
}

func (s *Server) AvailableReportDates(c *gin.Context) {
	month := s.clock.Now().UTC()
	month = time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	if raw := strings.TrimSpace(c.Query("month")); raw != "" {
		parsed, err := parseMonth(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		month = parsed
	}

	s.respondCached(c, "available-report-dates", month.Format(monthLayout), func() (any, error) {
		dates, err := s.costSvc.AvailableDates(c.Request.Context(), month)
		if err != nil {
			return nil, err
		}
		return gin.H{
			"month":           month.Format(monthLayout),
			"available_dates": formatDates(dates),
		}, nil
	})
}

func (s *Server) SnapshotReportDates(c *gin.Context) {
	dates, err := s.snapshotSvc.ReportDates(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{"available_report_dates": formatDates(dates)})
}

func (s *Server) AggregateCostEntries(c *gin.Context) {
	dims, err := costdomain.ParseDimensions(strings.Join(c.QueryArray("group_by"), ","))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	date, err := parseOptionalDate(c.Query("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	filter, err := parseCostFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.respondCached(c, "aggregate", c.Query("date"), func() (any, error) {
		result, err := s.costSvc.Aggregate(c.Request.Context(), costdomain.AggregateRequest{
			Dimensions: dims,
			Date:       date,
			Filter:     filter,
		})
		if err != nil {
			return nil, err
		}
		labels := make([]string, len(dims))
		for i, dim := range dims {
			labels[i] = dim.Label()
		}
		return aggregateResponse{
			summaryResponse: newSummaryResponse(result),
			GroupBy:         labels,
		}, nil
	})
}

func (s *Server) ListCostEntries(c *gin.Context) {
	var req costdomain.ListRequest
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	date, err := parseOptionalDate(c.Query("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	filter, err := parseCostFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.Date = date
	req.Filter = filter

	entries, pageInfo, err := s.costSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if entries == nil {
		entries = []costdomain.EntryView{}
	}
	c.JSON(200, gin.H{"data": entries, "page_info": pageInfo})
}

func newSummaryResponse(result *costdomain.AggregateResult) summaryResponse {
	return summaryResponse{
		Date:            formatOptionalDate(result.Date),
		SourcesQueried:  result.Resolution.SourcesQueried,
		SourcesIncluded: len(result.Resolution.Snapshots),
		SourcesMissing:  missingOf(result.Resolution),
		Data:            groupRows(result.Dimensions, result.Groups),
	}
}

// groupRows keys each group's values by dimension label and renders totals
// with four decimals.
func groupRows(dims []costdomain.Dimension, groups []costdomain.Group) []map[string]any {
	rows := make([]map[string]any, 0, len(groups))
	for _, group := range groups {
		row := make(map[string]any, len(dims)+3)
		for i, dim := range dims {
			if i < len(group.Values) {
				row[dim.Label()] = group.Values[i]
			}
		}
		row["total_usd"] = group.TotalUSD.StringFixed(4)
		row["total_billing"] = group.TotalBilling.StringFixed(4)
		row["entries"] = group.Entries
		rows = append(rows, row)
	}
	return rows
}

func missingOf(res snapshotdomain.Resolution) []snapshotdomain.MissingSource {
	if res.Missing == nil {
		return []snapshotdomain.MissingSource{}
	}
	return res.Missing
}

func formatDates(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, date := range dates {
		out = append(out, date.Format(dateOnlyLayout))
	}
	sort.Strings(out)
	return out
}
