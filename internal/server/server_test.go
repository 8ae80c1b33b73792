package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sourcedomain "github.com/vilosource/cielo-azure-billing/internal/blobsource/domain"
	sourcerepository "github.com/vilosource/cielo-azure-billing/internal/blobsource/repository"
	sourceservice "github.com/vilosource/cielo-azure-billing/internal/blobsource/service"
	"github.com/vilosource/cielo-azure-billing/internal/cache"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	"github.com/vilosource/cielo-azure-billing/internal/config"
	costdomain "github.com/vilosource/cielo-azure-billing/internal/costentry/domain"
	costrepository "github.com/vilosource/cielo-azure-billing/internal/costentry/repository"
	costservice "github.com/vilosource/cielo-azure-billing/internal/costentry/service"
	customerdomain "github.com/vilosource/cielo-azure-billing/internal/customer/domain"
	customerrepository "github.com/vilosource/cielo-azure-billing/internal/customer/repository"
	customerservice "github.com/vilosource/cielo-azure-billing/internal/customer/service"
	ingestdomain "github.com/vilosource/cielo-azure-billing/internal/ingest/domain"
	ingestservice "github.com/vilosource/cielo-azure-billing/internal/ingest/service"
	meterdomain "github.com/vilosource/cielo-azure-billing/internal/meter/domain"
	meterrepository "github.com/vilosource/cielo-azure-billing/internal/meter/repository"
	meterservice "github.com/vilosource/cielo-azure-billing/internal/meter/service"
	"github.com/vilosource/cielo-azure-billing/internal/observability"
	obsmetrics "github.com/vilosource/cielo-azure-billing/internal/observability/metrics"
	resourcedomain "github.com/vilosource/cielo-azure-billing/internal/resource/domain"
	resourcerepository "github.com/vilosource/cielo-azure-billing/internal/resource/repository"
	resourceservice "github.com/vilosource/cielo-azure-billing/internal/resource/service"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
	snapshotrepository "github.com/vilosource/cielo-azure-billing/internal/snapshot/repository"
	snapshotservice "github.com/vilosource/cielo-azure-billing/internal/snapshot/service"
	subscriptiondomain "github.com/vilosource/cielo-azure-billing/internal/subscription/domain"
	subscriptionrepository "github.com/vilosource/cielo-azure-billing/internal/subscription/repository"
	subscriptionservice "github.com/vilosource/cielo-azure-billing/internal/subscription/service"
	"github.com/vilosource/cielo-azure-billing/pkg/db/dbtest"
	"go.uber.org/zap"
)

const exportHeader = "customerTenantId,SubscriptionId,subscriptionName,ResourceId,resourceGroupName,resourceLocation," +
	"meterId,meterName,meterCategory,meterSubCategory,serviceFamily,unitOfMeasure,date,costInUsd," +
	"costInBillingCurrency,billingCurrency,quantity,unitPrice,PayGPrice,pricingModel,chargeType,publisherName,costCenter,tags\n"

type testEnv struct {
	engine   *gin.Engine
	importer ingestdomain.Importer
	sourceID snowflake.ID
	store    cache.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t,
		&sourcedomain.BlobSource{},
		&snapshotdomain.Snapshot{},
		&costdomain.CostEntry{},
		&customerdomain.Customer{},
		&subscriptiondomain.Subscription{},
		&resourcedomain.Resource{},
		&meterdomain.Meter{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	ctx := context.Background()

	sources := sourceservice.New(sourceservice.Params{DB: db, Log: log, GenID: node, Repo: sourcerepository.Provide(), Clock: clk})
	require.NoError(t, sources.Sync(ctx, []config.SourceDefinition{
		{Name: "prod", BaseFolder: "https://acct.blob.core.windows.net/exports/prod"},
		{Name: "empty", BaseFolder: "https://acct.blob.core.windows.net/exports/empty"},
	}))
	prod, err := sources.GetByName(ctx, "prod")
	require.NoError(t, err)

	snapshots := snapshotservice.New(snapshotservice.Params{DB: db, Log: log, GenID: node, Repo: snapshotrepository.Provide(), Sources: sources, Clock: clk})
	entryRepo := costrepository.Provide()
	costs := costservice.New(costservice.Params{DB: db, Log: log, Repo: entryRepo, Snapshots: snapshots})
	resources := resourceservice.New(resourceservice.Params{DB: db, Log: log, Repo: resourcerepository.Provide(), Clock: clk})
	resolver := ingestservice.NewResolver(ingestservice.ResolverParams{
		DB:               db,
		Log:              log,
		GenID:            node,
		Clock:            clk,
		CustomerRepo:     customerrepository.Provide(),
		SubscriptionRepo: subscriptionrepository.Provide(),
		ResourceRepo:     resourcerepository.Provide(),
		MeterRepo:        meterrepository.Provide(),
	})
	importer := ingestservice.New(ingestservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Snapshots: snapshots,
		EntryRepo: entryRepo,
		Resolver:  resolver,
	})

	engine := NewEngine(observability.Config{Environment: "test"}, obsmetrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry(), obsmetrics.Config{}))
	store := cache.NewMemoryStore()
	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{Cache: config.CacheConfig{TTL: time.Minute}},
		Log:             log,
		Clock:           clk,
		Cache:           store,
		SourceSvc:       sources,
		SnapshotSvc:     snapshots,
		CostSvc:         costs,
		CustomerSvc:     customerservice.New(customerservice.Params{DB: db, Log: log, Repo: customerrepository.Provide()}),
		SubscriptionSvc: subscriptionservice.New(subscriptionservice.Params{DB: db, Log: log, Repo: subscriptionrepository.Provide()}),
		ResourceSvc:     resources,
		MeterSvc:        meterservice.New(meterservice.Params{DB: db, Log: log, Repo: meterrepository.Provide()}),
		ObsMetrics:      obsmetrics.NewNoop(),
	})

	return &testEnv{engine: engine, importer: importer, sourceID: prod.ID, store: store}
}

func exportLine(sub, name, resource, group, location, category, date, cost string) string {
	fields := []string{
		"tenant-1", sub, name, resource, group, location,
		"meter-" + category, "D2s v3", category, "", "Compute", "1 Hour", date, cost,
		cost, "EUR", "1", cost, "", "OnDemand", "Usage", "Microsoft", "", `"{""env"":""prod""}"`,
	}
	return strings.Join(fields, ",") + "\n"
}

// importRun imports lines for the prod source as a run reporting reportDate.
func (e *testEnv) importRun(t *testing.T, runID, reportDate string, lines ...string) {
	t.Helper()
	id := e.sourceID
	date, err := time.Parse(time.DateOnly, reportDate)
	require.NoError(t, err)
	_, err = e.importer.Import(context.Background(), strings.NewReader(exportHeader+strings.Join(lines, "")), ingestdomain.ImportRequest{
		RunID:      runID,
		ReportDate: &date,
		SourceID:   &id,
	})
	require.NoError(t, err)
}

func (e *testEnv) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func totalsBy(t *testing.T, body map[string]any, key string) map[string]string {
	t.Helper()
	rows, ok := body["data"].([]any)
	require.True(t, ok, "data is not a list: %v", body["data"])
	out := map[string]string{}
	for _, raw := range rows {
		row := raw.(map[string]any)
		label, _ := row[key].(string)
		out[label] = row["total_usd"].(string)
	}
	return out
}

func TestSubscriptionSummaryForDate(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, "run-1", "2024-01-01",
		exportLine("sub1", "Prod", "/rg/a/vm-1", "A", "westeurope", "Virtual Machines", "01/01/2024", "1"),
		exportLine("sub2", "Dev", "/rg/b/vm-2", "B", "northeurope", "Storage", "01/01/2024", "2"),
	)

	rec, body := env.get(t, "/api/costs/subscription-summary?date=2024-01-01")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "2024-01-01", body["date"])
	assert.EqualValues(t, 2, body["sources_queried"])
	assert.EqualValues(t, 1, body["sources_included"])
	assert.Equal(t, map[string]string{"sub1": "1.0000", "sub2": "2.0000"}, totalsBy(t, body, "subscription_id"))

	missing := body["sources_missing"].([]any)
	require.Len(t, missing, 1)
	assert.Equal(t, map[string]any{"source": "empty", "reason": snapshotdomain.ReasonNoEntriesForDate}, missing[0])
}

func TestSummaryReimportSupersedes(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, "run-1", "2024-01-01", exportLine("sub1", "Prod", "/rg/a/vm-1", "A", "westeurope", "Virtual Machines", "01/01/2024", "2"))
	env.importRun(t, "run-2", "2024-01-01", exportLine("sub1", "Prod", "/rg/a/vm-1", "A", "westeurope", "Virtual Machines", "01/01/2024", "5"))

	rec, body := env.get(t, "/api/costs/subscription-summary?date=2024-01-01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"sub1": "5.0000"}, totalsBy(t, body, "subscription_id"))
}

func TestSummaryEndpointsGroupByDimension(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, "run-1", "2024-01-02",
		exportLine("sub1", "Prod", "/rg/a/vm-1", "GroupA", "westeurope", "Virtual Machines", "01/01/2024", "1"),
		exportLine("sub1", "Prod", "/rg/a/disk-1", "GroupA", "westeurope", "Storage", "01/01/2024", "3"),
		exportLine("sub2", "Dev", "/rg/b/vm-2", "GroupB", "northeurope", "Virtual Machines", "01/02/2024", "2"),
	)

	tests := []struct {
		path string
		key  string
		want map[string]string
	}{
		{path: "/api/costs/resource-group-summary", key: "resource_group", want: map[string]string{"groupa": "4.0000", "groupb": "2.0000"}},
		{path: "/api/costs/meter-category-summary", key: "meter_category", want: map[string]string{"Virtual Machines": "3.0000", "Storage": "3.0000"}},
		{path: "/api/costs/region-summary", key: "location", want: map[string]string{"westeurope": "4.0000", "northeurope": "2.0000"}},
		{path: "/api/costs/virtual-machines-summary", key: "subscription_id", want: map[string]string{"sub1": "1.0000", "sub2": "2.0000"}},
		{path: "/api/costs/virtual-machines-summary?meter_category=storage", key: "subscription_id", want: map[string]string{"sub1": "3.0000"}},
		{path: "/api/costs/subscription-summary?min_cost=2", key: "subscription_id", want: map[string]string{"sub1": "3.0000", "sub2": "2.0000"}},
		{path: "/api/costs/subscription-summary?tag_key=env&tag_value=prod&date=2024-01-02", key: "subscription_id", want: map[string]string{"sub2": "2.0000"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec, body := env.get(t, tt.path)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, totalsBy(t, body, tt.key))
		})
	}
}

func TestSummaryIsCached(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, "run-1", "2024-01-01", exportLine("sub1", "Prod", "/rg/a/vm-1", "A", "westeurope", "Virtual Machines", "01/01/2024", "1"))

	rec, first := env.get(t, "/api/costs/subscription-summary?date=2024-01-01")
	require.Equal(t, http.StatusOK, rec.Code)

	env.importRun(t, "run-2", "2024-01-01", exportLine("sub1", "Prod", "/rg/a/vm-1", "A", "westeurope", "Virtual Machines", "01/01/2024", "9"))

	rec, second := env.get(t, "/api/costs/subscription-summary?date=2024-01-01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, second)

	_, ok := env.store.Get(context.Background(), cache.Key("/api/costs/subscription-summary", "2024-01-01", nil))
	assert.True(t, ok)
}

func TestQueryValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path string
		code string
	}{
		{path: "/api/costs/subscription-summary?date=01-01-2024", code: "invalid_date"},
		{path: "/api/costs/region-summary?min_cost=abc", code: "invalid_min_cost"},
		{path: "/api/costs/region-summary?source_id=xyz", code: "invalid_source_id"},
		{path: "/api/costs/resource-group-totals", code: "resource_group_required"},
		{path: "/api/costs/available-report-dates?month=2024-13", code: "invalid_month"},
		{path: "/api/cost-entries/aggregate", code: "group_by_required"},
		{path: "/api/cost-entries/aggregate?group_by=nope", code: "invalid_group_by"},
		{path: "/api/cost-entries?page_token=%25%25", code: "invalid_page_token"},
		{path: "/api/snapshots/for-date", code: "date_required"},
		{path: "/api/snapshots?status=running", code: "invalid_status"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec, body := env.get(t, tt.path)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			payload := body["error"].(map[string]any)
			assert.Equal(t, "validation_error", payload["type"])
			errs := payload["errors"].([]any)
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.code, errs[0].(map[string]any)["code"])
		})
	}
}

func TestResourceGroupTotals(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, "run-1", "2024-01-01",
		exportLine("sub1", "Prod", "/rg/a/vm-1", "GroupA", "westeurope", "Virtual Machines", "01/01/2024", "1"),
		exportLine("sub1", "Prod", "/rg/a/vm-2", "GroupA", "westeurope", "Virtual Machines", "01/01/2024", "7"),
		exportLine("sub1", "Prod", "/rg/b/vm-3", "GroupB", "westeurope", "Virtual Machines", "01/01/2024", "4"),
	)

	rec, body := env.get(t, "/api/costs/resource-group-totals?resource_group=GROUPA")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "GROUPA", body["resource_group"])
	assert.Nil(t, body["date"])
	assert.EqualValues(t, 2, body["total_resources"])

	rows := body["data"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "/rg/a/vm-2", rows[0].(map[string]any)["resource_id"])
	assert.Equal(t, "vm-2", rows[0].(map[string]any)["resource_name"])
	assert.Equal(t, "7.0000", rows[0].(map[string]any)["total_usd"])
	assert.Equal(t, "/rg/a/vm-1", rows[1].(map[string]any)["resource_id"])
}

func TestAvailableReportDates(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, "run-1", "2024-01-01",
		exportLine("sub1", "Prod", "/rg/a/vm-1", "A", "westeurope", "Virtual Machines", "01/03/2024", "1"),
		exportLine("sub1", "Prod", "/rg/a/vm-1", "A", "westeurope", "Virtual Machines", "01/01/2024", "1"),
		exportLine("sub1", "Prod", "/rg/a/vm-1", "A", "westeurope", "Virtual Machines", "02/01/2024", "1"),
	)

	rec, body := env.get(t, "/api/costs/available-report-dates?month=2024-01")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-01", body["month"])
	assert.Equal(t, []any{"2024-01-01", "2024-01-03"}, body["available_dates"])

	rec, body = env.get(t, "/api/costs/available-report-dates")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-01", body["month"])
}

func TestAggregateCostEntries(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, "run-1", "2024-01-01",
		exportLine("sub1", "Prod", "/rg/a/vm-1", "GroupA", "westeurope", "Virtual Machines", "01/01/2024", "1"),
		exportLine("sub1", "Prod", "/rg/a/disk-1", "GroupA", "westeurope", "Storage", "01/01/2024", "2"),
	)

	rec, body := env.get(t, "/api/cost-entries/aggregate?group_by=meterCategory&group_by=resourceGroupName")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{"meter_category", "resource_group"}, body["group_by"])
	assert.NotContains(t, body, "unknown_fields")
	assert.Equal(t, map[string]string{"Storage": "2.0000", "Virtual Machines": "1.0000"}, totalsBy(t, body, "meter_category"))
}

func TestAggregateCostEntriesRejectsUnknownGroupBy(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, "run-1", "2024-01-01",
		exportLine("sub1", "Prod", "/rg/a/vm-1", "GroupA", "westeurope", "Virtual Machines", "01/01/2024", "1"),
	)

	tests := []struct {
		name   string
		path   string
		code   string
		fields []string
	}{
		{
			name:   "one unknown",
			path:   "/api/cost-entries/aggregate?group_by=subscription_id,bogus",
			code:   "unknown_group_by",
			fields: []string{"bogus"},
		},
		{
			name:   "unknown in repeated parameter",
			path:   "/api/cost-entries/aggregate?group_by=meterCategory,bogus&group_by=resourceGroupName&group_by=nope",
			code:   "unknown_group_by",
			fields: []string{"bogus", "nope"},
		},
		{
			name:   "only unknown",
			path:   "/api/cost-entries/aggregate?group_by=bogus",
			code:   "invalid_group_by",
			fields: []string{"bogus"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.get(t, tt.path)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			payload := body["error"].(map[string]any)
			assert.Equal(t, "validation_error", payload["type"])
			errs := payload["errors"].([]any)
			require.Len(t, errs, len(tt.fields))
			for i, field := range tt.fields {
				entry := errs[i].(map[string]any)
				assert.Equal(t, "group_by", entry["field"])
				assert.Equal(t, tt.code, entry["code"])
				assert.Contains(t, entry["message"], field)
			}
		})
	}
}

func TestSnapshotEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, "run-1", "2024-01-01", exportLine("sub1", "Prod", "/rg/a/vm-1", "A", "westeurope", "Virtual Machines", "01/01/2024", "1"))

	rec, body := env.get(t, "/api/snapshots/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["sources_included"])
	missing := body["sources_missing"].([]any)
	require.Len(t, missing, 1)
	assert.Equal(t, snapshotdomain.ReasonNoSnapshot, missing[0].(map[string]any)["reason"])

	rec, body = env.get(t, "/api/snapshots/for-date?date=2024-01-01")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := body["data"].(map[string]any)
	assert.Equal(t, "run-1", snap["run_id"])

	rec, _ = env.get(t, "/api/snapshots/for-date?date=2024-02-01")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = env.get(t, "/api/snapshots/"+snap["id"].(string))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "complete", body["data"].(map[string]any)["status"])

	rec, body = env.get(t, "/api/snapshots/latest-per-subscription?date=2024-01-01")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := body["data"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "sub1", rows[0].(map[string]any)["subscription_id"])

	rec, body = env.get(t, "/api/snapshots?status=complete")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 1)
}

func TestListCostEntriesPaginates(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, "run-1", "2024-01-01",
		exportLine("sub1", "Prod", "/rg/a/vm-1", "A", "westeurope", "Virtual Machines", "01/01/2024", "1"),
		exportLine("sub1", "Prod", "/rg/a/vm-2", "A", "westeurope", "Virtual Machines", "01/01/2024", "2"),
		exportLine("sub1", "Prod", "/rg/a/vm-3", "A", "westeurope", "Virtual Machines", "01/02/2024", "3"),
	)

	rec, body := env.get(t, "/api/cost-entries?date=2024-01-01&page_size=1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, body["data"], 1)
	info := body["page_info"].(map[string]any)
	assert.Equal(t, true, info["has_more"])

	rec, body = env.get(t, "/api/cost-entries?date=2024-01-01&page_size=1&page_token="+info["next_page_token"].(string))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, body["data"], 1)
	assert.Equal(t, false, body["page_info"].(map[string]any)["has_more"])
}

func TestCatalogEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, "run-1", "2024-01-01", exportLine("sub1", "Prod", "/rg/a/vm-1", "A", "westeurope", "Virtual Machines", "01/01/2024", "1"))

	for _, path := range []string{"/api/customers", "/api/subscriptions", "/api/resources", "/api/meters"} {
		rec, body := env.get(t, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Len(t, body["data"], 1, path)
	}

	rec, body := env.get(t, "/api/sources?active=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 2)

	rec, _ = env.get(t, "/api/customers/12345")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}
