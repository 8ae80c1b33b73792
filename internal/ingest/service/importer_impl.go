package service

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	costdomain "github.com/vilosource/cielo-azure-billing/internal/costentry/domain"
	ingestdomain "github.com/vilosource/cielo-azure-billing/internal/ingest/domain"
	obscontext "github.com/vilosource/cielo-azure-billing/internal/observability/context"
	"github.com/vilosource/cielo-azure-billing/internal/observability/metrics"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
	"github.com/vilosource/cielo-azure-billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Snapshots snapshotdomain.Service
	EntryRepo costdomain.Repository
	Resolver  *EntityResolver
	Metrics   *metrics.Metrics    `optional:"true"`
	Jobs      *metrics.JobMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	snapshots snapshotdomain.Service
	entryRepo costdomain.Repository
	resolver  *EntityResolver
	metrics   *metrics.Metrics
	jobs      *metrics.JobMetrics
}

func New(p Params) ingestdomain.Importer {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("ingest.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		snapshots: p.Snapshots,
		entryRepo: p.EntryRepo,
		resolver:  p.Resolver,
		metrics:   p.Metrics,
		jobs:      p.Jobs,
	}
}

func (s *Service) ImportFile(ctx context.Context, path string, req ingestdomain.ImportRequest) (*ingestdomain.Result, error) {
	if req.FileName == "" {
		req.FileName = path
	}
	return s.run(ctx, req, func() (io.ReadCloser, error) {
		return openExport(path)
	})
}

func (s *Service) Import(ctx context.Context, r io.Reader, req ingestdomain.ImportRequest) (*ingestdomain.Result, error) {
	return s.run(ctx, req, func() (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	})
}

func (s *Service) run(ctx context.Context, req ingestdomain.ImportRequest, open func() (io.ReadCloser, error)) (*ingestdomain.Result, error) {
	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = "manual-" + ulid.Make().String()
	}
	ctx = obscontext.WithRunID(ctx, runID)
	log := s.log.With(zap.String("run_id", runID), zap.String("file", req.FileName))
	started := s.clock.Now()

	snapshot, err := s.snapshots.Open(ctx, snapshotdomain.OpenRequest{
		RunID:      runID,
		ReportDate: req.ReportDate,
		FileName:   req.FileName,
		SourceID:   req.SourceID,
	})
	if err != nil {
		return nil, err
	}
	log.Info("import started", zap.String("snapshot_id", snapshot.ID.String()))

	result := &ingestdomain.Result{Snapshot: snapshot, Reasons: map[string]int{}}
	err = s.stream(ctx, log, open, snapshot, result)
	s.metrics.RecordImportRows(ctx, "imported", result.Imported)
	s.metrics.RecordImportRows(ctx, "skipped", result.Skipped)
	s.jobs.ObserveImport(s.clock.Now().Sub(started), result.Imported, result.Skipped)

	if err != nil {
		// The caller's context may already be done; the failure must still be recorded.
		if failErr := s.snapshots.Fail(context.WithoutCancel(ctx), snapshot.ID); failErr != nil {
			log.Error("mark snapshot failed", zap.Error(failErr))
		} else {
			snapshot.Status = snapshotdomain.StatusFailed
		}
		s.metrics.RecordSnapshot(ctx, string(snapshotdomain.StatusFailed))
		log.Error("import failed", zap.Int("imported", result.Imported), zap.Error(err))
		return result, fmt.Errorf("import %s: %w", runID, err)
	}

	if err := s.snapshots.Complete(ctx, snapshot.ID); err != nil {
		if failErr := s.snapshots.Fail(context.WithoutCancel(ctx), snapshot.ID); failErr != nil {
			log.Error("mark snapshot failed", zap.Error(failErr))
		} else {
			snapshot.Status = snapshotdomain.StatusFailed
		}
		s.metrics.RecordSnapshot(ctx, string(snapshotdomain.StatusFailed))
		log.Error("complete snapshot", zap.Int("imported", result.Imported), zap.Error(err))
		return result, fmt.Errorf("import %s: %w", runID, err)
	}
	snapshot.Status = snapshotdomain.StatusComplete
	s.metrics.RecordSnapshot(ctx, string(snapshotdomain.StatusComplete))
	log.Info("import complete",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("duplicates", result.Duplicates),
	)
	return result, nil
}

func (s *Service) stream(
	ctx context.Context,
	log *zap.Logger,
	open func() (io.ReadCloser, error),
	snapshot *snapshotdomain.Snapshot,
	result *ingestdomain.Result,
) error {
	rc, err := open()
	if err != nil {
		return err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}
	if missing := missingColumns(columns); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ingestdomain.ErrMissingColumns, strings.Join(missing, ", "))
	}

	resolver := s.resolver.Session()
	record := make(map[string]string, len(columns))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				s.skip(log, result, &ingestdomain.RowError{Line: parseErr.Line, Err: err}, nil)
				continue
			}
			return fmt.Errorf("read row: %w", err)
		}
		line, _ := reader.FieldPos(0)

		clear(record)
		for i, name := range columns {
			if i < len(fields) {
				record[name] = fields[i]
			}
		}

		err = s.importRow(ctx, resolver, snapshot, line, record, result)
		if err == nil {
			continue
		}
		if isFatal(err) {
			return err
		}
		s.skip(log, result, err, record)
	}
}

func (s *Service) importRow(
	ctx context.Context,
	resolver ingestdomain.Resolver,
	snapshot *snapshotdomain.Snapshot,
	line int,
	record map[string]string,
	result *ingestdomain.Result,
) error {
	row, err := Normalize(line, record)
	if err != nil {
		return err
	}

	entities, err := resolver.Resolve(ctx, row)
	if err != nil {
		if isFatal(err) {
			return err
		}
		return &ingestdomain.RowError{Line: line, Err: err}
	}

	entry := &costdomain.CostEntry{
		ID:                    s.genID.Generate(),
		SnapshotID:            snapshot.ID,
		Date:                  row.Date,
		SubscriptionID:        entities.SubscriptionID,
		ResourceID:            entities.ResourceID,
		MeterID:               entities.MeterID,
		Quantity:              row.Quantity,
		UnitPrice:             row.UnitPrice,
		CostInUSD:             row.CostInUSD,
		CostInBillingCurrency: row.CostInBillingCurrency,
		PaygPrice:             row.PaygPrice,
		BillingCurrency:       row.BillingCurrency,
		PricingModel:          row.PricingModel,
		ChargeType:            row.ChargeType,
		PublisherName:         row.PublisherName,
		CostCenter:            row.CostCenter,
		Tags:                  row.Tags,
		CreatedAt:             s.clock.Now(),
	}
	inserted, err := s.entryRepo.Insert(ctx, s.db, entry)
	if err != nil {
		if isFatal(err) {
			return err
		}
		return &ingestdomain.RowError{Line: line, Err: err}
	}
	if !inserted {
		result.Duplicates++
		result.Skipped++
		return nil
	}
	result.Imported++
	return nil
}

func (s *Service) skip(log *zap.Logger, result *ingestdomain.Result, err error, record map[string]string) {
	result.Skipped++

	reason := err.Error()
	var rowErr *ingestdomain.RowError
	if errors.As(err, &rowErr) {
		reason = rowErr.Err.Error()
		if rowErr.Field != "" {
			reason = rowErr.Field + ": " + reason
		}
	}
	if _, ok := result.Reasons[reason]; ok || len(result.Reasons) < ingestdomain.MaxRecordedReasons {
		result.Reasons[reason]++
	}

	fields := []zap.Field{zap.Error(err)}
	if rowErr != nil {
		fields = append(fields, zap.Int("row", rowErr.Line))
	}
	if record != nil {
		fields = append(fields,
			zap.String("date", record[ingestdomain.ColDate]),
			zap.String("cost_in_usd", record[ingestdomain.ColCostInUSD]),
			zap.String("subscription_id", record[ingestdomain.ColSubscriptionID]),
			zap.String("resource_id", record[ingestdomain.ColResourceID]),
		)
	}
	log.Warn("row skipped", fields...)
}

// isFatal reports errors that make the rest of the stream unprocessable.
func isFatal(err error) bool {
	if ingestdomain.IsRowError(err) {
		return false
	}
	return db.IsUnavailableErr(err)
}

func missingColumns(columns []string) []string {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	var missing []string
	for _, c := range requiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g gzipFile) Close() error {
	return errors.Join(g.Reader.Close(), g.file.Close())
}

func openExport(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return file, nil
	}
	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return gzipFile{Reader: gz, file: file}, nil
}

