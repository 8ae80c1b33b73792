package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() snapshotdomain.Repository {
	return &repo{}
}

const selectColumns = `SELECT s.id, s.run_id, s.report_date, s.file_name, s.source_id, s.status, s.created_at, s.updated_at
	FROM snapshots s`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *snapshotdomain.Snapshot) error {
	return db.WithContext(ctx).Create(s).Error
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, status snapshotdomain.Status, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE snapshots SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		status,
		at,
		id,
		snapshotdomain.StatusInProgress,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*snapshotdomain.Snapshot, error) {
	return r.first(ctx, db, selectColumns+` WHERE s.id = ?`, id)
}

func (r *repo) FindByRunID(ctx context.Context, db *gorm.DB, runID string) (*snapshotdomain.Snapshot, error) {
	return r.first(ctx, db, selectColumns+` WHERE s.run_id = ?`, runID)
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM cost_entries WHERE snapshot_id = ?`, id).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(`DELETE FROM snapshots WHERE id = ?`, id).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter snapshotdomain.ListFilter) ([]snapshotdomain.Snapshot, error) {
	query := selectColumns + ` WHERE 1=1`
	args := []any{}
	if filter.SourceID != nil {
		query += ` AND s.source_id = ?`
		args = append(args, *filter.SourceID)
	}
	if filter.Status != "" {
		query += ` AND s.status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY s.created_at DESC, s.id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var items []snapshotdomain.Snapshot
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) LatestCompleteWithEntriesOn(ctx context.Context, db *gorm.DB, date time.Time) (*snapshotdomain.Snapshot, error) {
	return r.first(ctx, db, selectColumns+`
		WHERE s.status = ?
		AND EXISTS (SELECT 1 FROM cost_entries ce WHERE ce.snapshot_id = s.id AND ce.date = ?)
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT 1`,
		snapshotdomain.StatusComplete,
		date,
	)
}

func (r *repo) LatestCompleteForSource(ctx context.Context, db *gorm.DB, sourceID snowflake.ID) (*snapshotdomain.Snapshot, error) {
	return r.first(ctx, db, selectColumns+`
		WHERE s.status = ? AND s.source_id = ?
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT 1`,
		snapshotdomain.StatusComplete,
		sourceID,
	)
}

func (r *repo) HighestCompleteForSourceReportDate(ctx context.Context, db *gorm.DB, sourceID snowflake.ID, reportDate time.Time) (*snapshotdomain.Snapshot, error) {
	return r.first(ctx, db, selectColumns+`
		WHERE s.status = ? AND s.source_id = ? AND s.report_date = ?
		ORDER BY s.id DESC
		LIMIT 1`,
		snapshotdomain.StatusComplete,
		sourceID,
		reportDate,
	)
}

func (r *repo) LatestCompleteForSourceWithEntriesBetween(ctx context.Context, db *gorm.DB, sourceID snowflake.ID, start, end time.Time) (*snapshotdomain.Snapshot, error) {
	return r.first(ctx, db, selectColumns+`
		WHERE s.status = ? AND s.source_id = ?
		AND EXISTS (
			SELECT 1 FROM cost_entries ce
			WHERE ce.snapshot_id = s.id AND ce.date >= ? AND ce.date < ?
		)
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT 1`,
		snapshotdomain.StatusComplete,
		sourceID,
		start,
		end,
	)
}

func (r *repo) LatestPerSubscription(ctx context.Context, db *gorm.DB, date *time.Time) ([]snapshotdomain.SubscriptionSnapshot, error) {
	query := `SELECT sub.subscription_id AS subscription_id, MAX(ce.snapshot_id) AS snapshot_id
		FROM cost_entries ce
		JOIN snapshots s ON s.id = ce.snapshot_id
		JOIN subscriptions sub ON sub.id = ce.subscription_id
		WHERE s.status = ?`
	args := []any{snapshotdomain.StatusComplete}
	if date != nil {
		query += ` AND ce.date = ?`
		args = append(args, *date)
	}
	query += ` GROUP BY sub.subscription_id ORDER BY sub.subscription_id ASC`

	var rows []snapshotdomain.SubscriptionSnapshot
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) CompleteReportDates(ctx context.Context, db *gorm.DB) ([]time.Time, error) {
	var rows []struct {
		ReportDate time.Time
	}
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT report_date FROM snapshots
		WHERE status = ? AND report_date IS NOT NULL
		ORDER BY report_date ASC`,
		snapshotdomain.StatusComplete,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		dates = append(dates, snapshotdomain.DayOf(row.ReportDate))
	}
	return dates, nil
}

func (r *repo) first(ctx context.Context, db *gorm.DB, query string, args ...any) (*snapshotdomain.Snapshot, error) {
	var snapshot snapshotdomain.Snapshot
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&snapshot).Error; err != nil {
		return nil, err
	}
	if snapshot.ID == 0 {
		return nil, nil
	}
	return &snapshot, nil
}
