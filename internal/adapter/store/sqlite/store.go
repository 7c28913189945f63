// Package sqlite persists reports, their relations and administered
// settings, and implements the repository and settings ports of the
// verification pipeline.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/boyiajas/omni247-sub001/internal/domain"
	"github.com/boyiajas/omni247-sub001/internal/usecase/level"
)


// Store implements the verify.ReportRepository, verify.NearbyCounter and
// policy.Store ports using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite store at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		verified_reports INTEGER NOT NULL DEFAULT 0,
		rejected_reports INTEGER NOT NULL DEFAULT 0,
		reputation_score INTEGER NOT NULL DEFAULT 0,
		auto_verify_enabled INTEGER NOT NULL DEFAULT 0,
		tier_override TEXT NOT NULL DEFAULT '',
		level_override TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS reports (
		report_id TEXT PRIMARY KEY,
		user_id TEXT,
		category TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		latitude REAL,
		longitude REAL,
		submitter_latitude REAL,
		submitter_longitude REAL,
		submitter_accuracy_m REAL,
		submitted_at INTEGER,
		created_at INTEGER NOT NULL,
		verification_status TEXT NOT NULL DEFAULT '',
		verification_tier TEXT NOT NULL DEFAULT '',
		verification_score INTEGER NOT NULL DEFAULT 0,
		verification_max_score INTEGER NOT NULL DEFAULT 0,
		verification_breakdown TEXT NOT NULL DEFAULT '',
		verification_started_at INTEGER,
		verification_completed_at INTEGER,
		FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS media (
		media_id TEXT PRIMARY KEY,
		report_id TEXT NOT NULL,
		type TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (report_id) REFERENCES reports(report_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS ratings (
		rating_id TEXT PRIMARY KEY,
		report_id TEXT NOT NULL,
		value INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (report_id) REFERENCES reports(report_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS comments (
		comment_id TEXT PRIMARY KEY,
		report_id TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (report_id) REFERENCES reports(report_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
	CREATE INDEX IF NOT EXISTS idx_media_report ON media(report_id);
	CREATE INDEX IF NOT EXISTS idx_ratings_report ON ratings(report_id);
	CREATE INDEX IF NOT EXISTS idx_comments_report ON comments(report_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetReport loads a report with its user, media, ratings and comments.
func (s *Store) GetReport(ctx context.Context, reportID string) (domain.Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT report_id, user_id, category, title, description,
		       latitude, longitude, submitter_latitude, submitter_longitude,
		       submitter_accuracy_m, submitted_at, created_at,
		       verification_status, verification_tier, verification_score,
		       verification_max_score, verification_breakdown,
		       verification_started_at, verification_completed_at
		FROM reports WHERE report_id = ?`, reportID)

	var (
		report      domain.Report
		userID      sql.NullString
		lat, lng    sql.NullFloat64
		subLat      sql.NullFloat64
		subLng      sql.NullFloat64
		accuracy    sql.NullFloat64
		submittedAt sql.NullInt64
		createdAt   int64
		status      string
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
	)
	err := row.Scan(
		&report.ID, &userID, &report.Category, &report.Title, &report.Description,
		&lat, &lng, &subLat, &subLng,
		&accuracy, &submittedAt, &createdAt,
		&status, &report.Verification.Tier, &report.Verification.Score,
		&report.Verification.MaxScore, &report.Verification.Breakdown,
		&startedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Report{}, fmt.Errorf("%w: %s", domain.ErrReportNotFound, reportID)
	}
	if err != nil {
		return domain.Report{}, fmt.Errorf("query report: %w", err)
	}

	report.Latitude = nullFloat(lat)
	report.Longitude = nullFloat(lng)
	report.SubmitterLatitude = nullFloat(subLat)
	report.SubmitterLongitude = nullFloat(subLng)
	report.SubmitterAccuracyM = nullFloat(accuracy)
	report.SubmittedAt = nullTime(submittedAt)
	report.CreatedAt = time.Unix(createdAt, 0).UTC()
	report.Verification.Status = domain.Status(status)
	report.Verification.StartedAt = nullTime(startedAt)
	report.Verification.CompletedAt = nullTime(completedAt)

	if userID.Valid {
		user, err := s.getUser(ctx, userID.String)
		if err != nil {
			return domain.Report{}, err
		}
		report.User = user
	}

	if err := s.loadRelations(ctx, &report); err != nil {
		return domain.Report{}, err
	}
	return report, nil
}

func (s *Store) getUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, created_at, verified_reports, rejected_reports,
		       reputation_score, auto_verify_enabled, tier_override, level_override
		FROM users WHERE user_id = ?`, userID)

	var (
		user          domain.User
		createdAt     int64
		autoVerify    int
		levelOverride string
	)
	err := row.Scan(
		&user.ID, &createdAt, &user.VerifiedReports, &user.RejectedReports,
		&user.ReputationScore, &autoVerify, &user.TierOverride, &levelOverride,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// The referenced account no longer exists; the pipeline treats the
		// report as having a missing reporter.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	user.AutoVerifyEnabled = autoVerify != 0
	if levelOverride != "" {
		if err := json.Unmarshal([]byte(levelOverride), &user.LevelOverride); err != nil {
			return nil, fmt.Errorf("decode level override for user %s: %w", userID, err)
		}
	}
	return &user, nil
}

func (s *Store) loadRelations(ctx context.Context, report *domain.Report) error {
	mediaRows, err := s.db.QueryContext(ctx,
		`SELECT media_id, type, created_at FROM media WHERE report_id = ? ORDER BY created_at`, report.ID)
	if err != nil {
		return fmt.Errorf("query media: %w", err)
	}
	defer mediaRows.Close()
	for mediaRows.Next() {
		var m domain.Media
		var createdAt int64
		if err := mediaRows.Scan(&m.ID, &m.Type, &createdAt); err != nil {
			return fmt.Errorf("scan media: %w", err)
		}
		m.CreatedAt = time.Unix(createdAt, 0).UTC()
		report.Media = append(report.Media, m)
	}
	if err := mediaRows.Err(); err != nil {
		return fmt.Errorf("iterate media: %w", err)
	}

	ratingRows, err := s.db.QueryContext(ctx,
		`SELECT rating_id, value, created_at FROM ratings WHERE report_id = ? ORDER BY created_at`, report.ID)
	if err != nil {
		return fmt.Errorf("query ratings: %w", err)
	}
	defer ratingRows.Close()
	for ratingRows.Next() {
		var r domain.Rating
		var createdAt int64
		if err := ratingRows.Scan(&r.ID, &r.Value, &createdAt); err != nil {
			return fmt.Errorf("scan rating: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		report.Ratings = append(report.Ratings, r)
	}
	if err := ratingRows.Err(); err != nil {
		return fmt.Errorf("iterate ratings: %w", err)
	}

	commentRows, err := s.db.QueryContext(ctx,
		`SELECT comment_id, body, created_at FROM comments WHERE report_id = ? ORDER BY created_at`, report.ID)
	if err != nil {
		return fmt.Errorf("query comments: %w", err)
	}
	defer commentRows.Close()
	for commentRows.Next() {
		var c domain.Comment
		var createdAt int64
		if err := commentRows.Scan(&c.ID, &c.Body, &createdAt); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		report.Comments = append(report.Comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return fmt.Errorf("iterate comments: %w", err)
	}
	return nil
}

// CountNearbyReports counts other reports created at or after since within
// radiusKm of the given point. A bounding box narrows the candidates in
// SQL; the exact great-circle distance is applied in Go since SQLite has
// no trigonometry.
func (s *Store) CountNearbyReports(ctx context.Context, excludeID string, lat, lng, radiusKm float64, since time.Time) (int, error) {
	latDelta := radiusKm / 111.0
	cosLat := math.Cos(lat * math.Pi / 180.0)
	lngDelta := 180.0
	if cosLat > 1e-6 {
		lngDelta = radiusKm / (111.0 * cosLat)
	}

	// A box near the antimeridian wraps: the far side carries the opposite
	// sign, so a plain BETWEEN would miss it.
	lngCond := "longitude BETWEEN ? AND ?"
	lngArgs := []interface{}{lng - lngDelta, lng + lngDelta}
	switch {
	case lngDelta >= 180:
		lngCond = "1=1"
		lngArgs = nil
	case lng-lngDelta < -180:
		lngCond = "(longitude >= ? OR longitude <= ?)"
		lngArgs = []interface{}{lng - lngDelta + 360, lng + lngDelta}
	case lng+lngDelta > 180:
		lngCond = "(longitude >= ? OR longitude <= ?)"
		lngArgs = []interface{}{lng - lngDelta, lng + lngDelta - 360}
	}

	args := []interface{}{excludeID, since.Unix(), lat - latDelta, lat + latDelta}
	args = append(args, lngArgs...)
	rows, err := s.db.QueryContext(ctx, `
		SELECT latitude, longitude FROM reports
		WHERE report_id != ?
		  AND created_at >= ?
		  AND latitude IS NOT NULL AND longitude IS NOT NULL
		  AND latitude BETWEEN ? AND ?
		  AND `+lngCond,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("query nearby reports: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var otherLat, otherLng float64
		if err := rows.Scan(&otherLat, &otherLng); err != nil {
			return 0, fmt.Errorf("scan nearby report: %w", err)
		}
		if level.HaversineKm(lat, lng, otherLat, otherLng) <= radiusKm {
			count++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate nearby reports: %w", err)
	}
	return count, nil
}

// SaveVerification flattens the pipeline outcome onto the report row.
func (s *Store) SaveVerification(ctx context.Context, reportID string, v domain.Verification) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reports SET
			verification_status = ?,
			verification_tier = ?,
			verification_score = ?,
			verification_max_score = ?,
			verification_breakdown = ?,
			verification_started_at = ?,
			verification_completed_at = ?
		WHERE report_id = ?`,
		string(v.Status), v.Tier, v.Score, v.MaxScore, v.Breakdown,
		timeValue(v.StartedAt), timeValue(v.CompletedAt), reportID,
	)
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrReportNotFound, reportID)
	}
	return nil
}

// Get implements the settings store port. Missing keys are (_, false, nil).
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts one administered settings key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// CreateUser inserts a user snapshot.
func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	levelOverride, err := json.Marshal(user.LevelOverride)
	if err != nil {
		return fmt.Errorf("encode level override: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, created_at, verified_reports, rejected_reports,
		                   reputation_score, auto_verify_enabled, tier_override, level_override)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.CreatedAt.Unix(), user.VerifiedReports, user.RejectedReports,
		user.ReputationScore, boolValue(user.AutoVerifyEnabled), user.TierOverride, string(levelOverride),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CreateReport inserts a report with its media, ratings and comments.
func (s *Store) CreateReport(ctx context.Context, report domain.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userID any
	if report.User != nil {
		userID = report.User.ID
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (report_id, user_id, category, title, description,
		                     latitude, longitude, submitter_latitude, submitter_longitude,
		                     submitter_accuracy_m, submitted_at, created_at, verification_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, userID, report.Category, report.Title, report.Description,
		floatValue(report.Latitude), floatValue(report.Longitude),
		floatValue(report.SubmitterLatitude), floatValue(report.SubmitterLongitude),
		floatValue(report.SubmitterAccuracyM), timeValue(report.SubmittedAt),
		report.CreatedAt.Unix(), string(report.Verification.Status),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	for _, m := range report.Media {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO media (media_id, report_id, type, created_at) VALUES (?, ?, ?, ?)`,
			m.ID, report.ID, m.Type, m.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("insert media: %w", err)
		}
	}
	for _, r := range report.Ratings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ratings (rating_id, report_id, value, created_at) VALUES (?, ?, ?, ?)`,
			r.ID, report.ID, r.Value, r.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("insert rating: %w", err)
		}
	}
	for _, c := range report.Comments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO comments (comment_id, report_id, body, created_at) VALUES (?, ?, ?, ?)`,
			c.ID, report.ID, c.Body, c.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
	}

	return tx.Commit()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	value := v.Float64
	return &value
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func floatValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func boolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}
