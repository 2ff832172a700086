// Package repo is the Repository Façade: the server's only path to
// Postgres. Every call has a 2s timeout and is retried once on failure
// before the caller is told the operation failed; first-detection writes
// additionally spool to disk and replay later if the database is down,
// so the pipeline never blocks on, or loses, a persisted record.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/technosupport/airfield-guard/internal/metrics"
	"github.com/technosupport/airfield-guard/internal/model"
)

var ErrRecordNotFound = errors.New("repo: record not found")

const opTimeout = 2 * time.Second

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Repository is the Façade. db may be nil only in tests that substitute a
// sqlmock DB.
type Repository struct {
	db     DBTX
	spool  *Spool
}

// New opens (does not yet connect) a Postgres repository over connStr.
func New(connStr string, spool *Spool) (*Repository, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("repo: open: %w", err)
	}
	return &Repository{db: db, spool: spool}, nil
}

// NewWithDB wraps an already-open DBTX (used by tests with go-sqlmock).
func NewWithDB(db DBTX, spool *Spool) *Repository {
	return &Repository{db: db, spool: spool}
}

// withRetry runs op once, and a second time if the first attempt's
// context deadline was exceeded or the query failed outright. Matches the
// "retry once, then fail" policy in spec.md §7.
func withRetry(ctx context.Context, opName string, op func(context.Context) error) error {
	start := time.Now()
	defer func() {
		metrics.ObserveRepoLatency(opName, float64(time.Since(start).Milliseconds()))
	}()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		lastErr = op(opCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	metrics.RecordRepoError(opName)
	return lastErr
}

// SaveFirstDetection persists a first-detection record. Duplicates by
// object-id are ignored (ON CONFLICT DO NOTHING makes this idempotent).
// On DB failure, the record is spooled to disk and replayed later; the
// caller still gets an error for this call so it knows not to retry
// synchronously.
func (r *Repository) SaveFirstDetection(ctx context.Context, rec model.FirstDetectionRecord) error {
	err := withRetry(ctx, "save_first_detection", func(ctx context.Context) error {
		_, execErr := r.db.ExecContext(ctx, `
			INSERT INTO detect_event (object_id, event_type_id, object_type_id, area_id, map_x, map_y, occurred_at, image_path)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (object_id) DO NOTHING`,
			rec.ObjectID, rec.EventType, rec.Class, nullableAreaID(rec.AreaID), rec.MapX, rec.MapY, rec.Timestamp, rec.ImagePath)
		if execErr != nil {
			return execErr
		}

		_, execErr = r.db.ExecContext(ctx, `
			INSERT INTO detected_object (object_id, object_type_id, first_camera_id, first_seen_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (object_id) DO NOTHING`,
			rec.ObjectID, rec.Class, rec.CameraID, rec.Timestamp)
		return execErr
	})

	if err != nil && r.spool != nil {
		if spoolErr := r.spool.SpoolFirstDetection(rec); spoolErr != nil {
			return fmt.Errorf("repo: save failed (%v) and spool failed (%v)", err, spoolErr)
		}
	}
	return err
}

func nullableAreaID(id int) any {
	if id == 0 {
		return nil
	}
	return id
}

// LoadAccessConditions returns area-id -> authority level for all 8 zones.
func (r *Repository) LoadAccessConditions(ctx context.Context) (map[int]model.AuthorityLevel, error) {
	levels := make(map[int]model.AuthorityLevel)
	err := withRetry(ctx, "load_access_conditions", func(ctx context.Context) error {
		rows, queryErr := r.db.QueryContext(ctx, `SELECT area_id, authority_level_id FROM access_conditions`)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		levels = make(map[int]model.AuthorityLevel)
		for rows.Next() {
			var areaID int
			var level int
			if scanErr := rows.Scan(&areaID, &level); scanErr != nil {
				return scanErr
			}
			levels[areaID] = model.AuthorityLevel(level)
		}
		return rows.Err()
	})
	return levels, err
}

// UpdateAccessConditions atomically upserts all 8 zones' levels in a
// single multi-row statement, so either every zone is updated or none
// are — no separate BEGIN/COMMIT needed, and it stays expressible over
// the plain DBTX interface the repo tests mock. On failure, it does not
// touch anything (the cache update is the caller's responsibility, only
// after this returns nil).
func (r *Repository) UpdateAccessConditions(ctx context.Context, levels map[int]model.AuthorityLevel) error {
	return withRetry(ctx, "update_access_conditions", func(ctx context.Context) error {
		areaIDs := make([]int, 0, len(levels))
		authLevels := make([]int, 0, len(levels))
		for areaID, level := range levels {
			areaIDs = append(areaIDs, areaID)
			authLevels = append(authLevels, int(level))
		}

		_, err := r.db.ExecContext(ctx, `
			INSERT INTO access_conditions (area_id, authority_level_id)
			SELECT * FROM unnest($1::int[], $2::int[])
			ON CONFLICT (area_id) DO UPDATE SET authority_level_id = EXCLUDED.authority_level_id`,
			pq.Array(areaIDs), pq.Array(authLevels))
		return err
	})
}

// GetAreaList returns the static 8-row Area table.
func (r *Repository) GetAreaList(ctx context.Context) ([]model.Area, error) {
	var areas []model.Area
	err := withRetry(ctx, "get_area_list", func(ctx context.Context) error {
		rows, queryErr := r.db.QueryContext(ctx, `SELECT id, name, x1, y1, x2, y2 FROM area ORDER BY id`)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		areas = nil
		for rows.Next() {
			var a model.Area
			if scanErr := rows.Scan(&a.ID, &a.Name, &a.X1, &a.Y1, &a.X2, &a.Y2); scanErr != nil {
				return scanErr
			}
			areas = append(areas, a)
		}
		return rows.Err()
	})
	return areas, err
}

// UpsertAreas replaces the Area table's rows with areas in a single
// multi-row statement, mirroring UpdateAccessConditions's unnest-based
// atomic upsert. Called by internal/arealoader whenever config/areas.yaml
// changes, so the DB-backed area table stays the source other components
// query via GetAreaList.
func (r *Repository) UpsertAreas(ctx context.Context, areas []model.Area) error {
	return withRetry(ctx, "upsert_areas", func(ctx context.Context) error {
		ids := make([]int, 0, len(areas))
		names := make([]string, 0, len(areas))
		x1s := make([]float64, 0, len(areas))
		y1s := make([]float64, 0, len(areas))
		x2s := make([]float64, 0, len(areas))
		y2s := make([]float64, 0, len(areas))
		for _, a := range areas {
			ids = append(ids, a.ID)
			names = append(names, a.Name)
			x1s = append(x1s, a.X1)
			y1s = append(y1s, a.Y1)
			x2s = append(x2s, a.X2)
			y2s = append(y2s, a.Y2)
		}

		_, err := r.db.ExecContext(ctx, `
			INSERT INTO area (id, name, x1, y1, x2, y2)
			SELECT * FROM unnest($1::int[], $2::text[], $3::float8[], $4::float8[], $5::float8[], $6::float8[])
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, x1 = EXCLUDED.x1, y1 = EXCLUDED.y1, x2 = EXCLUDED.x2, y2 = EXCLUDED.y2`,
			pq.Array(ids), pq.Array(names), pq.Array(x1s), pq.Array(y1s), pq.Array(x2s), pq.Array(y2s))
		return err
	})
}

// HistoryFilter narrows QueryHistory's results.
type HistoryFilter struct {
	From, To time.Time
	Types    []model.EventType
}

// QueryHistory returns persisted detection records matching filter.
func (r *Repository) QueryHistory(ctx context.Context, filter HistoryFilter) ([]model.FirstDetectionRecord, error) {
	var out []model.FirstDetectionRecord
	err := withRetry(ctx, "query_history", func(ctx context.Context) error {
		rows, queryErr := r.db.QueryContext(ctx, `
			SELECT object_id, event_type_id, object_type_id, area_id, map_x, map_y, occurred_at, image_path
			FROM detect_event
			WHERE occurred_at BETWEEN $1 AND $2
			ORDER BY occurred_at`,
			filter.From, filter.To)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		out = nil
		for rows.Next() {
			var rec model.FirstDetectionRecord
			var areaID sql.NullInt64
			var eventType int
			var class string
			if scanErr := rows.Scan(&rec.ObjectID, &eventType, &class, &areaID, &rec.MapX, &rec.MapY, &rec.Timestamp, &rec.ImagePath); scanErr != nil {
				return scanErr
			}
			rec.EventType = model.EventType(eventType)
			rec.Class = model.ObjectClass(class)
			if areaID.Valid {
				rec.AreaID = int(areaID.Int64)
			}
			if len(filter.Types) > 0 && !containsType(filter.Types, rec.EventType) {
				continue
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

func containsType(types []model.EventType, t model.EventType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

// AppendBirdRisk records a level change.
func (r *Repository) AppendBirdRisk(ctx context.Context, prev, curr model.BirdRiskLevel, at time.Time) error {
	return withRetry(ctx, "append_bird_risk", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO bird_risk_log (prev_level, curr_level, observed_at) VALUES ($1, $2, $3)`,
			int(prev), int(curr), at)
		return err
	})
}

// GetLatestBirdRisk returns the most recently observed level.
func (r *Repository) GetLatestBirdRisk(ctx context.Context) (model.BirdRiskLevel, error) {
	var level int
	err := withRetry(ctx, "get_latest_bird_risk", func(ctx context.Context) error {
		row := r.db.QueryRowContext(ctx, `SELECT curr_level FROM bird_risk_log ORDER BY observed_at DESC LIMIT 1`)
		scanErr := row.Scan(&level)
		if scanErr == sql.ErrNoRows {
			return ErrRecordNotFound
		}
		return scanErr
	})
	return model.BirdRiskLevel(level), err
}

// LogInteraction appends an audit row for a person-rescue escalation
// (spec.md §4.7's rescue-level detections): who was flagged, at what
// rescue level, when. This is separate from detect_event, which records
// the detection itself; interaction_log exists for operators reviewing
// rescue-response history independent of the full detection stream.
func (r *Repository) LogInteraction(ctx context.Context, objectID int64, rescueLevel int, at time.Time) error {
	return withRetry(ctx, "log_interaction", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO interaction_log (object_id, rescue_level, occurred_at) VALUES ($1, $2, $3)`,
			objectID, rescueLevel, at)
		return err
	})
}
