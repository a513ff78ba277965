// Package store persists learning experiences, knowledge entries and
// adaptation events behind database/sql. SQLite is the default local
// engine; PostgreSQL is supported for shared deployments.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/takeshi-yoshida/Naoru/internal/learning"
)

// Config holds the store's connection settings.
type Config struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ApplyDefaults fills unset fields with local SQLite settings.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite3"
	}
	if c.DSN == "" {
		c.DSN = "naoru.db"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
}

// Store is the sql-backed implementation of learning.Store.
type Store struct {
	logger *zap.Logger
	db     *sql.DB
	driver string
}

// New opens the database, configures the pool and ensures the schema.
func New(logger *zap.Logger, config Config) (*Store, error) {
	config.ApplyDefaults()

	driver := config.Driver
	switch driver {
	case "sqlite", "sqlite3":
		driver = "sqlite3"
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", config.Driver)
	}

	db, err := sql.Open(driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	s := &Store{logger: logger, db: db, driver: driver}
	if err := s.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}

	logger.Info("Learning store connected",
		zap.String("driver", driver),
	)
	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initializeSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS experiences (
			id TEXT PRIMARY KEY,
			experience_type TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			context TEXT,
			action_taken TEXT,
			outcome TEXT,
			metrics_before TEXT,
			metrics_after TEXT,
			learned_patterns TEXT,
			confidence_score REAL
		)`,
		`CREATE TABLE IF NOT EXISTS knowledge (
			knowledge_id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			confidence REAL,
			success_rate REAL,
			last_updated TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS adaptation_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			content TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_experiences_timestamp ON experiences (timestamp)`,
	}
	if s.driver == "postgres" {
		statements[2] = `CREATE TABLE IF NOT EXISTS adaptation_events (
			id BIGSERIAL PRIMARY KEY,
			timestamp TEXT NOT NULL,
			content TEXT NOT NULL
		)`
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// SaveExperience upserts one experience by ID. Replaying the same ID
// overwrites rather than duplicates.
func (s *Store) SaveExperience(ctx context.Context, exp *learning.Experience) error {
	contextJSON, err := json.Marshal(exp.Context)
	if err != nil {
		return fmt.Errorf("failed to encode experience context: %w", err)
	}
	outcomeJSON, err := json.Marshal(exp.Outcome)
	if err != nil {
		return fmt.Errorf("failed to encode experience outcome: %w", err)
	}
	beforeJSON, _ := json.Marshal(exp.MetricsBefore)
	afterJSON, _ := json.Marshal(exp.MetricsAfter)
	patternsJSON, _ := json.Marshal(exp.LearnedPatterns)

	query := `INSERT OR REPLACE INTO experiences
		(id, experience_type, timestamp, context, action_taken, outcome,
		 metrics_before, metrics_after, learned_patterns, confidence_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{
		exp.ExperienceID,
		exp.ExperienceType,
		exp.Timestamp.UTC().Format(time.RFC3339Nano),
		string(contextJSON),
		exp.ActionTaken,
		string(outcomeJSON),
		string(beforeJSON),
		string(afterJSON),
		string(patternsJSON),
		exp.ConfidenceScore,
	}
	if s.driver == "postgres" {
		query = `INSERT INTO experiences
			(id, experience_type, timestamp, context, action_taken, outcome,
			 metrics_before, metrics_after, learned_patterns, confidence_score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				experience_type = EXCLUDED.experience_type,
				timestamp = EXCLUDED.timestamp,
				context = EXCLUDED.context,
				action_taken = EXCLUDED.action_taken,
				outcome = EXCLUDED.outcome,
				metrics_before = EXCLUDED.metrics_before,
				metrics_after = EXCLUDED.metrics_after,
				learned_patterns = EXCLUDED.learned_patterns,
				confidence_score = EXCLUDED.confidence_score`
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save experience: %w", err)
	}
	return nil
}

// SaveKnowledge upserts one knowledge entry.
func (s *Store) SaveKnowledge(ctx context.Context, entry *learning.KnowledgeEntry) error {
	content, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode knowledge entry: %w", err)
	}

	query := `INSERT OR REPLACE INTO knowledge
		(knowledge_id, content, confidence, success_rate, last_updated)
		VALUES (?, ?, ?, ?, ?)`
	if s.driver == "postgres" {
		query = `INSERT INTO knowledge
			(knowledge_id, content, confidence, success_rate, last_updated)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (knowledge_id) DO UPDATE SET
				content = EXCLUDED.content,
				confidence = EXCLUDED.confidence,
				success_rate = EXCLUDED.success_rate,
				last_updated = EXCLUDED.last_updated`
	}

	_, err = s.db.ExecContext(ctx, query,
		entry.KnowledgeID,
		string(content),
		entry.Confidence,
		entry.SuccessRate,
		entry.LastUpdated.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save knowledge entry: %w", err)
	}
	return nil
}

// SaveAdaptationEvent appends one adaptation event.
func (s *Store) SaveAdaptationEvent(ctx context.Context, event *learning.AdaptationEvent) error {
	content, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode adaptation event: %w", err)
	}

	query := `INSERT INTO adaptation_events (timestamp, content) VALUES (?, ?)`
	if s.driver == "postgres" {
		query = `INSERT INTO adaptation_events (timestamp, content) VALUES ($1, $2)`
	}

	_, err = s.db.ExecContext(ctx, query,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		string(content),
	)
	if err != nil {
		return fmt.Errorf("failed to save adaptation event: %w", err)
	}
	return nil
}

// PurgeExperiencesBefore deletes experiences older than the cutoff and
// returns the number removed.
func (s *Store) PurgeExperiencesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM experiences WHERE timestamp < ?`
	if s.driver == "postgres" {
		query = `DELETE FROM experiences WHERE timestamp < $1`
	}

	res, err := s.db.ExecContext(ctx, query, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to purge experiences: %w", err)
	}
	return res.RowsAffected()
}

// LoadRecentExperiences returns up to limit experiences, newest first.
func (s *Store) LoadRecentExperiences(ctx context.Context, limit int) ([]*learning.Experience, error) {
	query := `SELECT id, experience_type, timestamp, context, action_taken,
		outcome, metrics_before, metrics_after, learned_patterns, confidence_score
		FROM experiences ORDER BY timestamp DESC LIMIT ?`
	if s.driver == "postgres" {
		query = `SELECT id, experience_type, timestamp, context, action_taken,
			outcome, metrics_before, metrics_after, learned_patterns, confidence_score
			FROM experiences ORDER BY timestamp DESC LIMIT $1`
	}

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load experiences: %w", err)
	}
	defer rows.Close()

	var out []*learning.Experience
	for rows.Next() {
		var (
			exp       learning.Experience
			timestamp string
			contextJS string
			outcomeJS string
			beforeJS  string
			afterJS   string
			patternJS string
		)
		if err := rows.Scan(
			&exp.ExperienceID, &exp.ExperienceType, &timestamp, &contextJS,
			&exp.ActionTaken, &outcomeJS, &beforeJS, &afterJS, &patternJS,
			&exp.ConfidenceScore,
		); err != nil {
			return nil, fmt.Errorf("failed to scan experience row: %w", err)
		}
		if exp.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
			return nil, fmt.Errorf("malformed experience timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(contextJS), &exp.Context); err != nil {
			return nil, fmt.Errorf("malformed experience context: %w", err)
		}
		if err := json.Unmarshal([]byte(outcomeJS), &exp.Outcome); err != nil {
			return nil, fmt.Errorf("malformed experience outcome: %w", err)
		}
		json.Unmarshal([]byte(beforeJS), &exp.MetricsBefore)
		json.Unmarshal([]byte(afterJS), &exp.MetricsAfter)
		json.Unmarshal([]byte(patternJS), &exp.LearnedPatterns)
		out = append(out, &exp)
	}
	return out, rows.Err()
}
