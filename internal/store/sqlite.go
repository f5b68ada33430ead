package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/propquant/internal/underwriting"
)

var ErrNotFound = errors.New("analysis not found")

const MaxListLimit = 200

// SQLiteStore keeps finished analyses. Summary columns are denormalized for
// listing; the full result is stored as JSON and never updated.
type SQLiteStore struct {
	db *sqlx.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS analyses (
	id          TEXT PRIMARY KEY,
	created_at  TEXT NOT NULL,
	source_url  TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	country     TEXT NOT NULL DEFAULT '',
	currency    TEXT NOT NULL,
	price       REAL NOT NULL,
	final_score INTEGER NOT NULL,
	tier        TEXT NOT NULL,
	verdict     TEXT NOT NULL,
	profile     TEXT NOT NULL DEFAULT '',
	result      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS analyses_created_at ON analyses (created_at DESC);
`

type Summary struct {
	ID         string            `db:"id" json:"id"`
	CreatedAt  string            `db:"created_at" json:"created_at"`
	SourceURL  string            `db:"source_url" json:"source_url,omitempty"`
	City       string            `db:"city" json:"city"`
	Country    string            `db:"country" json:"country"`
	Currency   string            `db:"currency" json:"currency"`
	Price      float64           `db:"price" json:"price"`
	FinalScore int               `db:"final_score" json:"final_score"`
	Tier       underwriting.Tier `db:"tier" json:"tier"`
	Verdict    string            `db:"verdict" json:"verdict"`
	Profile    string            `db:"profile" json:"profile,omitempty"`
}

type row struct {
	Summary
	Result string `db:"result"`
}

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts a finished analysis. Saving an existing id is an error.
func (s *SQLiteStore) Save(ctx context.Context, a underwriting.AnalysisResult, profile string) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	r := row{
		Summary: Summary{
			ID:         a.ID,
			CreatedAt:  a.Timestamp.UTC().Format(time.RFC3339Nano),
			SourceURL:  a.Property.URL,
			City:       a.Property.Location.City,
			Country:    a.Property.Location.Country,
			Currency:   a.Property.Currency,
			Price:      a.Property.Price,
			FinalScore: a.InstitutionalScores.FinalScore,
			Tier:       a.InstitutionalScores.Tier,
			Verdict:    a.InstitutionalScores.Verdict,
			Profile:    profile,
		},
		Result: string(payload),
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO analyses
		(id, created_at, source_url, city, country, currency, price, final_score, tier, verdict, profile, result)
		VALUES (:id, :created_at, :source_url, :city, :country, :currency, :price, :final_score, :tier, :verdict, :profile, :result)`, r)
	if err != nil {
		return fmt.Errorf("insert analysis %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (underwriting.AnalysisResult, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload, "SELECT result FROM analyses WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return underwriting.AnalysisResult{}, ErrNotFound
	}
	if err != nil {
		return underwriting.AnalysisResult{}, fmt.Errorf("get analysis %s: %w", id, err)
	}
	var a underwriting.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return underwriting.AnalysisResult{}, fmt.Errorf("decode analysis %s: %w", id, err)
	}
	return a, nil
}

// List returns summaries newest first. limit is clamped to [1, MaxListLimit].
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]Summary, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	out := []Summary{}
	err := s.db.SelectContext(ctx, &out, `SELECT id, created_at, source_url, city, country, currency, price, final_score, tier, verdict, profile
		FROM analyses ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return out, nil
}
