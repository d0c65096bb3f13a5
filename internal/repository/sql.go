package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pgUniqueViolation = "23505"

// SQLRepository implements Repository on database/sql. Queries are written
// with ? placeholders and rebound for PostgreSQL.
type SQLRepository struct {
	db     *sql.DB
	driver string
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewSQLRepository(db *sql.DB, driver string, logger *zap.SugaredLogger) *SQLRepository {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SQLRepository{db: db, driver: driver, logger: logger, now: time.Now}
}

// DB exposes the handle for migrations.
func (r *SQLRepository) DB() *sql.DB {
	return r.db
}

func (r *SQLRepository) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *SQLRepository) AddPartner(ctx context.Context, p Partner) (Partner, error) {
	p = prepare(p, r.now())
	query := r.rebind(`
		INSERT INTO partners (id, member_urn, name, partner_urn, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		p.ID.String(),
		p.MemberURN,
		p.Name,
		p.PartnerURN,
		p.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Partner{}, ErrDuplicate
		}
		return Partner{}, fmt.Errorf("failed to store partner: %w", err)
	}
	return p, nil
}

func scanPartner(row interface{ Scan(...any) error }) (Partner, error) {
	var (
		p       Partner
		id      string
		created int64
	)
	if err := row.Scan(&id, &p.MemberURN, &p.Name, &p.PartnerURN, &created); err != nil {
		return Partner{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Partner{}, fmt.Errorf("invalid partner id %q: %w", id, err)
	}
	p.ID = parsed
	p.CreatedAt = time.UnixMilli(created).UTC()
	return p, nil
}

func (r *SQLRepository) ListPartners(ctx context.Context, memberURN string) ([]Partner, error) {
	query := r.rebind(`
		SELECT id, member_urn, name, partner_urn, created_at
		FROM partners
		WHERE member_urn = ?
		ORDER BY created_at ASC, id ASC
	`)

	rows, err := r.db.QueryContext(ctx, query, memberURN)
	if err != nil {
		return nil, fmt.Errorf("failed to query partners: %w", err)
	}
	defer rows.Close()

	partners := make([]Partner, 0)
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan partner: %w", err)
		}
		partners = append(partners, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return partners, nil
}

func (r *SQLRepository) GetPartner(ctx context.Context, memberURN string, id uuid.UUID) (Partner, error) {
	query := r.rebind(`
		SELECT id, member_urn, name, partner_urn, created_at
		FROM partners
		WHERE member_urn = ? AND id = ?
	`)

	p, err := scanPartner(r.db.QueryRowContext(ctx, query, memberURN, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Partner{}, ErrNotFound
	}
	if err != nil {
		return Partner{}, fmt.Errorf("failed to get partner: %w", err)
	}
	return p, nil
}

func (r *SQLRepository) RemovePartner(ctx context.Context, memberURN string, id uuid.UUID) error {
	query := r.rebind(`DELETE FROM partners WHERE member_urn = ? AND id = ?`)

	res, err := r.db.ExecContext(ctx, query, memberURN, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete partner: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete partner: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepository) AppendScore(ctx context.Context, rec ScoreRecord) (ScoreRecord, error) {
	rec = prepareScore(rec, r.now())
	s := rec.Scores
	query := r.rebind(`
		INSERT INTO score_history (
			id, member, profile_completeness, posting_activity, engagement_quality,
			network_growth, content_diversity, engagement_rate, mutual_interactions,
			overall, computed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		rec.ID.String(),
		rec.Member,
		s.ProfileCompleteness,
		s.PostingActivity,
		s.EngagementQuality,
		s.NetworkGrowth,
		s.ContentDiversity,
		s.EngagementRate,
		s.MutualInteractions,
		s.Overall,
		rec.ComputedAt.UnixMilli(),
	)
	if err != nil {
		return ScoreRecord{}, fmt.Errorf("failed to store score: %w", err)
	}
	return rec, nil
}

func (r *SQLRepository) ListScores(ctx context.Context, member string, limit int) ([]ScoreRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	query := r.rebind(`
		SELECT id, member, profile_completeness, posting_activity, engagement_quality,
			network_growth, content_diversity, engagement_rate, mutual_interactions,
			overall, computed_at
		FROM score_history
		WHERE member = ?
		ORDER BY computed_at DESC, id DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, member, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query score history: %w", err)
	}
	defer rows.Close()

	records := make([]ScoreRecord, 0)
	for rows.Next() {
		var (
			rec      ScoreRecord
			id       string
			computed int64
		)
		s := &rec.Scores
		err := rows.Scan(
			&id,
			&rec.Member,
			&s.ProfileCompleteness,
			&s.PostingActivity,
			&s.EngagementQuality,
			&s.NetworkGrowth,
			&s.ContentDiversity,
			&s.EngagementRate,
			&s.MutualInteractions,
			&s.Overall,
			&computed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid score id %q: %w", id, err)
		}
		rec.ComputedAt = time.UnixMilli(computed).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

func (r *SQLRepository) PruneScores(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.rebind(`DELETE FROM score_history WHERE computed_at < ?`)

	res, err := r.db.ExecContext(ctx, query, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune score history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune score history: %w", err)
	}
	if n > 0 {
		r.logger.Debugw("Pruned score history", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}

// Ping checks the database connection.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}
