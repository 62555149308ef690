package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/onnwee/contentrank/internal/tracing"
)

// psql builds Postgres queries with $N placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// itemColumns is the column order scanned by scanItem.
var itemColumns = []string{
	"id", "title", "body", "COALESCE(url, '')", "tags", "COALESCE(type, '')", "COALESCE(source, '')",
	"COALESCE(author_id, '')", "created_at",
	"view_count", "like_count", "comment_count", "share_count", "save_count",
	"recent_likes", "recent_comments", "recent_shares",
	"is_trending", "is_verified",
}

// hiddenLabels are moderation labels that exclude an item from every result.
var hiddenLabels = []string{"hidden", "spam"}

// PostgresRepository reads content from PostgreSQL.
type PostgresRepository struct {
	db      *sql.DB
	timeNow func() time.Time
}

// NewPostgresRepository creates a repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, timeNow: time.Now}
}

// ListRecent implements Repository.
func (r *PostgresRepository) ListRecent(ctx context.Context, opts ListOptions) (items []*Item, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "content_items", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	q := psql.Select(itemColumns...).
		From("content_items").
		Where(sq.GtOrEq{"created_at": opts.Since}).
		Where(sq.Expr("NOT (labels && ?)", pq.Array(hiddenLabels))).
		OrderBy("created_at DESC", "id ASC").
		Limit(uint64(limitOrDefault(opts.Limit)))

	if c := normalizeTag(opts.Category); c != "" {
		q = q.Where(sq.Or{
			sq.Expr("LOWER(type) = ?", c),
			sq.Expr("? = ANY(tags)", c),
		})
	}

	return r.queryItems(ctx, q)
}

// Search implements Repository.
func (r *PostgresRepository) Search(ctx context.Context, opts SearchOptions) (items []*Item, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "content_items", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	q := psql.Select(itemColumns...).
		From("content_items").
		Where(sq.Expr("NOT (labels && ?)", pq.Array(hiddenLabels))).
		OrderBy("created_at DESC", "id ASC").
		Limit(uint64(limitOrDefault(opts.Limit)))

	var match sq.Or
	for _, v := range opts.Variants {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		pattern := "%" + escapeLike(v) + "%"
		match = append(match,
			sq.ILike{"title": pattern},
			sq.ILike{"body": pattern},
			sq.Expr("EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE ?)", pattern),
		)
	}
	if len(match) > 0 {
		q = q.Where(match)
	}

	f := opts.Filters
	if len(f.Tags) > 0 {
		q = q.Where(sq.Expr("tags && ?", pq.Array(lowerAll(f.Tags))))
	}
	if len(f.Types) > 0 {
		q = q.Where(sq.Eq{"type": f.Types})
	}
	if len(f.Sources) > 0 {
		q = q.Where(sq.Eq{"source": f.Sources})
	}
	if f.DateFrom != nil {
		q = q.Where(sq.GtOrEq{"created_at": *f.DateFrom})
	}
	if f.DateTo != nil {
		q = q.Where(sq.LtOrEq{"created_at": *f.DateTo})
	}
	if f.MinViews > 0 {
		q = q.Where(sq.GtOrEq{"view_count": f.MinViews})
	}

	return r.queryItems(ctx, q)
}

// GetUserContext implements Repository.
func (r *PostgresRepository) GetUserContext(ctx context.Context, userID string) (uc *UserContext, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_contexts", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	uc = &UserContext{UserID: userID}
	var prefs pq.StringArray
	err = r.db.QueryRowContext(ctx,
		`SELECT preferences, COALESCE(language, ''), COALESCE(geography, '')
		 FROM user_contexts WHERE user_id = $1`, userID).
		Scan(&prefs, &uc.Language, &uc.Geography)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get user context: %v", ErrStoreUnavailable, err)
	}
	uc.Preferences = prefs

	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(content_id, ''), COALESCE(source, ''), tags
		 FROM user_interactions WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT 100`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list interactions: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var in Interaction
		var tags pq.StringArray
		if err := rows.Scan(&in.ContentID, &in.Source, &tags); err != nil {
			return nil, fmt.Errorf("%w: scan interaction: %v", ErrStoreUnavailable, err)
		}
		in.Tags = tags
		uc.History = append(uc.History, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate interactions: %v", ErrStoreUnavailable, err)
	}
	return uc, nil
}

// GetAuthorProfile implements Repository.
func (r *PostgresRepository) GetAuthorProfile(ctx context.Context, authorID string) (p *BehavioralProfile, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "author_profiles", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	p = &BehavioralProfile{}
	var quality sql.NullFloat64
	var accountCreated time.Time
	err = r.db.QueryRowContext(ctx,
		`SELECT total_posts, spam_count, quality_score, account_created_at
		 FROM author_profiles WHERE author_id = $1`, authorID).
		Scan(&p.TotalPosts, &p.SpamCount, &quality, &accountCreated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get author profile: %v", ErrStoreUnavailable, err)
	}
	if quality.Valid {
		q := quality.Float64
		p.QualityScore = &q
	}
	if age := r.timeNow().Sub(accountCreated); age > 0 {
		p.AccountAgeDays = age.Hours() / 24
	}
	return p, nil
}

func (r *PostgresRepository) queryItems(ctx context.Context, q sq.SelectBuilder) ([]*Item, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan item: %v", ErrStoreUnavailable, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate items: %v", ErrStoreUnavailable, err)
	}
	return items, nil
}

func scanItem(rows *sql.Rows) (*Item, error) {
	var item Item
	var tags pq.StringArray
	err := rows.Scan(
		&item.ID, &item.Title, &item.Body, &item.URL, &tags, &item.Type, &item.Source,
		&item.AuthorID, &item.CreatedAt,
		&item.ViewCount, &item.LikeCount, &item.CommentCount, &item.ShareCount, &item.SaveCount,
		&item.RecentLikes, &item.RecentComments, &item.RecentShares,
		&item.IsTrending, &item.IsVerified,
	)
	if err != nil {
		return nil, err
	}
	item.Tags = tags
	return &item, nil
}

// escapeLike escapes LIKE wildcards so variants match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = normalizeTag(s)
	}
	return out
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
