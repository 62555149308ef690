package content

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var itemRowColumns = []string{
	"id", "title", "body", "url", "tags", "type", "source", "author_id", "created_at",
	"view_count", "like_count", "comment_count", "share_count", "save_count",
	"recent_likes", "recent_comments", "recent_shares", "is_trending", "is_verified",
}

func newMockRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewPostgresRepository(db)
	repo.timeNow = func() time.Time { return testNow }
	return repo, mock
}

func TestPostgresRepository_ListRecent(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT .* FROM content_items WHERE created_at >= \$1 AND NOT \(labels && \$2\) AND \(LOWER\(type\) = \$3 OR \$4 = ANY\(tags\)\) ORDER BY created_at DESC, id ASC LIMIT 20`).
		WillReturnRows(sqlmock.NewRows(itemRowColumns).
			AddRow("item-1", "Cursor Tutorial", "body", "", "{editors,ai}", "article", "blog", "author-1", testNow.Add(-time.Hour),
				50, 10, 2, 1, 0, 5, 1, 0, true, false))

	items, err := repo.ListRecent(context.Background(), ListOptions{
		Since:    testNow.Add(-24 * time.Hour),
		Category: "Editors",
		Limit:    20,
	})
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	got := items[0]
	if got.ID != "item-1" || got.ViewCount != 50 || got.RecentLikes != 5 || !got.IsTrending {
		t.Errorf("unexpected item: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "editors" {
		t.Errorf("tags = %v, want [editors ai]", got.Tags)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_Search_BuildsVariantAndFilterClauses(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`FROM content_items WHERE NOT \(labels && \$1\) AND \(title ILIKE \$2 OR body ILIKE \$3 OR EXISTS \(SELECT 1 FROM unnest\(tags\) AS t WHERE t ILIKE \$4\)\) AND tags && \$5 AND type IN \(\$6\) AND view_count >= \$7`).
		WithArgs(sqlmock.AnyArg(), "%cur\\%sor%", "%cur\\%sor%", "%cur\\%sor%", sqlmock.AnyArg(), "article", int64(10)).
		WillReturnRows(sqlmock.NewRows(itemRowColumns))

	items, err := repo.Search(context.Background(), SearchOptions{
		Variants: []string{"cur%sor", "  "},
		Filters:  Filters{Tags: []string{"AI"}, Types: []string{"article"}, MinViews: 10},
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_QueryFailureIsStoreUnavailable(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("FROM content_items").WillReturnError(errors.New("connection refused"))

	_, err := repo.ListRecent(context.Background(), ListOptions{Since: testNow})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestPostgresRepository_GetAuthorProfile(t *testing.T) {
	t.Run("found with quality score", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery("FROM author_profiles").
			WithArgs("author-1").
			WillReturnRows(sqlmock.NewRows([]string{"total_posts", "spam_count", "quality_score", "account_created_at"}).
				AddRow(40, 4, 0.8, testNow.Add(-10*24*time.Hour)))

		p, err := repo.GetAuthorProfile(context.Background(), "author-1")
		if err != nil {
			t.Fatalf("GetAuthorProfile() error = %v", err)
		}
		if p.TotalPosts != 40 || p.SpamCount != 4 {
			t.Errorf("unexpected counts: %+v", p)
		}
		if p.QualityScore == nil || *p.QualityScore != 0.8 {
			t.Errorf("QualityScore = %v, want 0.8", p.QualityScore)
		}
		if p.AccountAgeDays != 10 {
			t.Errorf("AccountAgeDays = %v, want 10", p.AccountAgeDays)
		}
	})

	t.Run("null quality score", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery("FROM author_profiles").
			WithArgs("author-2").
			WillReturnRows(sqlmock.NewRows([]string{"total_posts", "spam_count", "quality_score", "account_created_at"}).
				AddRow(0, 0, nil, testNow))

		p, err := repo.GetAuthorProfile(context.Background(), "author-2")
		if err != nil {
			t.Fatalf("GetAuthorProfile() error = %v", err)
		}
		if p.QualityScore != nil {
			t.Errorf("QualityScore = %v, want nil", *p.QualityScore)
		}
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery("FROM author_profiles").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		if _, err := repo.GetAuthorProfile(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestPostgresRepository_GetUserContext(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("FROM user_contexts").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"preferences", "language", "geography"}).
			AddRow("{go,ai}", "en", "US"))
	mock.ExpectQuery("FROM user_interactions").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"content_id", "source", "tags"}).
			AddRow("item-9", "blog", "{rust}"))

	uc, err := repo.GetUserContext(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetUserContext() error = %v", err)
	}
	if len(uc.Preferences) != 2 || uc.Language != "en" {
		t.Errorf("unexpected user context: %+v", uc)
	}
	if len(uc.History) != 1 || uc.History[0].Source != "blog" || uc.History[0].Tags[0] != "rust" {
		t.Errorf("unexpected history: %+v", uc.History)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Errorf("escapeLike() = %q", got)
	}
}
