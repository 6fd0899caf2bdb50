package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// ContentFilters are the hard filters shared by the search branches and the
// similarity queries. Zero values mean "no filter".
type ContentFilters struct {
	Categories  []string
	Sources     []string
	Authors     []string
	Tags        []string
	ContentType string
	MinQuality  float64
	MaxAge      time.Duration
	DateFrom    *time.Time
	DateTo      *time.Time
}

// SimilarContent is a content id with its cosine similarity to the query
// vector, ordered by similarity descending.
type SimilarContent struct {
	ContentID  uuid.UUID
	Similarity float64
}

// FulltextHit is one lexical search match with its rank and highlighted
// fragments.
type FulltextHit struct {
	ContentID      uuid.UUID
	Rank           float64
	TitleHighlight string
	Snippet        string
}

// CategoryCount backs search aggregations.
type CategoryCount struct {
	Key   string
	Count int64
}

type ContentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, items []*types.ContentItem) ([]*types.ContentItem, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ContentItem, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ContentItem, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	FindByContentHash(ctx context.Context, tx *gorm.DB, hash string, excludeID uuid.UUID) (*types.ContentItem, error)
	FindRecent(ctx context.Context, tx *gorm.DB, since time.Time, limit int) ([]*types.ContentItem, error)
	FindRecentByCategories(ctx context.Context, tx *gorm.DB, categories []string, since time.Time, limit int) ([]*types.ContentItem, error)
	FindPopularRecent(ctx context.Context, tx *gorm.DB, since time.Time, limit int) ([]*types.ContentItem, error)
	FindEmbedded(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ContentItem, error)
	IncrementCounter(ctx context.Context, tx *gorm.DB, id uuid.UUID, column string) error

	// FindSimilarByVector is the nearest-neighbor query behind the
	// similarity index. Only published, non-deleted items with a non-null
	// content embedding participate.
	FindSimilarByVector(ctx context.Context, tx *gorm.DB, vec pgvector.Vector, threshold float64, limit int, exclude []uuid.UUID, filters ContentFilters) ([]SimilarContent, error)

	// SearchFulltext ranks published items against a websearch query and
	// returns highlighted fragments.
	SearchFulltext(ctx context.Context, tx *gorm.DB, query string, filters ContentFilters, limit, offset int) ([]FulltextHit, int64, error)

	CountByField(ctx context.Context, tx *gorm.DB, field string, filters ContentFilters) ([]CategoryCount, error)
	SuggestTitles(ctx context.Context, tx *gorm.DB, prefix string, limit int) ([]string, error)
}

type contentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentRepo(db *gorm.DB, baseLog *logger.Logger) ContentRepo {
	return &contentRepo{
		db:  db,
		log: baseLog.With("repo", "ContentRepo"),
	}
}

func (r *contentRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *contentRepo) Create(ctx context.Context, tx *gorm.DB, items []*types.ContentItem) ([]*types.ContentItem, error) {
	if len(items) == 0 {
		return []*types.ContentItem{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *contentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ContentItem, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var item types.ContentItem
	err := r.conn(tx).WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == uuid.Nil {
		return nil, nil
	}
	return &item, nil
}

func (r *contentRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contentRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.conn(tx).WithContext(ctx).
		Model(&types.ContentItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *contentRepo) FindByContentHash(ctx context.Context, tx *gorm.DB, hash string, excludeID uuid.UUID) (*types.ContentItem, error) {
	if hash == "" {
		return nil, nil
	}
	var item types.ContentItem
	q := r.conn(tx).WithContext(ctx).
		Where("content_hash = ?", hash)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Order("created_at ASC").Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == uuid.Nil {
		return nil, nil
	}
	return &item, nil
}

func (r *contentRepo) FindRecent(ctx context.Context, tx *gorm.DB, since time.Time, limit int) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	err := r.conn(tx).WithContext(ctx).
		Where("status = ? AND published_at >= ?", types.ContentStatusPublished, since).
		Order("published_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *contentRepo) FindRecentByCategories(ctx context.Context, tx *gorm.DB, categories []string, since time.Time, limit int) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	if len(categories) == 0 {
		return out, nil
	}
	err := r.conn(tx).WithContext(ctx).
		Where("status = ? AND category IN ? AND published_at >= ?", types.ContentStatusPublished, categories, since).
		Order("published_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *contentRepo) FindPopularRecent(ctx context.Context, tx *gorm.DB, since time.Time, limit int) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	err := r.conn(tx).WithContext(ctx).
		Where("status = ? AND published_at >= ?", types.ContentStatusPublished, since).
		Order("(view_count + 5 * share_count + 2 * comment_count) DESC, published_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *contentRepo) FindEmbedded(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	err := r.conn(tx).WithContext(ctx).
		Where("status = ? AND content_embedding IS NOT NULL", types.ContentStatusPublished).
		Order("published_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *contentRepo) IncrementCounter(ctx context.Context, tx *gorm.DB, id uuid.UUID, column string) error {
	switch column {
	case "view_count", "share_count", "comment_count":
	default:
		return fmt.Errorf("unknown counter column %q", column)
	}
	return r.conn(tx).WithContext(ctx).
		Model(&types.ContentItem{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}

// applyFilters translates ContentFilters into squirrel predicates shared by
// the fulltext and aggregation queries.
func applyFilters(b sq.SelectBuilder, filters ContentFilters) sq.SelectBuilder {
	if len(filters.Categories) > 0 {
		b = b.Where(sq.Eq{"category": filters.Categories})
	}
	if len(filters.Sources) > 0 {
		b = b.Where(sq.Eq{"source": filters.Sources})
	}
	if len(filters.Authors) > 0 {
		b = b.Where(sq.Eq{"author": filters.Authors})
	}
	if filters.ContentType != "" {
		b = b.Where(sq.Eq{"content_type": filters.ContentType})
	}
	if filters.MinQuality > 0 {
		b = b.Where(sq.GtOrEq{"quality_score": filters.MinQuality})
	}
	if filters.MaxAge > 0 {
		b = b.Where(sq.GtOrEq{"published_at": time.Now().Add(-filters.MaxAge)})
	}
	if filters.DateFrom != nil {
		b = b.Where(sq.GtOrEq{"published_at": *filters.DateFrom})
	}
	if filters.DateTo != nil {
		b = b.Where(sq.LtOrEq{"published_at": *filters.DateTo})
	}
	for _, tag := range filters.Tags {
		if enc, err := json.Marshal([]string{tag}); err == nil {
			b = b.Where("tags @> ?", string(enc))
		}
	}
	return b
}

func (r *contentRepo) FindSimilarByVector(ctx context.Context, tx *gorm.DB, vec pgvector.Vector, threshold float64, limit int, exclude []uuid.UUID, filters ContentFilters) ([]SimilarContent, error) {
	if limit <= 0 {
		limit = 10
	}
	b := sq.Select("id", "1 - (content_embedding <=> ?) AS similarity").
		From("content_item").
		Where("status = ?", types.ContentStatusPublished).
		Where("content_embedding IS NOT NULL").
		Where("deleted_at IS NULL")
	b = applyFilters(b, filters)
	if len(exclude) > 0 {
		b = b.Where(sq.NotEq{"id": exclude})
	}
	if threshold > 0 {
		b = b.Where("1 - (content_embedding <=> ?) >= ?", vec, threshold)
	}
	b = b.OrderBy("content_embedding <=> ?").Limit(uint64(limit))

	sqlStr, args, err := b.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build similarity query: %w", err)
	}
	// The select expression and order clause each reference the vector; the
	// builder only collects args for WHERE, so prepend/append explicitly.
	fullArgs := append([]interface{}{vec}, args...)
	fullArgs = append(fullArgs, vec)
	sqlStr, fullArgs, err = renumberPlaceholders(sqlStr, fullArgs)
	if err != nil {
		return nil, err
	}

	var rows []SimilarContent
	if err := r.conn(tx).WithContext(ctx).Raw(sqlStr, fullArgs...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	return rows, nil
}

func (r *contentRepo) SearchFulltext(ctx context.Context, tx *gorm.DB, query string, filters ContentFilters, limit, offset int) ([]FulltextHit, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	const tsv = "to_tsvector('english', coalesce(title,'') || ' ' || coalesce(body,''))"

	b := sq.Select(
		"id AS content_id",
		"ts_rank("+tsv+", websearch_to_tsquery('english', ?)) AS rank",
		"ts_headline('english', title, websearch_to_tsquery('english', ?)) AS title_highlight",
		"ts_headline('english', left(body, 2000), websearch_to_tsquery('english', ?)) AS snippet",
	).
		From("content_item").
		Where("status = ?", types.ContentStatusPublished).
		Where("deleted_at IS NULL").
		Where(tsv+" @@ websearch_to_tsquery('english', ?)", query)
	b = applyFilters(b, filters)
	b = b.OrderBy("rank DESC").Limit(uint64(limit)).Offset(uint64(offset))

	sqlStr, args, err := b.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build fulltext query: %w", err)
	}
	fullArgs := append([]interface{}{query, query, query}, args...)
	sqlStr, fullArgs, err = renumberPlaceholders(sqlStr, fullArgs)
	if err != nil {
		return nil, 0, err
	}

	var hits []FulltextHit
	if err := r.conn(tx).WithContext(ctx).Raw(sqlStr, fullArgs...).Scan(&hits).Error; err != nil {
		return nil, 0, fmt.Errorf("fulltext query: %w", err)
	}

	cb := sq.Select("count(*)").
		From("content_item").
		Where("status = ?", types.ContentStatusPublished).
		Where("deleted_at IS NULL").
		Where(tsv+" @@ websearch_to_tsquery('english', ?)", query)
	cb = applyFilters(cb, filters)
	countSQL, countArgs, err := cb.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build fulltext count query: %w", err)
	}
	var total int64
	if err := r.conn(tx).WithContext(ctx).Raw(countSQL, countArgs...).Scan(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("fulltext count query: %w", err)
	}
	return hits, total, nil
}

func (r *contentRepo) CountByField(ctx context.Context, tx *gorm.DB, field string, filters ContentFilters) ([]CategoryCount, error) {
	var expr string
	switch field {
	case "category", "source", "content_type":
		expr = field
	case "month":
		expr = "to_char(published_at, 'YYYY-MM')"
	default:
		return nil, fmt.Errorf("unknown aggregation field %q", field)
	}
	b := sq.Select(expr+" AS key", "count(*) AS count").
		From("content_item").
		Where("status = ?", types.ContentStatusPublished).
		Where("deleted_at IS NULL")
	b = applyFilters(b, filters)
	b = b.GroupBy(expr).OrderBy("count DESC").Limit(20)

	sqlStr, args, err := b.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build aggregation query: %w", err)
	}
	var out []CategoryCount
	if err := r.conn(tx).WithContext(ctx).Raw(sqlStr, args...).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("aggregation query: %w", err)
	}
	return out, nil
}

func (r *contentRepo) SuggestTitles(ctx context.Context, tx *gorm.DB, prefix string, limit int) ([]string, error) {
	if prefix == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	var out []string
	err := r.conn(tx).WithContext(ctx).
		Model(&types.ContentItem{}).
		Where("status = ? AND title ILIKE ?", types.ContentStatusPublished, prefix+"%").
		Order("published_at DESC").
		Limit(limit).
		Pluck("title", &out).Error
	return out, err
}

// renumberPlaceholders rewrites $N placeholders after extra args were
// prepended outside squirrel. The builder emits $1..$n for WHERE args only,
// while `?` placeholders inside select/order expressions stay literal, so
// the final statement is rebuilt with sequential numbering.
func renumberPlaceholders(sqlStr string, args []interface{}) (string, []interface{}, error) {
	var out []byte
	n := 0
	for i := 0; i < len(sqlStr); i++ {
		c := sqlStr[i]
		if c == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		if c == '$' {
			// skip an existing $N, it will be replaced by the next ? pass
			j := i + 1
			for j < len(sqlStr) && sqlStr[j] >= '0' && sqlStr[j] <= '9' {
				j++
			}
			if j > i+1 {
				n++
				out = append(out, fmt.Sprintf("$%d", n)...)
				i = j - 1
				continue
			}
		}
		out = append(out, c)
	}
	if n != len(args) {
		return "", nil, fmt.Errorf("placeholder count %d does not match arg count %d", n, len(args))
	}
	return string(out), args, nil
}
