package embed_content

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrt "github.com/brightfeed/brightfeed-backend/internal/jobs/runtime"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

type fakeContentRepo struct {
	item *types.ContentItem
}

func (f *fakeContentRepo) Create(_ context.Context, _ *gorm.DB, items []*types.ContentItem) ([]*types.ContentItem, error) {
	return items, nil
}
func (f *fakeContentRepo) GetByID(context.Context, *gorm.DB, uuid.UUID) (*types.ContentItem, error) {
	return f.item, nil
}
func (f *fakeContentRepo) GetByIDs(context.Context, *gorm.DB, []uuid.UUID) ([]*types.ContentItem, error) {
	return nil, nil
}
func (f *fakeContentRepo) UpdateFields(context.Context, *gorm.DB, uuid.UUID, map[string]interface{}) error {
	return nil
}
func (f *fakeContentRepo) FindByContentHash(context.Context, *gorm.DB, string, uuid.UUID) (*types.ContentItem, error) {
	return nil, nil
}
func (f *fakeContentRepo) FindRecent(context.Context, *gorm.DB, time.Time, int) ([]*types.ContentItem, error) {
	return nil, nil
}
func (f *fakeContentRepo) FindRecentByCategories(context.Context, *gorm.DB, []string, time.Time, int) ([]*types.ContentItem, error) {
	return nil, nil
}
func (f *fakeContentRepo) FindPopularRecent(context.Context, *gorm.DB, time.Time, int) ([]*types.ContentItem, error) {
	return nil, nil
}
func (f *fakeContentRepo) FindEmbedded(context.Context, *gorm.DB, int) ([]*types.ContentItem, error) {
	return nil, nil
}
func (f *fakeContentRepo) IncrementCounter(context.Context, *gorm.DB, uuid.UUID, string) error {
	return nil
}
func (f *fakeContentRepo) FindSimilarByVector(context.Context, *gorm.DB, pgvector.Vector, float64, int, []uuid.UUID, repos.ContentFilters) ([]repos.SimilarContent, error) {
	return nil, nil
}
func (f *fakeContentRepo) SearchFulltext(context.Context, *gorm.DB, string, repos.ContentFilters, int, int) ([]repos.FulltextHit, int64, error) {
	return nil, 0, nil
}
func (f *fakeContentRepo) CountByField(context.Context, *gorm.DB, string, repos.ContentFilters) ([]repos.CategoryCount, error) {
	return nil, nil
}
func (f *fakeContentRepo) SuggestTitles(context.Context, *gorm.DB, string, int) ([]string, error) {
	return nil, nil
}

type fakeEmbedding struct{}

func (f *fakeEmbedding) Embed(context.Context, string) (*services.EmbeddingResult, error) {
	return &services.EmbeddingResult{Vector: []float32{0.1, 0.2}, TokenCount: 3, Provider: "fake"}, nil
}
func (f *fakeEmbedding) EmbedBatch(context.Context, []string) (*services.BatchEmbeddingResult, error) {
	return &services.BatchEmbeddingResult{}, nil
}
func (f *fakeEmbedding) FindSimilarContent(context.Context, uuid.UUID, services.SimilarContentOptions) ([]repos.SimilarContent, error) {
	return nil, nil
}
func (f *fakeEmbedding) FindSimilarByVector(context.Context, []float32, services.SimilarContentOptions) ([]repos.SimilarContent, error) {
	return nil, nil
}

type fakeJobService struct {
	enqueued []services.EnqueueInput
}

func (f *fakeJobService) Enqueue(ctx context.Context, tx *gorm.DB, input services.EnqueueInput) (*types.JobRun, error) {
	f.enqueued = append(f.enqueued, input)
	return &types.JobRun{}, nil
}
func (f *fakeJobService) EnqueueBatch(ctx context.Context, tx *gorm.DB, inputs []services.EnqueueInput) ([]*types.JobRun, error) {
	f.enqueued = append(f.enqueued, inputs...)
	return make([]*types.JobRun, len(inputs)), nil
}
func (f *fakeJobService) Get(context.Context, uuid.UUID) (*types.JobRun, error) { return nil, nil }
func (f *fakeJobService) QueueCounts(context.Context) (map[string]map[string]int64, error) {
	return nil, nil
}
func (f *fakeJobService) EmergencyStop(context.Context, string) (int64, error) { return 0, nil }
func (f *fakeJobService) Resume(context.Context) error                         { return nil }
func (f *fakeJobService) IntakePaused() bool                                   { return false }

type noopJobRunRepo struct{}

func (noopJobRunRepo) Create(_ context.Context, _ *gorm.DB, jobs []*types.JobRun) ([]*types.JobRun, error) {
	return jobs, nil
}
func (noopJobRunRepo) GetByID(context.Context, *gorm.DB, uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}
func (noopJobRunRepo) ClaimNextRunnable(context.Context, *gorm.DB, string, int, time.Duration) (*types.JobRun, error) {
	return nil, nil
}
func (noopJobRunRepo) UpdateFields(context.Context, *gorm.DB, uuid.UUID, map[string]interface{}) error {
	return nil
}
func (noopJobRunRepo) UpdateFieldsUnlessStatus(context.Context, *gorm.DB, uuid.UUID, []string, map[string]interface{}) (bool, error) {
	return true, nil
}
func (noopJobRunRepo) CountByTypeAndStatus(context.Context, *gorm.DB) (map[string]map[string]int64, error) {
	return nil, nil
}
func (noopJobRunRepo) ClearQueued(context.Context, *gorm.DB, string) (int64, error) { return 0, nil }
func (noopJobRunRepo) MarkDeadExhausted(context.Context, *gorm.DB, string, int) (int64, error) {
	return 0, nil
}

func TestRun_ChainedJobsInheritPriority(t *testing.T) {
	contentID := uuid.New()
	jobs := &fakeJobService{}
	p := New(nil, logger.NewNop(),
		&fakeContentRepo{item: &types.ContentItem{ID: contentID, Title: "t", Body: "b"}},
		&fakeEmbedding{},
		jobs,
	)

	job := &types.JobRun{
		ID:       uuid.New(),
		JobType:  types.JobTypeEmbedContent,
		Status:   types.JobStatusRunning,
		Priority: types.PriorityInteractive,
		Payload:  datatypes.JSON([]byte(`{"content_id":"` + contentID.String() + `"}`)),
	}
	jc := jobrt.NewContext(context.Background(), nil, job, noopJobRunRepo{}, time.Second)

	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(jobs.enqueued) != 2 {
		t.Fatalf("expected 2 chained jobs, got %d", len(jobs.enqueued))
	}
	wantTypes := map[string]bool{types.JobTypeCategorize: true, types.JobTypeDuplicateCheck: true}
	for _, in := range jobs.enqueued {
		if !wantTypes[in.JobType] {
			t.Fatalf("unexpected chained job type %q", in.JobType)
		}
		if in.Priority != types.PriorityInteractive {
			t.Fatalf("chained %s job has priority %d, want %d", in.JobType, in.Priority, types.PriorityInteractive)
		}
	}
}
