package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/pkg/database"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestRepo(t *testing.T) *documentRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "catalog.db"),
	})
	require.NoError(t, err)
	clock := &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return &documentRepository{db: db, now: clock.Now}
}

func register(t *testing.T, repo *documentRepository, name, hash, domain string) uint {
	t.Helper()
	id, err := repo.Register(context.Background(), RegisterParams{
		FileName:    name,
		Location:    "uploads/" + name,
		ContentHash: hash,
		Size:        100,
		Domain:      domain,
		Tags:        []string{"pcie"},
		Metadata:    map[string]any{"description": "spec"},
	})
	require.NoError(t, err)
	return id
}

func TestRegister_CreatesPendingDocument(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id := register(t, repo, "a.pdf", "hash-a", "protocols")
	doc, err := repo.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, doc.Status)
	assert.Equal(t, 0, doc.ChunkCount)
	assert.Nil(t, doc.LastProcessed)
	assert.Equal(t, []string{"pcie"}, doc.TagList())
	assert.Equal(t, "spec", doc.MetadataMap()["description"])
}

func TestRegister_DuplicateHashIsRejected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := register(t, repo, "a.pdf", "same-hash", "protocols")

	_, err := repo.Register(ctx, RegisterParams{FileName: "renamed.pdf", ContentHash: "same-hash", Domain: "protocols"})
	require.ErrorIs(t, err, ErrDuplicateDocument)

	docs, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, first, docs[0].ID)
	assert.Equal(t, "a.pdf", docs[0].FileName)
}

func TestSetStatus_OverwritesAndIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := register(t, repo, "a.txt", "h1", "protocols")

	n := 7
	require.NoError(t, repo.SetStatus(ctx, id, model.StatusCompleted, &n))
	require.NoError(t, repo.SetStatus(ctx, id, model.StatusCompleted, &n))

	doc, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, doc.Status)
	assert.Equal(t, 7, doc.ChunkCount)
	require.NotNil(t, doc.LastProcessed)

	// 不校验迁移，completed 之后仍可改写
	require.NoError(t, repo.SetStatus(ctx, id, model.StatusFailed, nil))
	doc, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, doc.Status)
	assert.Equal(t, 7, doc.ChunkCount)
}

func TestSetStatus_UnknownDocument(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.SetStatus(context.Background(), 999, model.StatusFailed, nil)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestList_FiltersAndOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := register(t, repo, "a.pdf", "h-a", "protocols")
	b := register(t, repo, "b.pdf", "h-b", "protocols")
	c := register(t, repo, "c.pdf", "h-c", "memory")
	zero := 0
	require.NoError(t, repo.SetStatus(ctx, b, model.StatusFailed, &zero))

	all, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint{c, b, a}, ids(all))

	protocols, err := repo.List(ctx, ListFilter{Domain: "protocols"})
	require.NoError(t, err)
	assert.Equal(t, []uint{b, a}, ids(protocols))

	failed, err := repo.List(ctx, ListFilter{Domain: "protocols", Status: model.StatusFailed})
	require.NoError(t, err)
	assert.Equal(t, []uint{b}, ids(failed))

	none, err := repo.List(ctx, ListFilter{Domain: "memory", Status: model.StatusFailed})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestFindByHash(t *testing.T) {
	repo := newTestRepo(t)
	id := register(t, repo, "sata.pdf", "hash-sata", "protocols")

	doc, err := repo.FindByHash(context.Background(), "hash-sata")
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)

	_, err = repo.FindByHash(context.Background(), "hash-missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestFindBatchByIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	a := register(t, repo, "a.pdf", "h-a", "protocols")
	b := register(t, repo, "b.pdf", "h-b", "protocols")

	docs, err := repo.FindBatchByIDs(ctx, []uint{a, b, 404})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	empty, err := repo.FindBatchByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProcessingLog(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := register(t, repo, "a.pdf", "h-a", "protocols")

	require.NoError(t, repo.AppendLog(ctx, &model.ProcessingLog{DocumentID: id, Operation: "register", Status: "success"}))
	require.NoError(t, repo.AppendLog(ctx, &model.ProcessingLog{DocumentID: id, Operation: "index", Status: "failed", Details: "boom"}))

	logs, err := repo.Logs(ctx, id)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "register", logs[0].Operation)
	assert.Equal(t, "boom", logs[1].Details)
}

func TestCatalogError_Unwraps(t *testing.T) {
	inner := errors.New("disk full")
	err := catalogErr("register", inner)

	var ce *CatalogError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "register", ce.Op)
	assert.ErrorIs(t, err, inner)
}

func ids(docs []model.Document) []uint {
	out := make([]uint, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
