package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-knowledge-go/internal/chunker"
	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/internal/pipeline"
	"mcp-knowledge-go/internal/repository"
	"mcp-knowledge-go/internal/vectorstore"
	"mcp-knowledge-go/internal/vectorstore/memory"
	"mcp-knowledge-go/pkg/embedding"
	"mcp-knowledge-go/pkg/events"
	"mcp-knowledge-go/pkg/storage"
	"mcp-knowledge-go/pkg/tasks"
	"mcp-knowledge-go/pkg/workerpool"
)

type stack struct {
	dir     string
	repo    repository.DocumentRepository
	adapter *vectorstore.Adapter
	bus     *events.Broker
	pool    *workerpool.Pool
	ingest  IngestService
	query   QueryService
}

func newStack(t *testing.T) *stack {
	t.Helper()
	repo := newTestRepo(t)
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	require.NoError(t, err)
	adapter := vectorstore.NewAdapter(memory.New("protocols_knowledge"), embedding.NewHashingClient(256))
	bus := events.NewBroker(8)
	pool := workerpool.New(2, 8)
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	processor := pipeline.NewProcessor(store, chunker.New(nil), adapter, repo, bus)
	return &stack{
		dir:     dir,
		repo:    repo,
		adapter: adapter,
		bus:     bus,
		pool:    pool,
		ingest:  NewIngestService(store, repo, pipeline.NewPoolDispatcher(pool, processor), "protocols"),
		query:   NewQueryService(adapter, repo, config.DefaultCategories),
	}
}

func waitProcessed(t *testing.T, sub *events.Subscription, id uint) events.DocumentProcessed {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-sub.C():
			if e.Document.DocumentID == id {
				return e.Document
			}
		case <-timeout:
			t.Fatalf("document %d was not processed", id)
		}
	}
}

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i%40)
	}
	return strings.Join(parts, " ")
}

func TestIngest_ProcessingThenSearchable(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)
	sub, err := st.bus.Subscribe()
	require.NoError(t, err)

	// 一份约 200 词的文档，外加一份无关文档
	target := words("thunderbolt", 200)
	out, err := st.ingest.Ingest(ctx, UploadRequest{FileName: "tb.txt", Content: []byte(target), Tags: "thunderbolt, usb4", Description: "TB spec"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessing, out.Status)
	assert.Equal(t, "tb.txt", out.FileName)
	require.NotZero(t, out.DocumentID)

	assert.Equal(t, "completed", waitProcessed(t, sub, out.DocumentID).Status)

	noise, err := st.ingest.Ingest(ctx, UploadRequest{FileName: "hdmi.txt", Content: []byte(words("hdmi", 200))})
	require.NoError(t, err)
	waitProcessed(t, sub, noise.DocumentID)

	doc, err := st.repo.Get(ctx, out.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, doc.Status)
	assert.Equal(t, 1, doc.ChunkCount)
	assert.Equal(t, []string{"thunderbolt", "usb4"}, doc.TagList())
	assert.Equal(t, "TB spec", doc.MetadataMap()["description"])
	assert.Equal(t, "protocols", doc.Domain)

	results := st.query.Search(ctx, SearchRequest{Query: words("thunderbolt", 10), Limit: 1})
	require.Len(t, results, 1)
	id, ok := results[0].DocumentID()
	require.True(t, ok)
	assert.Equal(t, out.DocumentID, id)

	filtered := st.query.Search(ctx, SearchRequest{Query: words("thunderbolt", 10), Category: "thunderbolt", Limit: 2, PostFilter: true})
	require.NotEmpty(t, filtered)
	for _, r := range filtered {
		assert.Equal(t, "tb.txt", r.FileName())
	}
}

func TestIngest_Duplicate(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)
	content := []byte("DisplayPort 2.1 raises UHBR20 to 80 Gbps.")

	first, err := st.ingest.Ingest(ctx, UploadRequest{FileName: "dp.txt", Content: content})
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessing, first.Status)

	second, err := st.ingest.Ingest(ctx, UploadRequest{FileName: "dp-copy.txt", Content: content})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Status)
	assert.Equal(t, "Document already exists", second.Error)

	docs, err := st.repo.List(ctx, repository.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	require.NoError(t, filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, filepath.Base(path))
		}
		return err
	}))
	return files
}

func TestIngest_DuplicateIsNotStored(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)
	content := []byte("HDMI 2.1 Fixed Rate Link reaches 48 Gbps.")

	_, err := st.ingest.Ingest(ctx, UploadRequest{FileName: "hdmi.txt", Content: content})
	require.NoError(t, err)
	out, err := st.ingest.Ingest(ctx, UploadRequest{FileName: "hdmi-renamed.txt", Content: content})
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, out.Status)

	assert.Equal(t, []string{"hdmi.txt"}, storedFiles(t, st.dir))
}

// lateRepo 第一次 FindByHash 报告不存在，模拟并发上传时检查之后才被别人登记。
type lateRepo struct {
	repository.DocumentRepository
	missed bool
}

func (r *lateRepo) FindByHash(ctx context.Context, hash string) (*model.Document, error) {
	if !r.missed {
		r.missed = true
		return nil, repository.ErrDocumentNotFound
	}
	return r.DocumentRepository.FindByHash(ctx, hash)
}

func TestIngest_ConcurrentDuplicateRemovesObject(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	require.NoError(t, err)
	content := []byte("Thunderbolt 5 offers 120 Gbps with bandwidth boost.")

	first := NewIngestService(store, repo, rejectingDispatcher{}, "protocols")
	_, err = first.Ingest(ctx, UploadRequest{FileName: "tb5.txt", Content: content})
	require.Error(t, err)

	late := NewIngestService(store, &lateRepo{DocumentRepository: repo}, rejectingDispatcher{}, "protocols")
	out, err := late.Ingest(ctx, UploadRequest{FileName: "tb5-copy.txt", Content: content})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out.Status)
	assert.Equal(t, []string{"tb5.txt"}, storedFiles(t, dir))

	// 同名同内容时对象与已登记文档共用，不能删除
	again := NewIngestService(store, &lateRepo{DocumentRepository: repo}, rejectingDispatcher{}, "protocols")
	out, err = again.Ingest(ctx, UploadRequest{FileName: "tb5.txt", Content: content})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out.Status)
	assert.Equal(t, []string{"tb5.txt"}, storedFiles(t, dir))
}

type rejectingDispatcher struct{}

func (rejectingDispatcher) Dispatch(context.Context, tasks.DocumentTask) error {
	return workerpool.ErrQueueFull
}

func TestIngest_QueueFullMarksFailed(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	svc := NewIngestService(store, repo, rejectingDispatcher{}, "protocols")

	out, err := svc.Ingest(ctx, UploadRequest{FileName: "ddr5.md", Content: []byte("DDR5 introduces on-die ECC.")})
	assert.ErrorIs(t, err, workerpool.ErrQueueFull)
	assert.Equal(t, OutcomeFailed, out.Status)
	require.NotZero(t, out.DocumentID)

	doc, err := repo.Get(ctx, out.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, doc.Status)

	logs, err := repo.Logs(ctx, out.DocumentID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "failed", logs[1].Status)
}

func TestIngestFile(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)
	sub, err := st.bus.Subscribe()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sata.md")
	require.NoError(t, os.WriteFile(path, []byte("SATA III tops out at 6 Gb/s.\n\nAHCI is the host interface."), 0o644))

	out, err := st.ingest.IngestFile(ctx, path, "sata")
	require.NoError(t, err)
	assert.Equal(t, "sata.md", out.FileName)
	assert.Equal(t, 2, waitProcessed(t, sub, out.DocumentID).ChunkCount)

	_, err = st.ingest.IngestFile(ctx, filepath.Join(t.TempDir(), "missing.md"), "")
	assert.Error(t, err)
}
