package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-knowledge-go/internal/service"
)

type recordingIngest struct {
	paths []string
	tags  []string
}

func (r *recordingIngest) Ingest(context.Context, service.UploadRequest) (service.IngestOutcome, error) {
	return service.IngestOutcome{}, errors.New("not used")
}

func (r *recordingIngest) IngestFile(_ context.Context, path string, tags string) (service.IngestOutcome, error) {
	r.paths = append(r.paths, filepath.Base(path))
	r.tags = append(r.tags, tags)
	switch filepath.Base(path) {
	case "dup.txt":
		return service.IngestOutcome{Status: service.OutcomeDuplicate}, nil
	case "broken.md":
		return service.IngestOutcome{Status: service.OutcomeFailed}, errors.New("catalog down")
	}
	return service.IngestOutcome{Status: service.OutcomeProcessing, DocumentID: 1}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSeedDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pcie.txt"), "PCIe 6.0 base specification")
	writeFile(t, filepath.Join(dir, "nested", "usb4.md"), "USB4 v2 overview")
	writeFile(t, filepath.Join(dir, "dup.txt"), "already ingested")
	writeFile(t, filepath.Join(dir, "broken.md"), "unreadable")
	writeFile(t, filepath.Join(dir, "diagram.png"), "not text")

	ingest := &recordingIngest{}
	stats := seedDirTagged(context.Background(), dir, "seed", ingest)

	assert.Equal(t, seedStats{accepted: 2, duplicate: 1, failed: 1, skipped: 1}, stats)
	sort.Strings(ingest.paths)
	assert.Equal(t, []string{"broken.md", "dup.txt", "pcie.txt", "usb4.md"}, ingest.paths)
	for _, tag := range ingest.tags {
		assert.Equal(t, "seed", tag)
	}
}

func TestSeedDir_MissingDirectory(t *testing.T) {
	ingest := &recordingIngest{}
	stats := seedDir(context.Background(), filepath.Join(t.TempDir(), "absent"), ingest)
	assert.Equal(t, seedStats{}, stats)
	assert.Empty(t, ingest.paths)
}

func TestSeedDir_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "ethernet 800G")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ingest := &recordingIngest{}
	seedDir(ctx, dir, ingest)
	assert.Empty(t, ingest.paths)
}

func TestTokenCommand(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgFile, "auth:\n  jwt_secret: test-secret\n  token_expire_hours: 1\n")

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"token", "--config", cfgFile, "--subject", "desktop"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Regexp(t, `^[\w-]+\.[\w-]+\.[\w-]+\n$`, buf.String())
}
