package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mcp-knowledge-go/internal/chunker"
	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/internal/service"
	"mcp-knowledge-go/pkg/log"
)

var seedTags string

var seedCmd = &cobra.Command{
	Use:   "seed [dir]",
	Short: "Ingest every supported file under a directory",
	Long: `Walk a directory and ingest each supported file through the upload path.
Files already in the catalog are skipped as duplicates. The command waits for
queued documents to finish processing before it exits.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedTags, "tags", "", "comma-separated tags applied to every file")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	config.Init(configPath)
	cfg := config.Conf
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	dir := cfg.Ingest.SeedDir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no seed directory: pass one as argument or set ingest.seed_dir")
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	stats := seedDirTagged(cmd.Context(), dir, seedTags, a.ingest)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout*10)
	defer cancel()
	if err := a.close(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "accepted: %d, duplicate: %d, failed: %d, skipped: %d\n",
		stats.accepted, stats.duplicate, stats.failed, stats.skipped)
	return nil
}

type seedStats struct {
	accepted, duplicate, failed, skipped int
}

// seedDir 扫描目录下文件并通过标准上传流程导入（幂等）。
func seedDir(ctx context.Context, dir string, ingest service.IngestService) seedStats {
	return seedDirTagged(ctx, dir, "", ingest)
}

func seedDirTagged(ctx context.Context, dir, tags string, ingest service.IngestService) seedStats {
	var stats seedStats
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("[Seed] 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return stats
	}

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		if !chunker.Supported(path) {
			log.Infof("[Seed] 不支持的格式，跳过: %s", path)
			stats.skipped++
			return nil
		}

		outcome, err := ingest.IngestFile(ctx, path, tags)
		switch {
		case err != nil:
			log.Warnf("[Seed] 导入失败: %s, err=%v", path, err)
			stats.failed++
		case outcome.Status == service.OutcomeDuplicate:
			log.Infof("[Seed] 已存在，跳过: %s", path)
			stats.duplicate++
		default:
			log.Infof("[Seed] 已投递处理: %s (document_id=%d)", path, outcome.DocumentID)
			stats.accepted++
		}
		return nil
	})
	if walkErr != nil {
		log.Warnf("[Seed] 遍历目录发生错误: %v", walkErr)
	}
	return stats
}
