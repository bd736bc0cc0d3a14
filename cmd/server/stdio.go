package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/internal/mcpserver"
	"mcp-knowledge-go/pkg/log"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve the MCP tools over stdin/stdout",
	Long: `Serve the same tool table as POST /mcp over stdio, for desktop MCP clients.

stdout carries JSON-RPC, so logs go to stderr.`,
	RunE: runStdio,
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(cmd *cobra.Command, _ []string) error {
	config.Init(configPath)
	cfg := config.Conf
	log.InitStderr(cfg.Log.Level)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.close(closeCtx); err != nil {
			log.Errorf("释放资源失败: %v", err)
		}
	}()

	log.Infof("MCP stdio 服务启动, domain: %s", cfg.Knowledge.Domain)
	return mcpserver.RunStdio(ctx, a.dispatcher)
}
