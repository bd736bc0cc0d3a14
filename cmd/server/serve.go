package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/internal/handler"
	"mcp-knowledge-go/internal/protocols"
	"mcp-knowledge-go/pkg/log"
	"mcp-knowledge-go/pkg/token"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server (JSON-RPC, SSE, upload and search routes)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. 初始化配置与日志
	config.Init(configPath)
	cfg := config.Conf
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 2. 装配组件
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	// 3. 启动时导入种子目录，已导入的文件会作为重复跳过
	seedCtx, cancelSeed := context.WithCancel(context.Background())
	defer cancelSeed()
	if cfg.Ingest.SeedDir != "" {
		go seedDir(seedCtx, cfg.Ingest.SeedDir, a.ingest)
	}

	// 4. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	var jwtManager *token.JWTManager
	if cfg.Auth.JWTSecret != "" {
		jwtManager = token.NewJWTManager(cfg.Auth.JWTSecret, tokenIssuer, cfg.Auth.TokenExpireHours)
		log.Info("接口鉴权已开启")
	}
	r := handler.NewRouter(handler.Handlers{
		Server: handler.NewServerHandler(handler.ServerInfo{
			Name:       cfg.Knowledge.ServerName,
			Domain:     cfg.Knowledge.Domain,
			Version:    cfg.Knowledge.Version,
			Categories: protocols.CategoryNames(cfg.Knowledge.CategoryList()),
		}, a.adapter),
		Upload:   handler.NewUploadHandler(a.ingest),
		Document: handler.NewDocumentHandler(a.documents),
		Search:   handler.NewSearchHandler(a.query),
		MCP:      handler.NewMCPHandler(a.dispatcher, a.bus, time.Duration(cfg.Server.SSEHeartbeatSeconds)*time.Second),
		Events:   handler.NewEventsHandler(a.bus),
	}, jwtManager)

	// 5. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}
	go func() {
		log.Infof("服务启动于 %s, MCP 端点: /mcp, SSE 端点: /mcp/sse", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")
	cancelSeed()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 事件总线先关闭，SSE 与 WebSocket 连接随之结束，Shutdown 才不会被长连接拖住
	if err := a.bus.Close(); err != nil {
		log.Warnf("关闭事件总线失败: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	if err := a.close(ctx); err != nil {
		log.Errorf("释放资源失败: %v", err)
	}
	log.Info("服务已优雅关闭")
	return nil
}
