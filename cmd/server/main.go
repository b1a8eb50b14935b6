// Command server runs the MiniChat relay.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"go.uber.org/zap"

	"github.com/Tyrowin/minichat/internal/logging"
	"github.com/Tyrowin/minichat/internal/server"
)

func main() {
	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting MiniChat server",
		zap.String("port", cfg.Port),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Int("history_limit", cfg.HistoryLimit),
		zap.Int("replay_limit", cfg.ReplayLimit),
		zap.Int64("max_upload_bytes", cfg.MaxUploadBytes),
		zap.String("upload_dir", cfg.UploadDir))

	chat, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("create server", zap.Error(err))
	}

	httpServer := server.CreateServer(cfg.Port, chat.Handler())

	go func() {
		if err := server.StartServer(httpServer, logger); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"minichat": func(ctx context.Context) error {
				logger.Info("graceful shutdown initiated")
				deadline, ok := ctx.Deadline()
				timeout := cfg.ShutdownTimeout
				if ok {
					timeout = max(0, time.Until(deadline))
				}
				if err := server.ShutdownServer(httpServer, timeout, logger); err != nil {
					logger.Warn("HTTP shutdown incomplete", zap.Error(err))
				}
				return chat.Close(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Info("server exited", zap.Int("code", exitCode))
	_ = logger.Sync()
	os.Exit(exitCode)
}
