// Command axiom runs the Axiom backend headless: commands in on stdin,
// notifications out on stdout. Terminal UIs drive the same service facade
// through the Command/Notification surface instead of stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandev/axiom/internal/common/config"
	"github.com/kandev/axiom/internal/common/logger"
	"github.com/kandev/axiom/internal/events"
	"github.com/kandev/axiom/internal/service"
	"github.com/kandev/axiom/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal("failed to resolve working directory", zap.Error(err))
	}

	svc, err := service.New(cfg, cwd, log)
	if err != nil {
		log.Fatal("failed to create service", zap.Error(err))
	}

	if cfg.Watcher.Enabled {
		w, err := watcher.New(cwd, svc.Bus(), log)
		if err != nil {
			log.Warn("file watcher disabled", zap.Error(err))
		} else {
			defer func() { _ = w.Close() }()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Event loop: drain the bus into notifications.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				_ = svc.Send(service.Shutdown{})
				return nil
			default:
				svc.ProcessEventsTimeout(100 * time.Millisecond)
			}
		}
	})

	// Notification printer.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case n := <-svc.Notifications():
				printNotification(n)
			}
		}
	})

	// Housekeeping tick.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Agents.CleanupIntervalDuration())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				_ = svc.Bus().TrySend(events.Tick{})
			}
		}
	})

	// Stdin command driver.
	g.Go(func() error {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" || line == "/exit" {
				stop()
				return nil
			}
			if err := svc.Send(service.ProcessInput{Text: line}); err != nil {
				log.WithError(err).Error("command failed")
			}
		}
		stop()
		return scanner.Err()
	})

	log.Info("axiom started", zap.String("cwd", cwd))
	if err := g.Wait(); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
}

func printNotification(n service.Notification) {
	switch n := n.(type) {
	case service.AgentSpawned:
		fmt.Printf("[spawned] %s %s (%s)\n", n.ID, n.Name, n.Type)
	case service.AgentStatusChanged:
		fmt.Printf("[status] %s %s\n", n.ID, n.Status)
	case service.AgentOutput:
		fmt.Print(n.Chunk)
	case service.PtyOutput:
		os.Stdout.Write(n.Data)
	case service.PtyExited:
		fmt.Printf("[pty-exit] %s code=%d\n", n.ID, n.ExitCode)
	case service.FileLoaded:
		fmt.Printf("[file] loaded %s (%d bytes)\n", n.Path, len(n.Content))
	case service.FileModified:
		fmt.Printf("[file] modified %s\n", n.Path)
	case service.FileList:
		fmt.Printf("[files] %s (%d entries)\n", n.Path, len(n.Entries))
	case service.Info:
		fmt.Printf("[info] %s\n", n.Message)
	case service.Error:
		fmt.Printf("[error] %s\n", n.Message)
	}
}
