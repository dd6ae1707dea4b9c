package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smancode/sman-sub006/internal/agent"
	"github.com/smancode/sman-sub006/internal/config"
	"github.com/smancode/sman-sub006/internal/event"
	"github.com/smancode/sman-sub006/internal/llm"
	"github.com/smancode/sman-sub006/internal/logging"
	"github.com/smancode/sman-sub006/internal/session"
	"github.com/smancode/sman-sub006/internal/tool"
	"github.com/smancode/sman-sub006/internal/ws"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the assistant server",
	Long: `Start the websocket server IDE plugins connect to.

Configuration is read from ~/.sman/sman.json[c], the working directory
and SMAN_* environment variables; flags override the listen address.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir := serveDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHostname != "" {
		cfg.Server.Hostname = serveHostname
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logPretty {
		cfg.Log.Pretty = true
	}

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
	})
	logging.Info().Str("version", Version).Str("workDir", workDir).Msg("starting sman-agent")

	bus := event.NewBus()
	defer bus.Close()

	files := session.NewFileStore(cfg.Storage.Dir)
	store := session.NewStore(files, bus)
	pool := session.NewWorkerPool(cfg.Pool.Workers)

	registry := ws.NewRegistry(bus)
	forwarder := ws.NewForwarder(registry, cfg.Tools, bus)

	tools := tool.NewRegistry()
	todos := tool.NewTodoStore()
	if err := tools.Register(tool.NewTodoWriteTool(todos)); err != nil {
		return err
	}
	if err := tools.Register(tool.NewTodoReadTool(todos)); err != nil {
		return err
	}

	client := llm.NewHTTPClient(cfg.LLM.Endpoint, cfg.LLM.APIKey)
	subtasks := session.NewSubTaskExecutor(cfg.Pool.SubTaskWorkers)
	runner := agent.New(client, tools, forwarder, subtasks, cfg)

	coord := session.NewCoordinator(store, files, pool, runner, registry, bus)
	handler := ws.NewHandler(store, coord, registry, forwarder)
	srv := ws.NewServer(cfg.Server, handler)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting connections, let running rounds finish, then stop
	// the workers and close what is left.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("server shutdown")
	}
	if err := coord.Drain(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("rounds still running at shutdown")
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("worker pool shutdown")
	}
	registry.Shutdown()

	logging.Info().Msg("server stopped")
	return nil
}
