package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dgallion1/papergest/internal/acquire"
	"github.com/dgallion1/papergest/internal/api"
	"github.com/dgallion1/papergest/internal/exam"
	"github.com/dgallion1/papergest/internal/pipeline"
	"github.com/spf13/cobra"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}

			log := root.jsonLogger(cmd.OutOrStdout())
			ctx := cmd.Context()

			a := newApp(cfg, log)
			st, err := a.openStore(ctx)
			if err != nil {
				a.Close(context.Background())
				return err
			}

			exec := func(ctx context.Context, run *pipeline.Run) (*exam.Result, error) {
				run.SetStatus(pipeline.RunAcquiring, "acquiring")
				return a.acquireAndExtract(ctx, run.Request, func(acquire.Report) {
					run.SetStatus(pipeline.RunRunning, "extracting")
				}, run.AddDocument)
			}
			orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
				Workers:   cfg.WorkerCount,
				QueueSize: cfg.MaxQueueSize,
				RunTTL:    cfg.RunTTL,
			}, exec, log)
			orch.Start(context.Background())

			srv := api.NewServer(orch, a.pipeline(nil), st, a.stats, log, cfg)
			httpServer := &http.Server{
				Addr:         ":" + cfg.Port,
				Handler:      srv,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 120 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			// drained is closed once in-flight handlers have returned.
			drained := make(chan struct{})
			go func() {
				defer close(drained)
				<-ctx.Done()
				log.Info("shutting down...")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					log.Warn("http shutdown", "error", err)
				}
			}()

			log.Info("starting papergest", "port", cfg.Port, "store", cfg.StoreKind, "enhance", a.enhancer != nil)
			err = httpServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				<-drained
				err = nil
			}
			orch.Stop()
			a.Close(context.Background())
			return err
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides $PORT)")
	return cmd
}
