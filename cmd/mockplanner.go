package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orangehq/orange-agent/internal/planner/devstub"
	"github.com/orangehq/orange-agent/pkg/observability"
)

var mockPlannerAddr string

var mockPlannerCmd = &cobra.Command{
	Use:   "mock-planner",
	Short: "Serve a deterministic in-process planning service",
	Long: `Serves the planning-service HTTP contract with canned, keyword-driven
plans so the rest of the pipeline can be exercised without a live model.
Run with --no-sidecar on the run command to point at it.`,
	RunE: runMockPlanner,
}

func init() {
	mockPlannerCmd.Flags().StringVar(&mockPlannerAddr, "addr", "127.0.0.1:7789", "listen address")
	rootCmd.AddCommand(mockPlannerCmd)
}

func runMockPlanner(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	server := &http.Server{
		Addr:    mockPlannerAddr,
		Handler: devstub.NewServer(logger).Router(),
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("Mock planner listening", zap.String("addr", mockPlannerAddr))
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mock planner: %w", err)
		}
		return nil
	case <-cmd.Context().Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mock planner shutdown: %w", err)
	}
	logger.Info("Mock planner stopped")
	return nil
}
