package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nni-keeper/internal/db"
	"nni-keeper/internal/service"

	"github.com/spf13/cobra"
)

// newWatchCmd 前台监控单个实验，Ctrl-C 在两次轮询之间生效
func newWatchCmd() *cobra.Command {
	var (
		req            service.WatchRequest
		interval       time.Duration
		stopOnComplete bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch one experiment in the foreground until it finishes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)

			if err := db.InitDB(cfg); err != nil {
				return fmt.Errorf("初始化数据库失败: %w", err)
			}
			svc, err := service.NewServiceContext(cfg, db.DB)
			if err != nil {
				return fmt.Errorf("初始化服务失败: %w", err)
			}
			defer svc.Close(cmd.Context())

			req.PollInterval = interval
			if cmd.Flags().Changed("stop-on-complete") {
				req.StopOnComplete = &stopOnComplete
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := svc.Supervisor.Run(ctx, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.RunID, "run-id", "", "NNI experiment id")
	f.StringVar(&req.ExperimentName, "experiment", "", "experiment name used by the trials")
	f.StringVar(&req.Experimenter, "experimenter", "", "experimenter recorded on promotion")
	f.StringVar(&req.Version, "model-version", "", "model version recorded on promotion")
	f.DurationVar(&interval, "interval", 0, "poll interval (default from config)")
	f.BoolVar(&stopOnComplete, "stop-on-complete", true, "poll until done; false promotes immediately")
	f.IntVar(&req.TopCnt, "top-cnt", 0, "staged candidates to keep (default from config)")
	f.StringVar(&req.Metric, "metric", "", "evaluation criteria (default from config)")
	_ = cmd.MarkFlagRequired("run-id")
	_ = cmd.MarkFlagRequired("experiment")
	return cmd
}
