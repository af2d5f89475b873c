package service

import (
	"context"
	"strings"
	"time"

	"nni-keeper/internal/logging"
	"nni-keeper/internal/metrics"
	"nni-keeper/internal/model"
	"nni-keeper/internal/nni"
)

// watch 单个实验的轮询上下文，只由所属 goroutine 修改
type watch struct {
	req WatchRequest
	st  model.WatchStatus
	log *logging.Logger
}

// loop 轮询直到实验结束、从列表中消失或被取消
func (s *Supervisor) loop(ctx context.Context, w *watch) model.WatchState {
	for {
		obs := s.poller.Poll(ctx, w.req.RunID)
		w.st.Ticks++
		if len(obs.Matches) > 0 {
			w.st.LastObservation = strings.Join(obs.Matches, "\n")
		}

		switch obs.Status {
		case nni.StatusDone:
			// 取消信号到达时也要把已结束的实验停掉
			s.poller.Stop(context.WithoutCancel(ctx), w.req.RunID)
			return model.StateDone

		case nni.StatusAbsent:
			w.log.Error("experiment vanished from listing", "listing", obs.Listing)
			return model.StateVanished

		case nni.StatusActive:
			s.refreshStaging(ctx, w)

		default:
			w.log.Warn("empty experiment listing, will poll again")
		}

		s.save(ctx, w)
		if !sleep(ctx, w.req.PollInterval) {
			w.log.Info("watch cancelled", "ticks", w.st.Ticks)
			return model.StateStopped
		}
	}
}

// refreshStaging 失败只记日志，下一轮再算
func (s *Supervisor) refreshStaging(ctx context.Context, w *watch) {
	var staged int
	err := withRetry(ctx, s.cfg.Retry, "refresh_staging", w.log, func(ctx context.Context) error {
		var err error
		staged, err = s.repo.RefreshStaging(ctx, w.req.ExperimentName, w.req.Metric, w.req.TopCnt)
		return err
	})
	if err != nil {
		metrics.StagingRefreshes.WithLabelValues("error").Inc()
		w.log.WithError(err).Error("refresh staging failed")
		return
	}
	metrics.StagingRefreshes.WithLabelValues("ok").Inc()
	w.st.Staged = staged
	w.log.Debug("staging refreshed", "staged", staged, "tick", w.st.Ticks)
}

// sleep 返回 false 表示等待期间被取消
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
