package service

import (
	"context"

	"nni-keeper/internal/logging"
	"nni-keeper/internal/metrics"
	"nni-keeper/internal/nni"
)

// Poller 查询编排工具并解析出单个实验的状态
type Poller struct {
	client  nni.Client
	markers []string
	log     *logging.Logger
}

func NewPoller(client nni.Client, markers []string, log *logging.Logger) *Poller {
	return &Poller{client: client, markers: markers, log: log}
}

// Poll 查询失败按空列表处理（Unknown），不返回错误
func (p *Poller) Poll(ctx context.Context, runID string) nni.Observation {
	listing, err := p.client.List(ctx)
	if err != nil {
		p.log.WithRunID(runID).WithError(err).Warn("experiment list failed", "output", listing)
		listing = ""
	}

	obs := nni.Parse(listing, runID, p.markers)
	metrics.Polls.WithLabelValues(string(obs.Status)).Inc()
	return obs
}

// Stop 停止实验并记录命令输出
func (p *Poller) Stop(ctx context.Context, runID string) {
	log := p.log.WithRunID(runID)
	out, err := p.client.Stop(ctx, runID)
	switch {
	case err != nil:
		log.WithError(err).Error("stop experiment failed", "output", out)
	case nni.StopSucceeded(out):
		log.Info("experiment stopped", "output", out)
	default:
		log.Warn("stop output did not report success", "output", out)
	}
}
