package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nni-keeper/internal/config"
	"nni-keeper/internal/logging"
	"nni-keeper/internal/metrics"
	"nni-keeper/internal/model"
	"nni-keeper/internal/repository"
	"nni-keeper/internal/status"
)

var (
	ErrAlreadyWatching = errors.New("run is already being watched")
	ErrNotWatching     = errors.New("run is not being watched")
	ErrInvalidRequest  = errors.New("invalid watch request")
	ErrShuttingDown    = errors.New("supervisor is shutting down")
)

// WatchRequest 启动一次监控的参数，零值取配置默认值
type WatchRequest struct {
	RunID          string
	ExperimentName string
	Experimenter   string
	Version        string
	PollInterval   time.Duration
	StopOnComplete *bool
	TopCnt         int
	Metric         string
}

func (r *WatchRequest) applyDefaults(cfg config.WatcherConfig) {
	if r.PollInterval == 0 {
		r.PollInterval = cfg.PollInterval
	}
	if r.TopCnt == 0 {
		r.TopCnt = cfg.TopCnt
	}
	if r.Metric == "" {
		r.Metric = cfg.EvaluationCriteria
	}
	if r.StopOnComplete == nil {
		v := cfg.StopOnComplete
		r.StopOnComplete = &v
	}
}

func (r *WatchRequest) validate() error {
	switch {
	case r.RunID == "":
		return fmt.Errorf("%w: run id is required", ErrInvalidRequest)
	case r.ExperimentName == "":
		return fmt.Errorf("%w: experiment name is required", ErrInvalidRequest)
	case r.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidRequest)
	case r.TopCnt < 1:
		return fmt.Errorf("%w: %w", ErrInvalidRequest, repository.ErrInvalidTopCnt)
	case !model.ValidMetric(r.Metric):
		return fmt.Errorf("%w: %w: %q", ErrInvalidRequest, repository.ErrUnknownMetric, r.Metric)
	}
	return nil
}

// Supervisor 管理所有后台 watcher
//
// watcher 运行在 Supervisor 自己的根 context 下，与发起请求的 context 无关；
// 调用方只能通过 Stop 发出取消信号，在两次轮询之间生效。
// 没有超时：一直不结束也不消失的实验会被永久轮询，需要人工 Stop。
type Supervisor struct {
	poller   *Poller
	repo     Repository
	promoter *Promoter
	store    status.Store
	cfg      config.WatcherConfig
	log      *logging.Logger
	now      func() time.Time

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool
}

func NewSupervisor(poller *Poller, repo Repository, promoter *Promoter, store status.Store, cfg config.WatcherConfig, log *logging.Logger) *Supervisor {
	root, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		poller:   poller,
		repo:     repo,
		promoter: promoter,
		store:    store,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		root:     root,
		cancel:   cancel,
		running:  make(map[string]context.CancelFunc),
	}
}

// Start 登记并在后台启动 watcher，立即返回
func (s *Supervisor) Start(req WatchRequest) error {
	w, ctx, err := s.register(s.root, req)
	if err != nil {
		return err
	}
	go s.run(ctx, w)
	return nil
}

// Run 在当前 goroutine 中执行完整的监控流程，返回最终状态
func (s *Supervisor) Run(ctx context.Context, req WatchRequest) (model.WatchStatus, error) {
	w, wctx, err := s.register(ctx, req)
	if err != nil {
		return model.WatchStatus{}, err
	}
	s.run(wctx, w)
	return w.st, nil
}

func (s *Supervisor) register(parent context.Context, req WatchRequest) (*watch, context.Context, error) {
	req.applyDefaults(s.cfg)
	if err := req.validate(); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, ErrShuttingDown
	}
	if _, ok := s.running[req.RunID]; ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyWatching, req.RunID)
	}

	ctx, cancel := context.WithCancel(parent)
	s.running[req.RunID] = cancel
	s.wg.Add(1)

	now := s.now()
	w := &watch{
		req: req,
		log: s.log.WithRunID(req.RunID).WithExperiment(req.ExperimentName),
		st: model.WatchStatus{
			RunID:          req.RunID,
			ExperimentName: req.ExperimentName,
			Experimenter:   req.Experimenter,
			Version:        req.Version,
			Metric:         req.Metric,
			TopCnt:         req.TopCnt,
			State:          model.StateRunning,
			StartedAt:      now,
			UpdatedAt:      now,
		},
	}
	s.save(ctx, w)
	return w, ctx, nil
}

func (s *Supervisor) run(ctx context.Context, w *watch) {
	metrics.WatchersActive.Inc()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("watcher panicked", "panic", fmt.Sprint(r))
			w.st.Error = fmt.Sprintf("panic: %v", r)
			if !w.st.State.Terminal() {
				w.st.State = model.StateStopped
			}
			s.finish(ctx, w)
		}

		metrics.WatchersActive.Dec()
		s.mu.Lock()
		if cancel, ok := s.running[w.req.RunID]; ok {
			cancel()
			delete(s.running, w.req.RunID)
		}
		s.mu.Unlock()
		s.wg.Done()
	}()

	w.log.Info("watch started",
		"interval", w.req.PollInterval.String(), "stop_on_complete", *w.req.StopOnComplete,
		"top_cnt", w.req.TopCnt, "metric", w.req.Metric)

	state := model.StateDone
	if *w.req.StopOnComplete {
		state = s.loop(ctx, w)
	}
	w.st.State = state
	metrics.WatchersFinished.WithLabelValues(string(state)).Inc()
	s.save(ctx, w)

	// 消失或被取消的实验不晋升，暂存保留供人工处理
	if state == model.StateDone {
		// 实验已结束，取消信号不再中断最后的暂存刷新和晋升
		pctx := context.WithoutCancel(ctx)
		s.refreshStaging(pctx, w)

		res, err := s.promoter.Promote(pctx, PromoteRequest{
			ExperimentName: w.req.ExperimentName,
			Experimenter:   w.req.Experimenter,
			Version:        w.req.Version,
			Metric:         w.req.Metric,
		})
		if res != nil {
			w.st.Outcome = res.Outcome
		}
		if err != nil {
			w.st.Error = err.Error()
		}
	}

	s.finish(ctx, w)
	w.log.Info("watch finished", "state", w.st.State, "ticks", w.st.Ticks, "outcome", w.st.Outcome)
}

func (s *Supervisor) finish(ctx context.Context, w *watch) {
	now := s.now()
	w.st.FinishedAt = &now
	s.save(ctx, w)
}

func (s *Supervisor) save(ctx context.Context, w *watch) {
	w.st.UpdatedAt = s.now()
	if err := s.store.Save(context.WithoutCancel(ctx), w.st); err != nil {
		w.log.WithError(err).Warn("save watch status failed")
	}
}

// Stop 取消指定 watcher，已在运行的轮询或晋升会先完成
func (s *Supervisor) Stop(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.running[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotWatching, runID)
	}
	cancel()
	return nil
}

func (s *Supervisor) Status(ctx context.Context, runID string) (*model.WatchStatus, error) {
	return s.store.Get(ctx, runID)
}

func (s *Supervisor) List(ctx context.Context) ([]model.WatchStatus, error) {
	return s.store.List(ctx)
}

// Active 当前仍在运行的 watcher 数
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown 取消所有 watcher 并等待退出
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for watchers: %w", ctx.Err())
	}
}
