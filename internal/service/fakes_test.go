package service

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"nni-keeper/internal/config"
	"nni-keeper/internal/db"
	"nni-keeper/internal/logging"
	"nni-keeper/internal/model"
	"nni-keeper/internal/nni"
	"nni-keeper/internal/repository"
	"nni-keeper/internal/status"

	"github.com/stretchr/testify/require"
)

// PROTO 2, BININT1 42, STOP
var validArtifact = base64.StdEncoding.EncodeToString([]byte("\x80\x02K*."))

var errStorage = errors.New("storage unavailable")

// fakeNNI 按顺序返回预设的列表输出，最后一条重复返回
// 列表项为 "ERR" 时模拟命令失败
type fakeNNI struct {
	mu       sync.Mutex
	listings []string
	lists    int
	stops    []string
	stopOut  string
}

func (f *fakeNNI) List(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.lists
	if i >= len(f.listings) {
		i = len(f.listings) - 1
	}
	f.lists++
	if i < 0 {
		return "", nil
	}
	if f.listings[i] == "ERR" {
		return "connection refused", errors.New("exit status 1")
	}
	return f.listings[i], nil
}

func (f *fakeNNI) Stop(_ context.Context, runID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, runID)
	if f.stopOut == "" {
		return "Stop experiment success!", nil
	}
	return f.stopOut, nil
}

func (f *fakeNNI) counts() (lists int, stops []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists, append([]string(nil), f.stops...)
}

// fakeRepo 记录调用并按需注入错误
type fakeRepo struct {
	mu sync.Mutex

	refreshes      int
	refreshErrs    []error
	panicOnRefresh bool

	best    *model.TempModel
	bestErr error

	promoteErrs []error
	promoted    []repository.Promotion
	outcome     model.PromotionOutcome

	purged   []string
	purgeErr error
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (r *fakeRepo) RefreshStaging(_ context.Context, _, _ string, topCnt int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicOnRefresh {
		panic("refresh exploded")
	}
	r.refreshes++
	if err := pop(&r.refreshErrs); err != nil {
		return 0, err
	}
	return topCnt, nil
}

func (r *fakeRepo) BestStaged(_ context.Context, _, _ string) (*model.TempModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.best, r.bestErr
}

func (r *fakeRepo) Promote(_ context.Context, p repository.Promotion) (model.PromotionOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promoted = append(r.promoted, p)
	if err := pop(&r.promoteErrs); err != nil {
		return model.OutcomeFailed, err
	}
	if r.outcome == "" {
		return model.OutcomeInserted, nil
	}
	return r.outcome, nil
}

func (r *fakeRepo) Purge(_ context.Context, experimentName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purged = append(r.purged, experimentName)
	return r.purgeErr
}

func (r *fakeRepo) snapshot() (refreshes, promotes int, purged []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes, len(r.promoted), append([]string(nil), r.purged...)
}

func testWatcherConfig() config.WatcherConfig {
	cfg := config.Default().Watcher
	cfg.PollInterval = time.Millisecond
	cfg.Retry = config.RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond}
	return cfg
}

func newTestSupervisor(t *testing.T, client nni.Client, repo Repository) (*Supervisor, status.Store) {
	t.Helper()
	cfg := testWatcherConfig()
	store := status.NewMemoryStore(0)
	poller := NewPoller(client, []string{"DONE"}, logging.Discard())
	promoter := NewPromoter(repo, cfg.Retry, logging.Discard())
	sup := NewSupervisor(poller, repo, promoter, store, cfg, logging.Discard())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	return sup, store
}

func boolPtr(v bool) *bool {
	return &v
}

// newSQLiteStore 内存 SQLite 上的真实存储
func newSQLiteStore(t *testing.T) *repository.Store {
	t.Helper()
	conn, err := db.Open(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return repository.NewStore(conn)
}

func addTrials(t *testing.T, store *repository.Store, valMAEs ...float64) {
	t.Helper()
	for _, v := range valMAEs {
		require.NoError(t, store.AddTrial(context.Background(), &model.TrialModel{
			ExperimentName: "exp1",
			ModelName:      "m1",
			ModelFile:      validArtifact,
			Metrics:        model.Metrics{ValMAE: v},
		}))
	}
}

// hookedStore 在读取最优暂存前执行回调
type hookedStore struct {
	*repository.Store
	beforeBest func()
}

func (h *hookedStore) BestStaged(ctx context.Context, experimentName, metric string) (*model.TempModel, error) {
	if h.beforeBest != nil {
		h.beforeBest()
	}
	return h.Store.BestStaged(ctx, experimentName, metric)
}

// onListing 在第 n 次列表查询时执行回调
type onListing struct {
	*fakeNNI
	n    int
	hook func()
}

func (o *onListing) List(ctx context.Context) (string, error) {
	lists, _ := o.counts()
	if lists+1 == o.n {
		o.hook()
	}
	return o.fakeNNI.List(ctx)
}
