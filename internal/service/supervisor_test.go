package service

import (
	"context"
	"testing"
	"time"

	"nni-keeper/internal/model"
	"nni-keeper/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runID = "abc123"

func running() string {
	return "Id: " + runID + "  Name: exp1  Status: RUNNING\nId: zzz999  Name: other  Status: RUNNING"
}

func finished() string {
	return "Id: " + runID + "  Name: exp1  Status: DONE\nId: zzz999  Name: other  Status: RUNNING"
}

func watchRequest() WatchRequest {
	return WatchRequest{
		RunID:          runID,
		ExperimentName: "exp1",
		Experimenter:   "alice",
		Version:        "v1",
	}
}

func TestSupervisor_DoneOnThirdTickPromotesOnce(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	addTrials(t, store, 0.9, 0.42, 0.7, 0.55)

	client := &fakeNNI{listings: []string{running(), running(), finished()}}
	sup, _ := newTestSupervisor(t, client, store)

	st, err := sup.Run(ctx, watchRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StateDone, st.State)
	assert.Equal(t, model.OutcomeInserted, st.Outcome)
	assert.Equal(t, 3, st.Ticks)
	assert.Equal(t, 3, st.Staged)
	assert.NotNil(t, st.FinishedAt)

	lists, stops := client.counts()
	assert.Equal(t, 3, lists)
	assert.Equal(t, []string{runID}, stops)

	meta, err := store.GetProduction(ctx, "m1")
	require.NoError(t, err)
	assert.InDelta(t, 0.42, meta.ValMAE, 1e-9)
	assert.Equal(t, "alice", meta.Experimenter)

	staged, err := store.ListStaged(ctx, "exp1", model.MetricValMAE)
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestSupervisor_VanishedSkipsStopAndPromotion(t *testing.T) {
	client := &fakeNNI{listings: []string{running(), "Id: zzz999  Name: other  Status: RUNNING"}}
	repo := &fakeRepo{}
	sup, _ := newTestSupervisor(t, client, repo)

	st, err := sup.Run(context.Background(), watchRequest())
	require.NoError(t, err)
	assert.Equal(t, model.StateVanished, st.State)
	assert.Empty(t, st.Outcome)

	_, stops := client.counts()
	assert.Empty(t, stops)

	refreshes, promotes, purged := repo.snapshot()
	assert.Equal(t, 1, refreshes)
	assert.Zero(t, promotes)
	assert.Empty(t, purged)
}

func TestSupervisor_EmptyListingIsTransient(t *testing.T) {
	client := &fakeNNI{listings: []string{"", "ERR", "   \n", finished()}}
	repo := &fakeRepo{best: &model.TempModel{ModelName: "m1", ModelFile: validArtifact}}
	sup, _ := newTestSupervisor(t, client, repo)

	st, err := sup.Run(context.Background(), watchRequest())
	require.NoError(t, err)
	assert.Equal(t, model.StateDone, st.State)
	assert.Equal(t, 4, st.Ticks)

	// 只有结束后的那一次刷新
	refreshes, promotes, purged := repo.snapshot()
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 1, promotes)
	assert.Equal(t, []string{"exp1"}, purged)
}

func TestSupervisor_RefreshFailureKeepsPolling(t *testing.T) {
	client := &fakeNNI{listings: []string{running(), running(), finished()}}
	repo := &fakeRepo{refreshErrs: []error{errStorage, errStorage, errStorage}}
	sup, _ := newTestSupervisor(t, client, repo)

	st, err := sup.Run(context.Background(), watchRequest())
	require.NoError(t, err)
	assert.Equal(t, model.StateDone, st.State)

	// 第一轮重试 3 次全部失败，第二轮和结束后的刷新成功
	refreshes, _, _ := repo.snapshot()
	assert.Equal(t, 5, refreshes)
	assert.Equal(t, 3, st.Staged)
}

func TestSupervisor_NoStopOnCompletePromotesImmediately(t *testing.T) {
	client := &fakeNNI{listings: []string{running()}}
	repo := &fakeRepo{best: &model.TempModel{ModelName: "m1", ModelFile: validArtifact}}
	sup, _ := newTestSupervisor(t, client, repo)

	req := watchRequest()
	req.StopOnComplete = boolPtr(false)
	st, err := sup.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, model.StateDone, st.State)
	assert.Equal(t, model.OutcomeInserted, st.Outcome)
	assert.Zero(t, st.Ticks)

	lists, stops := client.counts()
	assert.Zero(t, lists)
	assert.Empty(t, stops)

	refreshes, promotes, purged := repo.snapshot()
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 1, promotes)
	assert.Equal(t, []string{"exp1"}, purged)
}

func TestSupervisor_StopEndsWatchAtSleepBoundary(t *testing.T) {
	client := &fakeNNI{listings: []string{running()}}
	repo := &fakeRepo{}
	sup, store := newTestSupervisor(t, client, repo)

	req := watchRequest()
	req.PollInterval = time.Hour
	require.NoError(t, sup.Start(req))

	ctx := context.Background()
	require.Eventually(t, func() bool {
		st, err := store.Get(ctx, runID)
		return err == nil && st.Ticks == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Stop(runID))

	require.Eventually(t, func() bool {
		st, err := store.Get(ctx, runID)
		return err == nil && st.FinishedAt != nil
	}, 2*time.Second, 5*time.Millisecond)

	st, err := sup.Status(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StateStopped, st.State)
	assert.Empty(t, st.Outcome)

	_, stops := client.counts()
	assert.Empty(t, stops)
	_, promotes, purged := repo.snapshot()
	assert.Zero(t, promotes)
	assert.Empty(t, purged)

	assert.Eventually(t, func() bool { return sup.Active() == 0 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, sup.Stop(runID), ErrNotWatching)
}

func TestSupervisor_StartRejectsDuplicateAndInvalid(t *testing.T) {
	client := &fakeNNI{listings: []string{running()}}
	sup, _ := newTestSupervisor(t, client, &fakeRepo{})

	req := watchRequest()
	req.PollInterval = time.Hour
	require.NoError(t, sup.Start(req))
	assert.ErrorIs(t, sup.Start(req), ErrAlreadyWatching)

	bad := watchRequest()
	bad.RunID = "other"
	bad.Metric = "accuracy"
	err := sup.Start(bad)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, repository.ErrUnknownMetric)

	bad = watchRequest()
	bad.RunID = "other"
	bad.TopCnt = -1
	assert.ErrorIs(t, sup.Start(bad), repository.ErrInvalidTopCnt)

	assert.ErrorIs(t, sup.Start(WatchRequest{ExperimentName: "exp1"}), ErrInvalidRequest)
}

func TestSupervisor_AppliesDefaults(t *testing.T) {
	client := &fakeNNI{listings: []string{running()}}
	sup, store := newTestSupervisor(t, client, &fakeRepo{})

	req := watchRequest()
	req.PollInterval = time.Hour
	require.NoError(t, sup.Start(req))

	st, err := store.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, model.MetricValMAE, st.Metric)
	assert.Equal(t, 3, st.TopCnt)
}

func TestSupervisor_RecoversPanic(t *testing.T) {
	client := &fakeNNI{listings: []string{running()}}
	repo := &fakeRepo{panicOnRefresh: true}
	sup, store := newTestSupervisor(t, client, repo)

	require.NoError(t, sup.Start(watchRequest()))

	ctx := context.Background()
	require.Eventually(t, func() bool {
		st, err := store.Get(ctx, runID)
		return err == nil && st.FinishedAt != nil
	}, 2*time.Second, 5*time.Millisecond)

	st, err := store.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StateStopped, st.State)
	assert.Contains(t, st.Error, "refresh exploded")

	assert.Eventually(t, func() bool { return sup.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSupervisor_ShutdownCancelsWatchers(t *testing.T) {
	client := &fakeNNI{listings: []string{running()}}
	sup, store := newTestSupervisor(t, client, &fakeRepo{})

	for _, id := range []string{"r1", "r2"} {
		req := watchRequest()
		req.RunID = id
		req.PollInterval = time.Hour
		require.NoError(t, sup.Start(req))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, st := range list {
		assert.Equal(t, model.StateStopped, st.State)
	}

	assert.ErrorIs(t, sup.Start(watchRequest()), ErrShuttingDown)
}
