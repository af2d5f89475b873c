package service

import (
	"context"
	"testing"

	"nni-keeper/internal/logging"
	"nni-keeper/internal/nni"

	"github.com/stretchr/testify/assert"
)

func TestPoller_Poll(t *testing.T) {
	client := &fakeNNI{listings: []string{running(), "ERR", finished(), "Id: zzz999 Status: RUNNING"}}
	p := NewPoller(client, []string{"DONE"}, logging.Discard())
	ctx := context.Background()

	assert.Equal(t, nni.StatusActive, p.Poll(ctx, runID).Status)
	assert.Equal(t, nni.StatusUnknown, p.Poll(ctx, runID).Status)

	obs := p.Poll(ctx, runID)
	assert.Equal(t, nni.StatusDone, obs.Status)
	assert.Len(t, obs.Matches, 1)

	assert.Equal(t, nni.StatusAbsent, p.Poll(ctx, runID).Status)
}

func TestPoller_StopLogsOutput(t *testing.T) {
	client := &fakeNNI{stopOut: "ERROR: experiment not found"}
	p := NewPoller(client, nil, logging.Discard())

	p.Stop(context.Background(), runID)
	_, stops := client.counts()
	assert.Equal(t, []string{runID}, stops)
}
