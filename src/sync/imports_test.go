package sync

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/spendsync/src/api"
)

func newTestQueue(t *testing.T, remote *fakeRemote, drainMinInterval time.Duration) *ImportQueue {
	t.Helper()
	db := openTestDB(t)
	q, err := NewImportQueue(db, api.NewExpenseAPI(remote), t.TempDir(), drainMinInterval, 4*time.Second)
	require.NoError(t, err)
	return q
}

func TestQueueUploadsImmediately(t *testing.T) {
	remote := &fakeRemote{}
	q := newTestQueue(t, remote, 0)

	job, err := q.Queue(context.Background(), "marzo.csv", []byte("date,amount\n2024-03-01,-10\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, remote.importCalls)

	jobs, err := q.List()
	require.NoError(t, err)
	assert.Empty(t, jobs, "a confirmed upload leaves nothing queued")

	_, err = os.Stat(q.payloadPath(job.ID))
	assert.True(t, os.IsNotExist(err), "payload file removed after confirmed upload")
}

func TestFailedUploadStaysQueuedWithBackoff(t *testing.T) {
	remote := &fakeRemote{failImports: 3}
	q := newTestQueue(t, remote, 0)

	base := time.Now().UTC()
	clock := base
	q.now = func() time.Time { return clock }

	job, err := q.Queue(context.Background(), "marzo.csv", []byte("date,amount\n"))
	require.NoError(t, err, "queueing succeeds even when the immediate upload fails")
	assert.Equal(t, 1, remote.importCalls)
	assert.Equal(t, 1, job.Attempts, "the returned job reflects the failed immediate attempt")
	assert.True(t, job.NextAttemptAt.After(base))

	jobs, err := q.List()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.True(t, jobs[0].NextAttemptAt.After(base), "failed attempt schedules a future retry")

	_, err = os.Stat(q.payloadPath(job.ID))
	assert.NoError(t, err, "payload survives until upload is confirmed")

	// A drain before the scheduled time skips the job.
	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, 1, remote.importCalls)

	// Two more failing attempts, then success on the fourth.
	clock = clock.Add(time.Second)
	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, 2, remote.importCalls)

	clock = clock.Add(2 * time.Second)
	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, 3, remote.importCalls)

	clock = clock.Add(4 * time.Second)
	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, 4, remote.importCalls)

	jobs, err = q.List()
	require.NoError(t, err)
	assert.Empty(t, jobs)
	_, err = os.Stat(q.payloadPath(job.ID))
	assert.True(t, os.IsNotExist(err))
}

func TestRetryDelayDoublesUpToCap(t *testing.T) {
	q := &ImportQueue{initialBackoff: 500 * time.Millisecond, maxBackoff: 4 * time.Second}

	assert.Equal(t, 500*time.Millisecond, q.retryDelay(1))
	assert.Equal(t, time.Second, q.retryDelay(2))
	assert.Equal(t, 2*time.Second, q.retryDelay(3))
	assert.Equal(t, 4*time.Second, q.retryDelay(4))
	assert.Equal(t, 4*time.Second, q.retryDelay(5), "delay is capped, never unbounded")
}

func TestDrainThrottle(t *testing.T) {
	remote := &fakeRemote{failImports: 100}
	q := newTestQueue(t, remote, time.Hour)

	clock := time.Now().UTC()
	q.now = func() time.Time { return clock }

	_, err := q.Queue(context.Background(), "marzo.csv", []byte("date,amount\n"))
	require.NoError(t, err)
	require.Equal(t, 1, remote.importCalls)

	// Past the job's backoff window, but the burst token is spent after
	// one drain; the back-to-back drain is dropped.
	clock = clock.Add(time.Minute)
	require.NoError(t, q.Drain(context.Background()))
	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, 2, remote.importCalls, "flapping connectivity must not hammer the backend")
}

func TestOnlineNotifierSchedulesSync(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeRemote{})

	notifier := NewOnlineNotifier()
	engine.BindConnectivity(notifier)

	notifier.NotifyOnline()
	assert.Equal(t, 1, len(engine.trigger))

	notifier.NotifyOnline()
	assert.Equal(t, 1, len(engine.trigger), "repeat notifications coalesce")
}
