package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/arisa/internal/module"
	"github.com/danielolaszy/arisa/pkg/models"
)

var testPollerConfig = PollerConfig{
	Projects: []string{"MC", "MCPE"},
	Interval: 10 * time.Second,
	Lookback: 5 * time.Minute,
	Workers:  3,
}

func newTestPoller(source *fakeSource, stub *stubModule) (*Poller, *Cache, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(t0)
	cache := NewCache(clock, testTTL)
	dispatcher := NewDispatcher("arisa", []Entry{{Name: "Stub", Module: stub, Whitelist: []string{"MC", "MCPE"}}})
	return NewPoller(source, dispatcher, cache, clock, testPollerConfig), cache, clock
}

func TestBuildJQL(t *testing.T) {
	assert.Equal(t,
		`project in (MC, MCPE) AND resolution in (Unresolved, "Awaiting Response") AND updated >= -5m`,
		BuildJQL([]string{"MC", "MCPE"}, 5*time.Minute))
	assert.Equal(t,
		`project in (MC) AND resolution in (Unresolved, "Awaiting Response") AND updated >= -1m`,
		BuildJQL([]string{"MC"}, 10*time.Second))
}

func TestRunCycleCachesTicketsWithoutSuccess(t *testing.T) {
	source := newFakeSource()
	source.addIssue("MC-1", "MC")
	source.addIssue("MC-2", "MC")
	source.addIssue("MC-3", "MC")

	stub := newStubModule()
	stub.outcomes["MC-1"] = module.Success()
	stub.outcomes["MC-2"] = module.Failed(errors.New("tracker unavailable"))

	poller, cache, _ := newTestPoller(source, stub)

	require.NoError(t, poller.RunCycle(context.Background()))

	assert.ElementsMatch(t, []string{"MC-1", "MC-2", "MC-3"}, stub.keys())
	assert.False(t, cache.Contains("MC-1"), "a successful module keeps the ticket live")
	assert.True(t, cache.Contains("MC-2"))
	assert.True(t, cache.Contains("MC-3"))
}

func TestRunCycleSkipsCachedTickets(t *testing.T) {
	source := newFakeSource()
	source.addIssue("MC-1", "MC")
	source.addIssue("MC-2", "MC")

	stub := newStubModule()
	poller, cache, clock := newTestPoller(source, stub)
	cache.Add("MC-1")

	require.NoError(t, poller.RunCycle(context.Background()))
	assert.Equal(t, []string{"MC-2"}, stub.keys())

	clock.Advance(testTTL)
	require.NoError(t, poller.RunCycle(context.Background()))
	assert.ElementsMatch(t, []string{"MC-2", "MC-1", "MC-2"}, stub.keys(), "expired entries are processed again")
}

func TestRunCycleSearchFailure(t *testing.T) {
	source := newFakeSource()
	source.addIssue("MC-1", "MC")
	source.searchErr = errors.New("jira unavailable")

	stub := newStubModule()
	poller, _, clock := newTestPoller(source, stub)
	initial := poller.LastRun()

	clock.Advance(time.Minute)
	err := poller.RunCycle(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "jira unavailable")
	assert.Equal(t, 0, stub.calls())
	assert.Equal(t, initial, poller.LastRun(), "lastRun only advances after a successful search")
}

func TestRunCycleAdvancesLastRun(t *testing.T) {
	source := newFakeSource()
	source.addIssue("MC-1", "MC")

	stub := newStubModule()
	poller, _, clock := newTestPoller(source, stub)
	assert.Equal(t, t0.Add(-5*time.Minute), poller.LastRun())

	require.NoError(t, poller.RunCycle(context.Background()))
	assert.Equal(t, t0, poller.LastRun())

	clock.Advance(10 * time.Second)
	stub.outcomes["MC-1"] = module.Success()
	require.NoError(t, poller.RunCycle(context.Background()))

	require.Len(t, stub.requests, 1, "MC-1 was cached after the first cycle")
	assert.Equal(t, t0.Add(-5*time.Minute), stub.requests[0].LastRun)
	assert.Equal(t, t0.Add(10*time.Second), poller.LastRun())
	assert.Contains(t, source.jqls[0], "project in (MC, MCPE)")
}

func TestRunCycleRescansChangesMadeWhileCached(t *testing.T) {
	source := newFakeSource()
	source.addIssue("MC-1", "MC")

	stub := newStubModule()
	poller, cache, clock := newTestPoller(source, stub)

	require.NoError(t, poller.RunCycle(context.Background()))
	require.True(t, cache.Contains("MC-1"))

	// a comment lands while the ticket is skipped
	commentedAt := t0.Add(20 * time.Second)

	for i := 0; i < 60; i++ {
		clock.Advance(testPollerConfig.Interval)
		require.NoError(t, poller.RunCycle(context.Background()))
	}

	require.Len(t, stub.requests, 3, "the ticket is processed again each time its entry expires")
	assert.Equal(t, t0, stub.requests[1].LastRun)
	assert.True(t, stub.requests[1].LastRun.Before(commentedAt))
	assert.True(t, poller.LastRun().After(commentedAt), "the global lastRun alone would skip the comment")
	assert.Equal(t, t0.Add(testTTL), stub.requests[2].LastRun)
}

func TestRunCycleActionedTicketDropsLapsedRecord(t *testing.T) {
	source := newFakeSource()
	source.addIssue("MC-1", "MC")

	stub := newStubModule()
	poller, cache, clock := newTestPoller(source, stub)

	require.NoError(t, poller.RunCycle(context.Background()))
	clock.Advance(testTTL)
	stub.outcomes["MC-1"] = module.Success()
	require.NoError(t, poller.RunCycle(context.Background()))

	assert.Equal(t, t0, stub.requests[1].LastRun)
	_, ok := cache.Lapsed("MC-1")
	assert.False(t, ok)

	clock.Advance(testPollerConfig.Interval)
	require.NoError(t, poller.RunCycle(context.Background()))
	assert.Equal(t, t0.Add(testTTL), stub.requests[2].LastRun)
}

func TestRunCycleFetchFailureIsNotCached(t *testing.T) {
	source := newFakeSource()
	source.addIssue("MC-1", "MC")
	source.addIssue("MC-2", "MC")
	source.fetchErr["MC-1"] = errors.New("issue does not exist")

	stub := newStubModule()
	poller, cache, _ := newTestPoller(source, stub)

	require.NoError(t, poller.RunCycle(context.Background()))

	assert.Equal(t, []string{"MC-2"}, stub.keys())
	assert.False(t, cache.Contains("MC-1"))
	assert.True(t, cache.Contains("MC-2"))
}

func TestRunCycleFetchesProjectsOncePerCycle(t *testing.T) {
	source := newFakeSource()
	for _, key := range []string{"MC-1", "MC-2", "MC-3", "MC-4"} {
		source.addIssue(key, "MC")
	}
	source.addIssue("MCPE-1", "MCPE")
	source.projects["MC"] = &models.Project{Key: "MC"}

	stub := newStubModule()
	poller, _, _ := newTestPoller(source, stub)

	require.NoError(t, poller.RunCycle(context.Background()))

	assert.Equal(t, 2, source.projectCalls)
	for _, req := range stub.requests {
		if req.Issue.Project == "MC" {
			assert.Same(t, source.projects["MC"], req.Project)
		}
	}
}

func TestRunCycleProjectFailureStillDispatches(t *testing.T) {
	source := newFakeSource()
	source.addIssue("MC-1", "MC")
	source.projectErr = errors.New("forbidden")

	stub := newStubModule()
	poller, _, _ := newTestPoller(source, stub)

	require.NoError(t, poller.RunCycle(context.Background()))

	require.Len(t, stub.requests, 1)
	assert.Nil(t, stub.requests[0].Project)
}

func TestProcessTicketDoesNotTouchCache(t *testing.T) {
	source := newFakeSource()
	source.addIssue("MC-1", "MC")

	stub := newStubModule()
	poller, cache, _ := newTestPoller(source, stub)
	since := t0.Add(-time.Hour)

	outcomes, err := poller.ProcessTicket(context.Background(), "MC-1", since)

	require.NoError(t, err)
	assert.Equal(t, module.KindNoActionNeeded, outcomes["Stub"].Kind())
	assert.Equal(t, since, stub.requests[0].LastRun)
	assert.Equal(t, 0, cache.Len())
}

func TestLogOutcomes(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	succeeded := LogOutcomes(log, "MC-1", []string{"Attachment", "Privacy", "Crash"}, map[string]module.Outcome{
		"Attachment": module.NoActionNeeded(),
		"Privacy":    module.FailedAfter(1, errors.New("restrict failed")),
		"Crash":      module.Success(),
	})

	assert.True(t, succeeded)
	out := buf.String()
	assert.Contains(t, out, "[RESPONSE] [MC-1] [Attachment] Operation not needed")
	assert.Contains(t, out, "[RESPONSE] [MC-1] [Privacy] Failed")
	assert.Contains(t, out, "restrict failed")
	assert.Contains(t, out, "applied=1")
	assert.Contains(t, out, "[RESPONSE] [MC-1] [Crash] Successful")

	buf.Reset()
	assert.False(t, LogOutcomes(log, "MC-2", []string{"Attachment"}, map[string]module.Outcome{}))
	assert.Empty(t, buf.String(), "a quiet ticket logs no responses")
}

func TestRunPollsEveryInterval(t *testing.T) {
	source := newFakeSource()
	source.searched = make(chan struct{}, 4)
	poller, _, clock := newTestPoller(source, newStubModule())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	waitFor(t, source.searched)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(testPollerConfig.Interval)
	waitFor(t, source.searched)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poll loop did not stop")
	}
}

func TestRunContinuesAfterSearchFailure(t *testing.T) {
	source := newFakeSource()
	source.searched = make(chan struct{}, 4)
	source.searchErr = errors.New("jira unavailable")
	poller, _, clock := newTestPoller(source, newStubModule())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	waitFor(t, source.searched)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(testPollerConfig.Interval)
	waitFor(t, source.searched)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a search")
	}
}
