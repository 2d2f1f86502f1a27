package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FocuswithJustin/reqifnorm/core/flatten"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func storedReport(id string, started time.Time) *Report {
	rep := &Report{
		RunID:     id,
		Root:      "/corpus",
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		Results: []*FileResult{
			{
				File: "a.reqif", Source: "vendor", SizeKB: 1.5, Success: true,
				RequirementsCount: 2, LinksCount: 1, ParseTimeMS: 3.25, Fingerprint: "abc123",
				SampleRequirement: &flatten.Requirement{
					ID: "H-1", OriginID: "O-1", Name: "Braking",
					Attributes: map[string]any{"ReqIF.ForeignID": "REQ-1"},
				},
			},
			{
				File: "b.xml", Source: "vendor", SizeKB: 0.2, ParseTimeMS: 0.5,
				Error: CategoryInvalidRoot, ErrorLevel: LevelParser, Fingerprint: "def456",
			},
		},
	}
	rep.Tally()
	return rep
}

func TestStoreSaveAndLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rep := storedReport("run-1", started)

	require.NoError(t, s.Save(ctx, rep))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "/corpus", runs[0].Root)
	assert.True(t, started.Equal(runs[0].StartedAt))
	assert.Equal(t, 1500*time.Millisecond, runs[0].Duration)
	assert.Equal(t, rep.Summary, runs[0].Summary)

	results, err := s.Results(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, results, 2)

	a := results[0]
	assert.Equal(t, "a.reqif", a.File)
	assert.True(t, a.Success)
	assert.Equal(t, 2, a.RequirementsCount)
	assert.Equal(t, 3.25, a.ParseTimeMS)
	assert.Empty(t, a.Error)
	require.NotNil(t, a.SampleRequirement)
	assert.Equal(t, "H-1", a.SampleRequirement.ID)
	assert.Equal(t, "REQ-1", a.SampleRequirement.Attributes["ReqIF.ForeignID"])

	b := results[1]
	assert.False(t, b.Success)
	assert.Equal(t, LevelParser, b.ErrorLevel)
	assert.Equal(t, CategoryInvalidRoot, b.Error)
	assert.Nil(t, b.SampleRequirement)
}

func TestStoreRunsNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, storedReport("old", base)))
	require.NoError(t, s.Save(ctx, storedReport("new", base.Add(time.Hour))))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)

	id, err := s.SeenBefore(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "new", id)

	id, err = s.SeenBefore(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestStoreDuplicateRunRollsBack(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rep := storedReport("dup", time.Now())

	require.NoError(t, s.Save(ctx, rep))
	require.Error(t, s.Save(ctx, rep))

	results, err := s.Results(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, results, 2, "failed save leaves the first run intact")
}

func TestStoreRoundTripFromRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rep, err := (&Runner{}).Run(ctx, corpus(t))
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, rep))

	results, err := s.Results(ctx, rep.RunID)
	require.NoError(t, err)
	require.Len(t, results, len(rep.Results))
	for i, r := range results {
		assert.Equal(t, rep.Results[i].File, r.File)
		assert.Equal(t, rep.Results[i].Fingerprint, r.Fingerprint)
		assert.Equal(t, rep.Results[i].Error, r.Error)
	}
}

func TestOpenStoreReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, storedReport("run-1", time.Now())))
	require.NoError(t, s.Close())

	ro, err := OpenStoreReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()

	runs, err := ro.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Error(t, ro.Save(ctx, storedReport("run-2", time.Now())), "read-only store rejects writes")

	_, err = OpenStoreReadOnly(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}
