package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/extract"
	"convoy/internal/pipeline"
	"convoy/internal/poll"
	"convoy/internal/runner"
	"convoy/internal/stage/analyze"
	"convoy/internal/stage/fetch"
	"convoy/internal/stage/process"
	"convoy/internal/testutil"
	"convoy/internal/volume"
)

// inProcessRunner runs the real stage implementations as goroutines over
// the shared volume instead of spawning child processes, so a full run
// can be exercised hermetically.
type inProcessRunner struct {
	vol    *volume.Volume
	client *http.Client
	wait   poll.Config

	wg sync.WaitGroup

	mu     sync.Mutex
	failed []volume.Stage
}

func (r *inProcessRunner) Start(ctx context.Context, c runner.Command) error {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		var err error
		switch c.Stage {
		case volume.StageFetch:
			err = fetch.Run(ctx, fetch.Options{Volume: r.vol, Client: r.client, Wait: r.wait})
		case volume.StageProcess:
			err = process.Run(ctx, process.Options{Volume: r.vol, Wait: r.wait})
		case volume.StageAnalyze:
			err = analyze.Run(ctx, analyze.Options{Volume: r.vol, Wait: r.wait})
		}
		if err != nil {
			r.mu.Lock()
			r.failed = append(r.failed, c.Stage)
			r.mu.Unlock()
		}
	}()
	return nil
}

func (r *inProcessRunner) StopAll() { r.wg.Wait() }

func (r *inProcessRunner) Diagnostics() []runner.Diagnostic {
	var diags []runner.Diagnostic
	for _, s := range r.Crashed() {
		diags = append(diags, runner.Diagnostic{Stage: s, ExitCode: 1})
	}
	return diags
}

func (r *inProcessRunner) Crashed() []volume.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]volume.Stage(nil), r.failed...)
}

func stageCommands() []runner.Command {
	var cmds []runner.Command
	for _, s := range volume.Stages() {
		cmds = append(cmds, runner.Command{Stage: s, Argv: []string{"in-process", string(s)}})
	}
	return cmds
}

func TestFullPipelineRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>The quick brown fox jumps. It jumps again.</p></body></html>"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>The slow brown turtle rests. It rests again.</p></body></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	vol := testutil.MemVolume(t)
	destFs := afero.NewMemMapFs()
	wait := poll.Config{Interval: 5 * time.Millisecond, Deadline: 5 * time.Second}

	stages := &inProcessRunner{vol: vol, client: srv.Client(), wait: wait}
	ctrl, err := pipeline.NewController(pipeline.Options{
		Volume:        vol,
		DestDir:       "results",
		DestFs:        destFs,
		StageCommands: stageCommands(),
		Wait:          wait,
		Waiter:        poll.NewIntervalWaiter(vol, wait),
		Runner:        stages,
	})
	require.NoError(t, err)

	run := ctrl.Execute(context.Background(), []string{srv.URL + "/a", srv.URL + "/b"})
	require.NoError(t, run.Err)
	require.True(t, run.Succeeded(), "state = %s", run.State)
	assert.Empty(t, stages.Crashed())

	// Every manifest artifact was present, none skipped.
	assert.Len(t, run.Extraction.Copied, 4)
	assert.Empty(t, run.Extraction.Skipped)

	data, err := afero.ReadFile(destFs, "results/final_report.json")
	require.NoError(t, err)

	var report volume.FinalReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 2, report.DocumentsProcessed)
	assert.Greater(t, report.TotalWords, 0)
	assert.Greater(t, report.UniqueWords, 0)
	require.Len(t, report.DocumentSimilarity, 1, "one pair of documents")
	sim := report.DocumentSimilarity[0].Similarity
	assert.Greater(t, sim, 0.0, "documents share words")
	assert.Less(t, sim, 1.0, "documents are not identical")

	for _, s := range volume.Stages() {
		ok, err := afero.Exists(destFs, "results/status/"+s.SentinelName())
		require.NoError(t, err)
		assert.True(t, ok, "status copy for %s", s)
	}

	// Teardown scrubbed the volume back to an empty layout.
	stale, err := vol.StaleSentinels()
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestFullPipelineRunMissingReportFails(t *testing.T) {
	vol := testutil.MemVolume(t)
	destFs := afero.NewMemMapFs()
	wait := poll.Config{Interval: 5 * time.Millisecond, Deadline: 200 * time.Millisecond}

	// No stage processes at all: sentinels appear only via direct writes,
	// simulating a lying terminal sentinel with no report behind it.
	ctrl, err := pipeline.NewController(pipeline.Options{
		Volume:  vol,
		DestDir: "results",
		DestFs:  destFs,
		Wait:    wait,
		Waiter:  poll.NewIntervalWaiter(vol, wait),
		Runner:  &inProcessRunner{vol: vol, wait: wait},
	})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		testutil.CompletePipelineWithoutReport(t, vol)
	}()

	run := ctrl.Execute(context.Background(), []string{"https://example.com/only"})
	require.Error(t, run.Err)
	assert.Equal(t, pipeline.StateFailed, run.State)

	ok, err := afero.Exists(destFs, "results/final_report.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

// Default manifest and config-derived manifest agree; a regression here
// would silently change what `convoy run` extracts.
func TestDefaultManifestMatchesConfigDerived(t *testing.T) {
	derived := extract.Manifest(
		[]string{volume.FinalReportFile},
		[]string{
			"status/fetch_complete.json",
			"status/process_complete.json",
			"status/analysis_complete.json",
		},
	)
	assert.Equal(t, extract.DefaultManifest(), derived)
}
