package analyze

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/poll"
	"convoy/internal/testutil"
	"convoy/internal/volume"
)

func fastWait() poll.Config {
	return poll.Config{Interval: time.Millisecond, Deadline: 100 * time.Millisecond}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, Tokenize("Hello, World! 42"))
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("!!! ..."))
}

func TestJaccard(t *testing.T) {
	t.Run("identical sets", func(t *testing.T) {
		assert.InDelta(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a", "a"}), 1e-9)
	})

	t.Run("disjoint sets", func(t *testing.T) {
		assert.InDelta(t, 0.0, Jaccard([]string{"a"}, []string{"b"}), 1e-9)
	})

	t.Run("partial overlap", func(t *testing.T) {
		// {a,b,c} vs {b,c,d}: intersection 2, union 4.
		got := Jaccard([]string{"a", "b", "c"}, []string{"b", "c", "d"})
		assert.InDelta(t, 0.5, got, 1e-9)
	})

	t.Run("both empty", func(t *testing.T) {
		assert.Zero(t, Jaccard(nil, nil))
	})
}

func TestNgrams(t *testing.T) {
	words := []string{"the", "quick", "brown", "fox"}

	assert.Equal(t, []string{"the quick", "quick brown", "brown fox"}, Ngrams(words, 2))
	assert.Equal(t, []string{"the quick brown", "quick brown fox"}, Ngrams(words, 3))
	assert.Nil(t, Ngrams([]string{"one"}, 2))
}

func TestTopCountsOrderingDeterministic(t *testing.T) {
	tokens := []string{"b", "a", "b", "a", "c", "c", "c"}

	ranked := topCounts(tokens, 10)
	require.Len(t, ranked, 3)
	assert.Equal(t, tokenCount{token: "c", count: 3}, ranked[0])
	// Equal counts break ties lexicographically.
	assert.Equal(t, tokenCount{token: "a", count: 2}, ranked[1])
	assert.Equal(t, tokenCount{token: "b", count: 2}, ranked[2])
}

func TestBuildReportEmptyCorpus(t *testing.T) {
	report := buildReport(nil, 0)

	assert.Equal(t, 0, report.DocumentsProcessed)
	assert.Equal(t, 0, report.TotalWords)
	assert.NotNil(t, report.Top100Words)
	assert.Empty(t, report.Top100Words)
	assert.NotNil(t, report.DocumentSimilarity)
	assert.Zero(t, report.Readability.ComplexityScore)
}

func TestBuildReport(t *testing.T) {
	docs := []document{
		{name: "page_001.json", words: Tokenize("the cat sat on the mat")},
		{name: "page_002.json", words: Tokenize("the dog sat on the rug")},
	}
	// Two sentences total across the corpus.
	report := buildReport(docs, 2)

	assert.Equal(t, 2, report.DocumentsProcessed)
	assert.Equal(t, 12, report.TotalWords)
	assert.Equal(t, 7, report.UniqueWords)

	require.NotEmpty(t, report.Top100Words)
	top := report.Top100Words[0]
	assert.Equal(t, "the", top.Word)
	assert.Equal(t, 4, top.Count)
	assert.InDelta(t, 4.0/12.0, top.Frequency, 1e-6)

	require.Len(t, report.DocumentSimilarity, 1)
	sim := report.DocumentSimilarity[0]
	assert.Equal(t, "page_001.json", sim.Doc1)
	assert.Equal(t, "page_002.json", sim.Doc2)
	// Shared {the, sat, on} over union of 7 unique words.
	assert.InDelta(t, 3.0/7.0, sim.Similarity, 1e-6)

	require.NotEmpty(t, report.TopBigrams)
	assert.NotEmpty(t, report.TopTrigrams)

	// 12 words over 2 sentences.
	assert.InDelta(t, 6.0, report.Readability.AvgSentenceLength, 1e-6)
	assert.InDelta(t, 34.0/12.0, report.Readability.AvgWordLength, 1e-6)
	assert.InDelta(t, report.Readability.AvgSentenceLength*report.Readability.AvgWordLength,
		report.Readability.ComplexityScore, 1e-4)
}

func TestBuildReportNgramsStayWithinDocuments(t *testing.T) {
	docs := []document{
		{name: "a.json", words: []string{"alpha", "omega"}},
		{name: "b.json", words: []string{"bridge", "span"}},
	}

	report := buildReport(docs, 2)

	var bigrams []string
	for _, bc := range report.TopBigrams {
		bigrams = append(bigrams, bc.Bigram)
	}
	assert.ElementsMatch(t, []string{"alpha omega", "bridge span"}, bigrams)
	assert.NotContains(t, bigrams, "omega bridge", "bigrams must not cross document boundaries")
	assert.Empty(t, report.TopTrigrams, "no document has three words")
}

func TestBuildReportDeterministic(t *testing.T) {
	docs := []document{
		{name: "a.json", words: Tokenize("alpha beta gamma alpha")},
		{name: "b.json", words: Tokenize("beta gamma delta")},
	}

	first := buildReport(docs, 2)
	second := buildReport(docs, 2)
	assert.Equal(t, first, second)
}

func TestRunWritesReportThenSentinel(t *testing.T) {
	vol := testutil.MemVolume(t)
	testutil.CompleteStage(t, vol, volume.StageProcess)

	doc := volume.ProcessedDocument{SourceFile: "page_001.html", Text: "Hello world. Hello again."}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	testutil.WriteArtifact(t, vol, "processed/page_001.json", data)

	require.NoError(t, Run(context.Background(), Options{Volume: vol, Wait: fastWait()}))

	reportData, err := vol.ReadFile(volume.FinalReportFile)
	require.NoError(t, err)
	var report volume.FinalReport
	require.NoError(t, json.Unmarshal(reportData, &report))
	assert.Equal(t, 1, report.DocumentsProcessed)
	assert.Equal(t, 4, report.TotalWords)
	assert.NotEmpty(t, report.ProcessingTimestamp)

	statusData, err := vol.ReadFile("status/analysis_complete.json")
	require.NoError(t, err)
	var status volume.AnalysisStatus
	require.NoError(t, json.Unmarshal(statusData, &status))
	assert.Equal(t, 1, status.DocumentsAnalyzed)
}

func TestRunEmptyCorpusStillCompletes(t *testing.T) {
	vol := testutil.MemVolume(t)
	testutil.CompleteStage(t, vol, volume.StageProcess)

	require.NoError(t, Run(context.Background(), Options{Volume: vol, Wait: fastWait()}))

	ok, err := vol.Exists(volume.FinalReportFile)
	require.NoError(t, err)
	assert.True(t, ok, "an empty corpus still produces a valid report")

	ok, err = vol.Exists("status/analysis_complete.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunWaitsForUpstream(t *testing.T) {
	vol := testutil.MemVolume(t)

	err := Run(context.Background(), Options{
		Volume: vol,
		Wait:   poll.Config{Interval: time.Millisecond, Deadline: 5 * time.Millisecond},
	})
	require.Error(t, err)

	ok, existsErr := vol.Exists("status/analysis_complete.json")
	require.NoError(t, existsErr)
	assert.False(t, ok, "no terminal sentinel may appear on failure")
}
