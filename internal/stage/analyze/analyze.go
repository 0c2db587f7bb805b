// Package analyze implements the final pipeline stage: it waits for the
// process stage's sentinel, aggregates every processed document into a
// corpus-level report, writes analysis/final_report.json, and only then
// publishes the terminal sentinel the coordinator is waiting on.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"convoy/internal/logging"
	"convoy/internal/poll"
	"convoy/internal/stage"
	"convoy/internal/volume"
)

var wordRe = regexp.MustCompile(`\w+`)

const (
	topWords  = 100
	topNgrams = 50
)

// Options configures the analyze stage.
type Options struct {
	Volume *volume.Volume
	Logger *logging.Logger

	// Wait bounds the wait on the process sentinel.
	Wait poll.Config
}

// document is one processed record reduced to its token stream.
type document struct {
	name  string
	words []string
}

// Run executes the analyze stage to completion.
func Run(ctx context.Context, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = logging.NopLogger()
	}
	log = log.WithStage(string(volume.StageAnalyze))

	log.Info("waiting for upstream sentinel", "upstream", string(volume.StageProcess))
	if err := stage.WaitUpstream(ctx, opts.Volume, volume.StageProcess, opts.Wait); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	docs, sentences, err := loadCorpus(opts.Volume, log)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	log.Info("corpus loaded", "documents", len(docs))

	report := buildReport(docs, sentences)
	report.ProcessingTimestamp = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("analyze: failed to encode report: %w", err)
	}
	if err := opts.Volume.WriteFileAtomic(volume.FinalReportFile, data); err != nil {
		return fmt.Errorf("analyze: failed to store report: %w", err)
	}

	// Terminal sentinel strictly after the report is durable; the
	// coordinator treats its existence as "results are ready".
	status := volume.AnalysisStatus{
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		DocumentsAnalyzed: len(docs),
	}
	if err := stage.WriteSentinel(opts.Volume, volume.StageAnalyze, status); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	log.Info("stage complete", "total_words", report.TotalWords)
	return nil
}

// loadCorpus reads every processed document, returning the tokenized
// docs and the corpus-wide sentence count. Unreadable files are skipped.
func loadCorpus(vol *volume.Volume, log *logging.Logger) ([]document, int, error) {
	paths, err := afero.Glob(vol.Fs(), vol.Path(path.Join(volume.ProcessedDir, "*.json")))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list processed documents: %w", err)
	}
	sort.Strings(paths)

	var docs []document
	sentences := 0
	for _, p := range paths {
		data, err := afero.ReadFile(vol.Fs(), p)
		if err != nil {
			log.Warn("skipping unreadable document", "file", path.Base(p), "error", err)
			continue
		}
		var doc volume.ProcessedDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			log.Warn("skipping unparseable document", "file", path.Base(p), "error", err)
			continue
		}
		docs = append(docs, document{name: path.Base(p), words: Tokenize(doc.Text)})
		sentences += countSentences(doc.Text)
	}
	return docs, sentences, nil
}

// buildReport computes the corpus-level statistics. An empty corpus
// produces a valid report with zeroed metrics.
func buildReport(docs []document, totalSentences int) volume.FinalReport {
	report := volume.FinalReport{
		DocumentsProcessed: len(docs),
		Top100Words:        []volume.WordFrequency{},
		DocumentSimilarity: []volume.DocumentSimilarity{},
		TopBigrams:         []volume.BigramCount{},
		TopTrigrams:        []volume.TrigramCount{},
	}

	// N-grams accumulate per document so they never span a document
	// boundary.
	var allWords, allBigrams, allTrigrams []string
	totalWordChars := 0
	for _, d := range docs {
		allWords = append(allWords, d.words...)
		allBigrams = append(allBigrams, Ngrams(d.words, 2)...)
		allTrigrams = append(allTrigrams, Ngrams(d.words, 3)...)
		for _, w := range d.words {
			totalWordChars += len(w)
		}
	}

	totalWords := len(allWords)
	report.TotalWords = totalWords
	report.UniqueWords = countUnique(allWords)
	if totalWords == 0 {
		return report
	}

	for _, wc := range topCounts(allWords, topWords) {
		report.Top100Words = append(report.Top100Words, volume.WordFrequency{
			Word:      wc.token,
			Count:     wc.count,
			Frequency: round6(float64(wc.count) / float64(totalWords)),
		})
	}

	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			report.DocumentSimilarity = append(report.DocumentSimilarity, volume.DocumentSimilarity{
				Doc1:       docs[i].name,
				Doc2:       docs[j].name,
				Similarity: round6(Jaccard(docs[i].words, docs[j].words)),
			})
		}
	}

	for _, bc := range topCounts(allBigrams, topNgrams) {
		report.TopBigrams = append(report.TopBigrams, volume.BigramCount{Bigram: bc.token, Count: bc.count})
	}
	for _, tc := range topCounts(allTrigrams, topNgrams) {
		report.TopTrigrams = append(report.TopTrigrams, volume.TrigramCount{Trigram: tc.token, Count: tc.count})
	}

	avgSentenceLength := float64(totalWords)
	if totalSentences > 0 {
		avgSentenceLength = float64(totalWords) / float64(totalSentences)
	}
	avgWordLength := float64(totalWordChars) / float64(totalWords)
	report.Readability = volume.Readability{
		AvgSentenceLength: round6(avgSentenceLength),
		AvgWordLength:     round6(avgWordLength),
		ComplexityScore:   round6(avgSentenceLength * avgWordLength),
	}
	return report
}

// Tokenize lowercases and splits text on word characters.
func Tokenize(text string) []string {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	if words == nil {
		return []string{}
	}
	return words
}

// Jaccard computes set-intersection over set-union of two token streams.
// Empty union yields 0.
func Jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)

	intersection := 0
	union := len(setB)
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Ngrams returns contiguous n-grams joined by a single space.
func Ngrams(words []string, n int) []string {
	if len(words) < n {
		return nil
	}
	grams := make([]string, 0, len(words)-n+1)
	for i := 0; i+n <= len(words); i++ {
		grams = append(grams, strings.Join(words[i:i+n], " "))
	}
	return grams
}

// tokenCount pairs a token with its corpus count.
type tokenCount struct {
	token string
	count int
}

// topCounts returns the limit most frequent tokens, count descending,
// ties broken lexicographically so the report is deterministic.
func topCounts(tokens []string, limit int) []tokenCount {
	counts := make(map[string]int)
	for _, t := range tokens {
		counts[t]++
	}

	ranked := make([]tokenCount, 0, len(counts))
	for t, c := range counts {
		ranked = append(ranked, tokenCount{token: t, count: c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].token < ranked[j].token
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func countUnique(words []string) int {
	return len(toSet(words))
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func countSentences(text string) int {
	n := 0
	for _, s := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
