// Package process implements the second pipeline stage: it waits for the
// fetch stage's sentinel, strips each raw HTML document down to text,
// computes per-document statistics, and writes structured records plus
// its own completion sentinel back to the shared volume.
package process

import (
	"context"
	"encoding/json"
	"fmt"
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

var (
	scriptRe    = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe     = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	hrefRe      = regexp.MustCompile(`(?i)href=['"]?([^'"\s>]+)`)
	srcRe       = regexp.MustCompile(`(?i)src=['"]?([^'"\s>]+)`)
	tagRe       = regexp.MustCompile(`<[^>]+>`)
	spaceRe     = regexp.MustCompile(`\s+`)
	wordRe      = regexp.MustCompile(`\w+`)
	sentenceRe  = regexp.MustCompile(`[.!?]+`)
	paragraphRe = regexp.MustCompile(`\s{2,}|\n{2,}`)
)

// Options configures the process stage.
type Options struct {
	Volume *volume.Volume
	Logger *logging.Logger

	// Wait bounds the wait on the fetch sentinel.
	Wait poll.Config
}

// Run executes the process stage to completion.
func Run(ctx context.Context, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = logging.NopLogger()
	}
	log = log.WithStage(string(volume.StageProcess))

	log.Info("waiting for upstream sentinel", "upstream", string(volume.StageFetch))
	if err := stage.WaitUpstream(ctx, opts.Volume, volume.StageFetch, opts.Wait); err != nil {
		return fmt.Errorf("process: %w", err)
	}

	paths, err := afero.Glob(opts.Volume.Fs(), opts.Volume.Path(path.Join(volume.RawDir, "*.html")))
	if err != nil {
		return fmt.Errorf("process: failed to list raw documents: %w", err)
	}
	sort.Strings(paths)
	log.Info("raw documents found", "count", len(paths))

	status := volume.ProcessStatus{InputsDetected: len(paths)}

	for _, p := range paths {
		doc, err := processOne(opts.Volume, p)
		if err != nil {
			status.ProcessedFailed++
			log.Warn("document processing failed", "file", path.Base(p), "error", err)
			continue
		}

		outName := strings.TrimSuffix(path.Base(p), ".html") + ".json"
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			status.ProcessedFailed++
			log.Warn("document encoding failed", "file", path.Base(p), "error", err)
			continue
		}
		if err := opts.Volume.WriteFileAtomic(path.Join(volume.ProcessedDir, outName), data); err != nil {
			return fmt.Errorf("process: failed to store %s: %w", outName, err)
		}
		status.Outputs = append(status.Outputs, outName)
		status.ProcessedSuccess++
		log.Debug("document processed", "in", path.Base(p), "out", outName)
	}

	status.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if err := stage.WriteSentinel(opts.Volume, volume.StageProcess, status); err != nil {
		return fmt.Errorf("process: %w", err)
	}
	log.Info("stage complete", "ok", status.ProcessedSuccess, "failed", status.ProcessedFailed)
	return nil
}

// processOne converts a single raw HTML file into a structured record.
func processOne(vol *volume.Volume, absPath string) (volume.ProcessedDocument, error) {
	data, err := afero.ReadFile(vol.Fs(), absPath)
	if err != nil {
		return volume.ProcessedDocument{}, err
	}

	text, links, images := StripHTML(string(data))
	return volume.ProcessedDocument{
		SourceFile:  path.Base(absPath),
		Text:        text,
		Statistics:  TextStats(text),
		Links:       links,
		Images:      images,
		ProcessedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// StripHTML removes markup from an HTML document and extracts link and
// image targets. Script and style bodies are dropped entirely; targets
// are captured before tags are removed.
func StripHTML(html string) (text string, links, images []string) {
	html = scriptRe.ReplaceAllString(html, "")
	html = styleRe.ReplaceAllString(html, "")

	for _, m := range hrefRe.FindAllStringSubmatch(html, -1) {
		links = append(links, m[1])
	}
	for _, m := range srcRe.FindAllStringSubmatch(html, -1) {
		images = append(images, m[1])
	}

	text = tagRe.ReplaceAllString(html, " ")
	text = strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
	return text, links, images
}

// TextStats computes the per-document counts. Paragraph detection is
// approximate: whitespace was already collapsed, so when no paragraph
// break survives, every three sentences count as one paragraph-like
// group.
func TextStats(text string) volume.TextStatistics {
	words := wordRe.FindAllString(text, -1)
	wordCount := len(words)

	sentenceCount := 0
	for _, s := range sentenceRe.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentenceCount++
		}
	}

	paragraphCount := 0
	for _, p := range paragraphRe.Split(text, -1) {
		if strings.TrimSpace(p) != "" {
			paragraphCount++
		}
	}
	if paragraphCount == 0 {
		paragraphCount = max(1, sentenceCount/3)
	}

	avg := 0.0
	if wordCount > 0 {
		total := 0
		for _, w := range words {
			total += len(w)
		}
		avg = round3(float64(total) / float64(wordCount))
	}

	return volume.TextStatistics{
		WordCount:      wordCount,
		SentenceCount:  sentenceCount,
		ParagraphCount: paragraphCount,
		AvgWordLength:  avg,
	}
}

func round3(f float64) float64 {
	return float64(int64(f*1000+0.5)) / 1000
}
