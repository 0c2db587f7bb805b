// Package fetch implements the first pipeline stage: it reads the
// injected work list from the shared volume, fetches each URL, writes the
// raw documents to the volume, and finally writes its completion
// sentinel.
//
// The sentinel is written only after every raw document is durably on the
// volume; downstream stages rely on that ordering.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"convoy/internal/inject"
	"convoy/internal/logging"
	"convoy/internal/poll"
	"convoy/internal/stage"
	"convoy/internal/volume"
)

const (
	userAgent      = "convoy-fetcher/1.0"
	requestTimeout = 10 * time.Second
)

var wordRe = regexp.MustCompile(`[A-Za-z0-9]+`)

// Options configures the fetch stage.
type Options struct {
	Volume *volume.Volume
	Logger *logging.Logger

	// Client overrides the HTTP client, for tests.
	Client *http.Client

	// Wait bounds the wait on the injected work list.
	Wait poll.Config
}

// Run executes the fetch stage to completion.
func Run(ctx context.Context, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = logging.NopLogger()
	}
	log = log.WithStage(string(volume.StageFetch))

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	// The coordinator injects the work list after stage startup; block
	// until it appears.
	if err := stage.WaitForInput(ctx, opts.Volume, opts.Wait); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	urls, err := inject.ReadWorkList(opts.Volume)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	log.Info("work list read", "urls", len(urls))

	status := volume.FetchStatus{
		ProcessingStart:        isoNow(),
		StatusCodeDistribution: make(map[string]int),
	}
	var totalTime float64
	var errorLines []string

	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fetch: %w", err)
		}

		res, body := fetchOne(ctx, client, url)
		status.Results = append(status.Results, res)
		status.TotalURLs++
		status.StatusCodeDistribution[strconv.Itoa(res.StatusCode)]++
		status.TotalBytesDownloaded += res.ContentLength
		totalTime += res.ResponseTimeMs

		if res.Error == nil && res.StatusCode >= 200 && res.StatusCode < 400 {
			status.SuccessfulRequests++
		}
		if res.Error != nil {
			status.FailedRequests++
			errorLines = append(errorLines, fmt.Sprintf("[%s] [%s]: %s", res.Timestamp, url, *res.Error))
			log.Warn("fetch failed", "url", url, "error", *res.Error)
			continue
		}

		name := fmt.Sprintf("page_%03d.html", i+1)
		if err := opts.Volume.WriteFileAtomic(path.Join(volume.RawDir, name), body); err != nil {
			return fmt.Errorf("fetch: failed to store %s: %w", name, err)
		}
		status.Outputs = append(status.Outputs, name)
		log.Debug("document stored", "url", url, "file", name, "bytes", len(body))
	}

	if status.TotalURLs > 0 {
		status.AverageResponseTimeMs = round3(totalTime / float64(status.TotalURLs))
	}
	status.ProcessingEnd = isoNow()

	if err := opts.Volume.WriteFileAtomic(volume.ErrorsLogFile, []byte(joinLines(errorLines))); err != nil {
		return fmt.Errorf("fetch: failed to store error log: %w", err)
	}

	// Sentinel last: the raw documents must be durable before the
	// completion marker exists.
	if err := stage.WriteSentinel(opts.Volume, volume.StageFetch, status); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	log.Info("stage complete", "fetched", status.SuccessfulRequests, "failed", status.FailedRequests)
	return nil
}

// fetchOne performs a single GET and returns the record plus the body.
// Transport failures are recorded, never fatal to the stage.
func fetchOne(ctx context.Context, client *http.Client, url string) (volume.FetchResult, []byte) {
	start := time.Now()
	res := volume.FetchResult{URL: url}

	finish := func() {
		res.ResponseTimeMs = round3(float64(time.Since(start).Nanoseconds()) / 1e6)
		res.Timestamp = isoNow()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		msg := "invalid request: " + err.Error()
		res.Error = &msg
		finish()
		return res, nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		msg := err.Error()
		res.Error = &msg
		finish()
		return res, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		msg := "read failed: " + err.Error()
		res.Error = &msg
		finish()
		return res, nil
	}

	res.StatusCode = resp.StatusCode
	res.ContentLength = len(body)
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text") {
		wc := countWords(decodeText(body))
		res.WordCount = &wc
	}
	if resp.StatusCode >= 400 {
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		res.Error = &msg
	}
	finish()
	return res, body
}

// countWords counts runs of alphanumeric characters.
func countWords(text string) int {
	return len(wordRe.FindAllString(text, -1))
}

// decodeText interprets the body as UTF-8, replacing invalid sequences.
func decodeText(body []byte) string {
	return strings.ToValidUTF8(string(body), "�")
}

func round3(f float64) float64 {
	return float64(int64(f*1000+0.5)) / 1000
}

func isoNow() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
