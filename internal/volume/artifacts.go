package volume

// Artifact schemas for the records stages write to the volume. The
// coordinator itself only ever parses these for diagnostics and tests;
// completion detection relies on sentinel existence alone.

// FetchResult is one per-URL record inside the fetch stage's sentinel.
// WordCount is nil for non-text responses, Error is nil on success.
type FetchResult struct {
	URL            string  `json:"url"`
	StatusCode     int     `json:"status_code"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	ContentLength  int     `json:"content_length"`
	WordCount      *int    `json:"word_count"`
	Timestamp      string  `json:"timestamp"`
	Error          *string `json:"error"`
}

// FetchStatus is the schema of status/fetch_complete.json.
type FetchStatus struct {
	ProcessingStart        string         `json:"processing_start"`
	ProcessingEnd          string         `json:"processing_end"`
	TotalURLs              int            `json:"total_urls"`
	SuccessfulRequests     int            `json:"successful_requests"`
	FailedRequests         int            `json:"failed_requests"`
	AverageResponseTimeMs  float64        `json:"average_response_time_ms"`
	TotalBytesDownloaded   int            `json:"total_bytes_downloaded"`
	StatusCodeDistribution map[string]int `json:"status_code_distribution"`
	Results                []FetchResult  `json:"results"`
	Outputs                []string       `json:"outputs"`
}

// TextStatistics holds the per-document counts computed by the process
// stage.
type TextStatistics struct {
	WordCount      int     `json:"word_count"`
	SentenceCount  int     `json:"sentence_count"`
	ParagraphCount int     `json:"paragraph_count"`
	AvgWordLength  float64 `json:"avg_word_length"`
}

// ProcessedDocument is the schema of processed/page_NNN.json.
type ProcessedDocument struct {
	SourceFile  string         `json:"source_file"`
	Text        string         `json:"text"`
	Statistics  TextStatistics `json:"statistics"`
	Links       []string       `json:"links"`
	Images      []string       `json:"images"`
	ProcessedAt string         `json:"processed_at"`
}

// ProcessStatus is the schema of status/process_complete.json.
type ProcessStatus struct {
	Timestamp        string   `json:"timestamp"`
	InputsDetected   int      `json:"inputs_detected"`
	ProcessedSuccess int      `json:"processed_success"`
	ProcessedFailed  int      `json:"processed_failed"`
	Outputs          []string `json:"outputs"`
}

// AnalysisStatus is the schema of status/analysis_complete.json, the
// terminal sentinel.
type AnalysisStatus struct {
	Timestamp         string `json:"timestamp"`
	DocumentsAnalyzed int    `json:"documents_analyzed"`
}

// WordFrequency is one entry of the final report's top-words list.
type WordFrequency struct {
	Word      string  `json:"word"`
	Count     int     `json:"count"`
	Frequency float64 `json:"frequency"`
}

// DocumentSimilarity is a pairwise Jaccard similarity record.
type DocumentSimilarity struct {
	Doc1       string  `json:"doc1"`
	Doc2       string  `json:"doc2"`
	Similarity float64 `json:"similarity"`
}

// BigramCount is one entry of the final report's top-bigrams list.
type BigramCount struct {
	Bigram string `json:"bigram"`
	Count  int    `json:"count"`
}

// TrigramCount is one entry of the final report's top-trigrams list.
type TrigramCount struct {
	Trigram string `json:"trigram"`
	Count   int    `json:"count"`
}

// Readability holds the corpus-level readability metrics.
type Readability struct {
	AvgSentenceLength float64 `json:"avg_sentence_length"`
	AvgWordLength     float64 `json:"avg_word_length"`
	ComplexityScore   float64 `json:"complexity_score"`
}

// FinalReport is the schema of analysis/final_report.json, the artifact
// required for a run to be reported as Succeeded.
type FinalReport struct {
	ProcessingTimestamp string               `json:"processing_timestamp"`
	DocumentsProcessed  int                  `json:"documents_processed"`
	TotalWords          int                  `json:"total_words"`
	UniqueWords         int                  `json:"unique_words"`
	Top100Words         []WordFrequency      `json:"top_100_words"`
	DocumentSimilarity  []DocumentSimilarity `json:"document_similarity"`
	TopBigrams          []BigramCount        `json:"top_bigrams"`
	TopTrigrams         []TrigramCount       `json:"top_trigrams"`
	Readability         Readability          `json:"readability"`
}
