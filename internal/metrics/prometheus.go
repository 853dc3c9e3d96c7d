package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesCrawled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikitopics_pages_crawled_total",
			Help: "Candidate pages fetched and scored",
		},
		[]string{"lang_code", "outcome"},
	)

	PageFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wikitopics_page_fetch_duration_seconds",
			Help:    "Wikipedia page fetch duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"lang_code"},
	)

	PageFetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikitopics_page_fetch_errors_total",
			Help: "Page fetches that failed and were skipped",
		},
		[]string{"lang_code"},
	)

	SimilarityScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wikitopics_similarity_score",
			Help:    "Similarity scores of crawled candidates against the seed",
			Buckets: []float64{-0.2, 0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	EmbeddingsComputed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wikitopics_embeddings_computed_total",
			Help: "Embedding vectors requested from the encoder",
		},
	)

	ParagraphsStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wikitopics_paragraphs_stored_total",
			Help: "Paragraphs inserted into the corpus",
		},
	)

	AutonymsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikitopics_autonyms_stored_total",
			Help: "Cross-lingual autonym rows recorded",
		},
		[]string{"lang_code"},
	)

	PageLinksStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wikitopics_page_links_stored_total",
			Help: "Page link edges recorded",
		},
	)

	CrawlRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikitopics_crawl_runs_total",
			Help: "Outer crawl runs by result",
		},
		[]string{"status"},
	)

	SearchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikitopics_search_requests_total",
			Help: "Similarity search requests by status",
		},
		[]string{"status"},
	)
)

func Init() {
	prometheus.MustRegister(PagesCrawled)
	prometheus.MustRegister(PageFetchDuration)
	prometheus.MustRegister(PageFetchErrors)
	prometheus.MustRegister(SimilarityScores)
	prometheus.MustRegister(EmbeddingsComputed)
	prometheus.MustRegister(ParagraphsStored)
	prometheus.MustRegister(AutonymsStored)
	prometheus.MustRegister(PageLinksStored)
	prometheus.MustRegister(CrawlRuns)
	prometheus.MustRegister(SearchRequests)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
