package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	SyncRuns          prometheus.Counter
	SyncFailures      prometheus.Counter
	SyncDuration      prometheus.Histogram
	MessagesFetched   prometheus.Counter
	MessagesIngested  prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	MessageFailures   prometheus.Counter
	TasksCreated      prometheus.Counter
	CommentsCreated   prometheus.Counter
	RuleMatches       prometheus.Counter
	AutoRepliesSent   prometheus.Counter
	AttachmentErrors  prometheus.Counter
}

// NewMetrics registers the collectors with the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "task_inbox_sync_runs_total",
			Help: "Total number of account sync runs",
		}),
		SyncFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "task_inbox_sync_failures_total",
			Help: "Total number of account syncs that failed",
		}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "task_inbox_sync_duration_seconds",
			Help:    "Time spent syncing one account",
			Buckets: prometheus.DefBuckets,
		}),
		MessagesFetched: f.NewCounter(prometheus.CounterOpts{
			Name: "task_inbox_messages_fetched_total",
			Help: "Total number of messages fetched from remote mailboxes",
		}),
		MessagesIngested: f.NewCounter(prometheus.CounterOpts{
			Name: "task_inbox_messages_ingested_total",
			Help: "Total number of messages persisted",
		}),
		DuplicatesSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "task_inbox_duplicates_skipped_total",
			Help: "Total number of fetched messages that were already stored",
		}),
		MessageFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "task_inbox_message_failures_total",
			Help: "Total number of messages whose processing failed",
		}),
		TasksCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "task_inbox_tasks_created_total",
			Help: "Total number of tasks created from email",
		}),
		CommentsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "task_inbox_comments_created_total",
			Help: "Total number of task comments created from email",
		}),
		RuleMatches: f.NewCounter(prometheus.CounterOpts{
			Name: "task_inbox_rule_matches_total",
			Help: "Total number of inbox rules that matched a message",
		}),
		AutoRepliesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "task_inbox_auto_replies_sent_total",
			Help: "Total number of auto-replies sent",
		}),
		AttachmentErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "task_inbox_attachment_failures_total",
			Help: "Total number of attachments that could not be stored",
		}),
	}
}
