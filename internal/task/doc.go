// Package task runs the pipeline's background jobs.
//
// GenerationScheduler turns queued items into summaries and first drafts
// with a bounded number of concurrent model calls. RefinementScheduler
// rewrites drafts from reviewer feedback: it shares a global concurrency cap
// across all items but runs the jobs of any single item strictly one at a
// time, in the order they were enqueued, so two calls never race on one
// conversation.
package task
