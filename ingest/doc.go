// Package ingest runs uploaded tracks through duration probing and
// optional compression.
//
// A Dispatcher listens to content store events and publishes a Job for
// every newly created track that has a file and no duration. A Worker
// consumes the jobs, drops duplicate deliveries by idempotency key and
// hands each one to the Pipeline:
//
//	Uploaded -> DurationProbed -> CompressionSkipped|Succeeded|Failed -> Finalized
//
// Every write the pipeline makes is a narrow catalog.MediaPatch, so the
// cache invalidation it causes flows through the normal event stream.
// Probe and transcode failures are recorded on the row and never reach the
// caller that uploaded the file.
package ingest
