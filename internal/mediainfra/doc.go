// Package mediainfra adapts audio tooling to the ingestion pipeline:
// TaglibProber reads durations with taglib and FFmpegTranscoder re-encodes
// files with an ffmpeg process.
package mediainfra
