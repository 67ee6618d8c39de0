package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{
		logger: logger,
	}
}

// WithRound adds round_id context to logger.
func (l *Logger) WithRound(roundID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("round_id", roundID).Logger(),
	}
}

// WithWorker adds worker_addr context to logger.
func (l *Logger) WithWorker(workerAddr string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("worker_addr", workerAddr).Logger(),
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) {
	l.logger.Fatal().Err(err).Msg(msg)
}

// DiscoveryCompleted logs the outcome of a multicast discovery sweep.
func (l *Logger) DiscoveryCompleted(roundID string, workersFound int, elapsed time.Duration) {
	l.logger.Info().
		Str("round_id", roundID).
		Int("workers_found", workersFound).
		Float64("elapsed_seconds", elapsed.Seconds()).
		Msg("discovery sweep completed")
}

// ChunkAssigned logs a chunk's assignment to a worker for a round.
func (l *Logger) ChunkAssigned(roundID string, chunkIndex int, workerAddr string) {
	l.logger.Debug().
		Str("round_id", roundID).
		Int("chunk_index", chunkIndex).
		Str("worker_addr", workerAddr).
		Msg("chunk assigned to worker")
}

// ChunkDispatched logs a chunk request leaving on the wire.
func (l *Logger) ChunkDispatched(roundID string, chunkIndex int, workerAddr string, chunkSize int, fingerprint string) {
	l.logger.Debug().
		Str("round_id", roundID).
		Int("chunk_index", chunkIndex).
		Str("worker_addr", workerAddr).
		Int("chunk_size", chunkSize).
		Str("fingerprint", fingerprint).
		Msg("chunk dispatched")
}

// ChunkReceived logs a worker accepting a chunk request off the wire.
func (l *Logger) ChunkReceived(chunkIndex int, fromAddr string, chunkSize int, fingerprint string) {
	l.logger.Debug().
		Int("chunk_index", chunkIndex).
		Str("from_addr", fromAddr).
		Int("chunk_size", chunkSize).
		Str("fingerprint", fingerprint).
		Msg("chunk received")
}

// ChunkCompleted logs a chunk's successful round trip.
func (l *Logger) ChunkCompleted(roundID string, chunkIndex int, workerAddr string, elapsed time.Duration) {
	l.logger.Debug().
		Str("round_id", roundID).
		Int("chunk_index", chunkIndex).
		Str("worker_addr", workerAddr).
		Float64("elapsed_seconds", elapsed.Seconds()).
		Msg("chunk completed")
}

// ChunkTimeout logs a chunk that exceeded its deadline.
func (l *Logger) ChunkTimeout(roundID string, chunkIndex int, workerAddr string, attempt int, nextTimeout time.Duration) {
	l.logger.Warn().
		Str("round_id", roundID).
		Int("chunk_index", chunkIndex).
		Str("worker_addr", workerAddr).
		Int("attempt", attempt).
		Float64("next_timeout_seconds", nextTimeout.Seconds()).
		Msg("chunk timed out, reassigning")
}

// WorkerBlacklisted logs a worker being excluded from further assignment.
func (l *Logger) WorkerBlacklisted(roundID string, workerAddr string, consecutiveFailures int) {
	l.logger.Warn().
		Str("round_id", roundID).
		Str("worker_addr", workerAddr).
		Int("consecutive_failures", consecutiveFailures).
		Msg("worker blacklisted for round")
}

// RoundCompleted logs a full dispatch round finishing.
func (l *Logger) RoundCompleted(roundID string, op string, chunkCount int, duration time.Duration, localFallback bool) {
	l.logger.Info().
		Str("round_id", roundID).
		Str("operation", op).
		Int("chunk_count", chunkCount).
		Float64("duration_seconds", duration.Seconds()).
		Bool("local_fallback", localFallback).
		Msg("dispatch round completed")
}

// ConnectionEstablished logs an outbound TCP connection to a worker.
func (l *Logger) ConnectionEstablished(remoteAddr string) {
	l.logger.Debug().
		Str("remote_addr", remoteAddr).
		Msg("tcp connection established")
}

// ConnectionFailed logs a failed outbound TCP connection attempt.
func (l *Logger) ConnectionFailed(remoteAddr string, err error) {
	l.logger.Error().
		Str("remote_addr", remoteAddr).
		Err(err).
		Msg("tcp connection failed")
}

// Helper function to get hostname.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
