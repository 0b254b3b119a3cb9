// Package logging provides structured logging for the RemoteEye relay.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Rotating file output via lumberjack
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "./logs/remoteeye.log"
//	    max_size: 100    # megabytes
//	    max_backups: 5
//	    max_age: 30      # days
//
// # Security
//
// Never log bearer tokens, device secrets, or push tokens.
package logging
