// Package logging provides structured logging for the HmIP mirror.
//
// It wraps log/slog so every component logs with the same handler,
// level filter and default fields (service, version).
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	streamLog := logger.Component("stream")
//	streamLog.Info("connected", "url", url)
//
// Never log the cloud auth token or client auth token.
package logging
