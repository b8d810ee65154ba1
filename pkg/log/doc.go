// Package log provides the logging abstraction used across fabpanel.
//
// Components accept a [Logger] and derive scoped loggers with [Logger.With],
// so every line emitted for a device carries its part id and role:
//
//	partLog := logger.With(log.Int("part", 3), log.String("role", "printhead"))
//	partLog.Info("instruction forwarded", log.String("op", "Dot"))
//
// [NewZerologAdapter] is the production implementation; [NewNoopLogger]
// discards everything and is meant for tests.
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
package log
