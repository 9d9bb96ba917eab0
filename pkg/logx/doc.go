// Package logx is a thin wrapper over zerolog for one notifier run.
//
// Open fixes the sinks for the lifetime of the run: an optional colored
// console, a text log file in the form
//
//	2006-01-02 15:04:05,000 ERROR [fetcher.go:88] - fetch failed url=...
//
// and an optional Telegram chat for operators, rate limited and drained
// on Close. Loggers are passed down explicitly; nothing here holds a
// process-wide logger.
package logx
