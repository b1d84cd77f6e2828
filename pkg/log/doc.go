/*
Package log provides structured logging for the realtime daemon built on
zerolog.

Init configures the global logger once at startup; packages derive child
loggers with WithComponent and WithConnectionID so every line carries
enough context to follow a single session through the hub.

Console output (human-readable, colorized) is the default; JSON output is
used in deployed environments where logs are shipped to an aggregator.
*/
package log
