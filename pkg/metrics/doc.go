/*
Package metrics exposes Prometheus instrumentation for the realtime
session daemon.

Gauges track the live connection and room population; counters track
routed, dropped, and misrouted events plus rejected connection attempts.
All collectors are registered at init and served through Handler on the
operational HTTP surface alongside the status endpoint.
*/
package metrics
