/*
Package api exposes the daemon's HTTP surface.

Clients connect through the websocket endpoint at /ws, presenting their
session credential as a query parameter. The remaining routes are for
operational tooling only: /healthz is a bare liveness probe, /status
reports uptime and the live connection/room counts from a consistent hub
snapshot, and /metrics serves Prometheus collectors.
*/
package api
