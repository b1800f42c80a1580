// Package iotecosystem provides a real-time telemetry pipeline for
// distributed sensor fleets: ingest over NATS/JetStream, classify, cache,
// and fan out to live dashboard clients.
//
// # Architecture
//
// The pipeline is a fixed five-stage flow:
//
//	┌──────────┐   sensors.{type}.{id}   ┌──────────────┐
//	│ Sensors  │────────────────────────►│  natsclient  │  durable JetStream
//	│ (edge)   │                         │  (consume)   │  consumer, explicit ack
//	└──────────┘                         └──────┬───────┘
//	                                            │ bounded handoff queue
//	                                            ▼
//	                                     ┌──────────────┐
//	                                     │ ingest.Bridge│  decode → classify →
//	                                     │ (1 consumer) │  store → fanout
//	                                     └──────┬───────┘
//	                         ┌──────────────────┼──────────────────┐
//	                         ▼                  ▼                  ▼
//	                  ┌────────────┐     ┌────────────┐     ┌────────────┐
//	                  │LatestCache │     │  History   │     │ broadcast  │
//	                  │ (per key)  │     │  (ring)    │     │ .Manager   │
//	                  └────────────┘     └────────────┘     └─────┬──────┘
//	                         ▲                  ▲                 │ per-subscriber
//	                         └───────┬──────────┘                 ▼ channel + writer
//	                          ┌──────┴───────┐            ┌──────────────┐
//	                          │ gateway/http │◄───────────│  WebSocket   │
//	                          │ (REST + /ws) │            │   clients    │
//	                          └──────────────┘            └──────────────┘
//
// A single consumer goroutine serializes the read-classify-write cycle, so
// the previous-value lookup used for jump detection is always consistent.
// Fanout isolates subscribers from each other: a slow or dead client is
// removed without blocking delivery to the rest.
//
// # Packages
//
// Pipeline:
//   - telemetry: reading model, payload decoding, topic convention
//   - classifier: per-type range and jump-threshold classification
//   - store: latest-value cache, bounded history ring, windowed stats
//   - ingest: transport-to-pipeline bridge with a bounded handoff queue
//   - broadcast: live subscriber set with per-connection failure isolation
//
// Infrastructure:
//   - natsclient: NATS connection management, JetStream streams/consumers
//   - gateway/http: REST queries, JWT login, WebSocket feed, health, metrics
//   - weather: OpenWeather comparison client with offline mock fallback
//   - simulator: synthetic sensor fleet for development and load testing
//   - config: YAML + environment configuration
//   - metric: Prometheus registry and per-component collectors
//   - errors: transient/invalid/fatal error classification
//
// # Binaries
//
// Run the service and a simulated fleet against a local NATS server:
//
//	nats-server -js &
//	go run ./cmd/iotstream -config config.example.yaml
//	go run ./cmd/sensorsim -nats nats://localhost:4222
package iotecosystem
