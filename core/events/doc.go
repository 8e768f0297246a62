// Package events publishes a message to Kafka when a pipeline stage of a run
// finishes, so downstream consumers can pick up fresh tables or artifacts.
//
// Messages are JSON encoded RunEvent values keyed by run id. With no brokers
// configured New returns Nop and nothing is sent.
package events
