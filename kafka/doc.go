// Package kafka publishes outbox messages through a sarama SyncProducer.
//
// The producer acknowledges with WaitForAll and never retries internally;
// retry scheduling belongs to the relay, which owns the record's retry
// budget. Partitioning is by message key, so records sharing a partition key
// land on the same Kafka partition and keep their relative order.
package kafka
