// Package channel provides KeyedChannel, a closable producer/consumer
// channel that keeps an independent FIFO per key. It lets a scheduler
// serialize work for one key while many keys proceed concurrently.
package channel
