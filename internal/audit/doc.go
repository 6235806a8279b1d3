// Package audit delivers session lifecycle events off the caller's goroutine.
//
// The client hands each [Event] to a [Dispatcher], which queues it and calls
// the configured [Sink] from one background goroutine. When the queue is full
// the dispatcher either drops the event and counts it or makes the emitter
// wait, depending on Config.DropIfFull.
//
// Ready-made sinks cover the usual consumers: [ChannelSink] for tests and
// in-process listeners, [JSONWriterSink] for log files, and [TypeFilterSink]
// to narrow another sink to selected event types.
//
// # What this package must NOT do
//
//   - Decide which lifecycle transitions produce events. The client does.
//   - Import authsession or any sibling internal package.
package audit
