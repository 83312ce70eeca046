// Package audit relays security events to sinks without blocking the
// authentication path.
//
// The engine decides which events to emit; this package only buffers and
// delivers them. Sinks: [ChannelSink], [JSONWriterSink], [SlogSink],
// [MultiSink] and [NoOpSink].
package audit
