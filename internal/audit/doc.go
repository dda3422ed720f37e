// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink] is the consumer contract. Channel, JSON-lines, slog and no-op sinks are
//     provided.
//   - [Dispatcher] is a buffered async relay that either drops or blocks when full.
//   - [Event] is one structured record: type, subject, token id, client and outcome code.
//
// The package decides nothing about which events exist. The engine emits them.
package audit
