// Package ports defines the interfaces that connect the coordination engine
// to infrastructure adapters.
//
// # Port Interfaces
//
//   - [Link]: write side of a device connection (TCP stream or UDP peer)
//   - [Timers]: per-id deadline scheduling for the event loop
//   - [Logger]: structured logging abstraction
//
// # Usage
//
// The engine (internal/app) depends only on these interfaces. Adapters in
// internal/adapters and internal/deadline implement them with sockets and
// runtime timers; tests substitute in-memory fakes so the state machine can
// be driven deterministically.
package ports
