// Package domain contains the core value types shared by the coordination
// engine and its adapters.
//
// It has no dependencies on infrastructure concerns (sockets, HTTP, logging)
// and holds only identifiers, enumerations, events and sentinel errors.
//
// # Types
//
//   - [PartID]: stable id of a registered device
//   - [Transport]: stream (TCP) or datagram (UDP) delivery of a device link
//   - [PartState]: derived state of a device state machine
//   - [Event]: notification emitted by the engine for collaborators
//   - [JobHandle]: identifies an accepted print job
package domain
