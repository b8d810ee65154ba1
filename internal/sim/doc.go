// Package sim provides software stand-ins for fabrication devices: a print
// head that dials the panel's stream address and a material container that
// talks to its datagram address. Both speak the same wire protocol as the
// hardware and reconnect with backoff when the panel goes away.
package sim
