// Package ecat implements the wire-level core of an EtherCAT master:
// datagram commands and frame encoding, the slave register map, the
// application-layer state model, mailbox framing, and the transport
// contract that concrete link layers (raw NIC, test bus) implement.
//
// Higher-level behavior lives in the master package (bus scanning,
// process-data mapping, cyclic exchange, recovery) and in the per-protocol
// mailbox packages coe, foe and eoe.
package ecat
