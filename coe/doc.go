// Package coe implements the CAN application protocol over EtherCAT: SDO
// parameter access by index/subindex, SDO Info object directory enumeration,
// and emergency messages. All services run over a slave's mailbox channel
// via the ecat.Mailbox contract.
package coe
