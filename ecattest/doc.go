// Package ecattest provides an in-memory EtherCAT segment for tests: a Bus
// implementing ecat.Transport and SimSlave devices with a register set, SII
// EEPROM, application-layer state machine and mailbox protocol servers.
// Fault hooks (unplugging, forced states, failed transitions, emergencies)
// exercise the master's degraded paths without hardware.
package ecattest
