// Package master implements the master-side controller of an EtherCAT
// segment: bus scanning and address assignment, process-data mapping, the
// application-layer state machine, the cyclic process-data exchange with
// working-counter validation, the supervisory recovery loop, and per-slave
// mailbox services (CoE, FoE, EoE) on top of the ecat wire core.
//
// Typical bring-up:
//
//	m, err := master.NewMaster(master.WithCycleTime(2 * time.Millisecond))
//	if err := m.Open(transport); err != nil { ... }
//	n, err := m.ConfigInit()
//	// assign config functions to m.Devices()
//	if err := m.ConfigMap(); err != nil { ... }
//	wkc, err := m.ExchangeProcessData()
//	res, err := m.RequestState(ecat.StateOp)
//	if err := m.Run(); err != nil { ... }
package master
