// Package poller runs the periodic polling cycles for pollpool.
//
// This package is internal to pollpool. Every interval it runs each
// configured task once on a pool of workers whose size is read at the start
// of the cycle, cancels whatever has not settled by the end of the interval,
// and reports the tally.
//
// The main components are:
//
//   - [Scheduler]: runs cycles and emits a [CycleResult] per cycle
//   - [Client]: HTTP client for running [Probe] requests as tasks
//   - [TaskInfo]: a named unit of work
//
// Users of the pollpool library should not need to interact with this
// package directly. Configuration is done through the main pollpool package.
package poller
