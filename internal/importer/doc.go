// Package importer runs the worker pool that drains enqueued selections.
//
// Each worker repeats the same loop: fetch claim candidates, win at most
// one via the store's conditional claim, process it under a heartbeat
// lease, and commit exactly one terminal outcome. Losing a claim race is
// ordinary control flow. All coordination happens through catalog rows;
// workers in other processes are indistinguishable from local ones.
package importer
