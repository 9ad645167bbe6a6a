// Package elevation runs link operations through a separate, elevated
// worker process.
//
// A Session owns one IPC channel and one worker process at a time and moves
// through the states Idle, Starting, Active, Draining and Stopped:
//
//	Idle/Stopped --Start--> Starting --initialised--> Active
//	Active --Stop--> Draining --last completion--> Stopped
//	Active/Draining --disconnect or worker exit--> Stopped
//
// Every transition happens on the session's own event loop goroutine, which
// consumes the typed event stream of the channel, the worker's exit
// notification and the public API calls in a single select. No state is
// shared with the worker: requests and completions are messages.
//
// Dispatch is fire and forget. It returns as soon as the request has been
// written to the channel; the destination path stays in the pending set
// until the worker reports it finished. Stop waits for the pending set to
// empty before telling the worker to quit. If the worker goes away first,
// the pending operations are abandoned and reported through the log, the
// OnAbandoned hook and an ABANDONED error returned from Stop.
package elevation
