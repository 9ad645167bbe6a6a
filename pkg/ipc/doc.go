// Package ipc implements the named, bidirectional message channel between
// the elevlink orchestrator and its elevated worker.
//
// Messages are newline-delimited JSON objects carried over a unix domain
// socket whose name is derived from the session's channel id. The
// orchestrator side is a Server: instead of registering callbacks, it exposes
// every incoming message as a typed Event on a single stream, with a
// synthesised EventDisconnected when a worker connection ends. The worker
// side dials the socket with a Client.
//
// # Message contract
//
//	worker -> orchestrator   initialised  {channel, pid}
//	orchestrator -> worker   link-file    {source, destination}
//	orchestrator -> worker   remove-link  {destination}
//	worker -> orchestrator   finished     {path, error?}
//	worker -> orchestrator   log          {level, message, meta}
//	orchestrator -> worker   quit
package ipc
