// Package remotecmd waits for publisher instances to become remotely
// manageable and runs the registration command on them over AWS Systems
// Manager.
//
// Two pollers live here, both with injectable clocks and hard attempt
// ceilings (there is no unbounded wait anywhere):
//
//   - Poller.WaitOnline blocks until the SSM agent on a fresh instance
//     reports an Online ping status (default 15s x 40 attempts).
//   - Executor.PollExecution blocks until a dispatched command reaches a
//     terminal invocation status (default 10s x 60 attempts).
//
// The Executor implements the server-side token delivery design: it resolves
// and decrypts the one-time registration token under its own identity and
// passes it as an argument of a single RunShellScript command. The token
// never appears in user data, instance metadata, or instance-readable
// storage, and a consumed token is refused before anything is dispatched.
package remotecmd
