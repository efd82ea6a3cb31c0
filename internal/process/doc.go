// Package process tracks the child processes started for scripts.
//
// A Handle wraps an exec.Cmd with exit tracking. Every handle runs in its
// own process group so that stopping a script also stops anything it
// spawned. Stopping escalates from a polite terminate to a kill:
//
//	h := process.NewHandle(cmd, "/project/app.py", process.KindOneShot)
//	if err := h.Start(); err != nil {
//	    return err
//	}
//	// SIGTERM, wait up to 2 seconds, then SIGKILL
//	_ = h.Shutdown(2 * time.Second)
//
// # Registry
//
// The Registry holds every handle the manager currently owns, one-shot
// runs and web-app servers alike. Handles leave the registry when they
// are stopped or when their process exits on its own; removal hooks let
// other components react exactly once per handle.
//
//	reg := process.NewRegistry(process.WithGrace(2 * time.Second))
//	h, err := reg.Spawn(cmd, path, process.KindWebApp)
//	...
//	n := reg.StopAll()
//
// Both Registry and Handle are safe for concurrent use.
package process
