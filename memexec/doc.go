// Package memexec runs an executable image held in memory as a child
// process, without writing it to a filesystem path.
//
// The image is copied into an anonymous memfd in the forked child and
// executed with execveat(AT_EMPTY_PATH). Failures between fork and exec are
// reported to the parent over a close-on-exec control pipe, so Spawn either
// returns a child whose image has been replaced or an error carrying the
// child's errno, with the child already reaped.
//
//	image, _ := os.ReadFile("/usr/bin/tool")
//	out, err := memexec.New("tool", image).Args("--version").Output()
//
// Linux only.
package memexec
