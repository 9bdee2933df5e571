//go:build !lobdebug

package codec

// debugAssertValidSide is the release build of the Fast path's side
// check: a no-op, the same way a debug-only assertion compiles out
// entirely in a release build.
func debugAssertValidSide(byte) {}
