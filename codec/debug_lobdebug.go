//go:build lobdebug

package codec

import "fmt"

// debugAssertValidSide panics on an invalid side byte when built with
// -tags lobdebug, for catching a misbehaving producer in development
// without paying for the check on the Fast path in production.
func debugAssertValidSide(b byte) {
	if !ValidSide(b) {
		panic(fmt.Sprintf("codec: invalid side byte %d", b))
	}
}
