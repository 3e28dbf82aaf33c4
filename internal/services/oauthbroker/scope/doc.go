// Package scope models OAuth scope sets as immutable values.
//
// A Scopes value is always normalized: tokens are trimmed, empty tokens are
// dropped and duplicates collapse. Operations return new values, so a Scopes
// can be shared between goroutines without copying.
package scope
