// Package relay turns chat messages into forwarded codes.
//
// For every extracted code the relay sweeps expired cache entries, asks the
// dedup cache whether the code may go out, sends it over the transport and
// only then marks it forwarded. The three steps run under a per-code lock so
// two sightings of one code never both reach the wire; different codes do
// not wait on each other.
package relay
