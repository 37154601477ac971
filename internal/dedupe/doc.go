// Package dedupe tracks recently forwarded codes so the same code is not
// relayed twice inside a configurable window.
//
// The window is fixed from the successful forward: looking a code up never
// extends its deadline, only a new forward does. A zero window disables
// expiry entirely.
package dedupe
