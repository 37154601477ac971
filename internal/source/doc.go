// Package source adapts chat platforms into a stream of raw text messages.
//
// Each adapter implements Source and hands every new message from a
// monitored channel to an EmitFunc. Adapters do not extract codes or
// deduplicate; that is the relay's job. Available adapters:
//
//   - Matrix: mautrix sync loop over joined rooms
//   - Discord: discordgo gateway session
//   - Lines: newline-delimited text from any io.Reader (stdin)
//
// Authenticating to the platform is the operator's concern; adapters use
// the credentials they are given.
package source
