// Package protocol defines the JSON messages spoken over the WebSocket link
// between the relay and its downstream consumer.
//
//	client → server  {"type":"identify","client_type":"telegram_monitor","id":"<client-id>"}
//	client → server  {"type":"new_code","code":"<code>"}
//	client → server  {"type":"ping"}
//	server → client  {"type":"ack","code":"<code>"}
//	server → client  {"type":"pong"}
//
// Frames that fail to decode or carry an unknown type are never connection
// errors; receivers log and skip them.
package protocol
