// Package sink is a stand-in downstream consumer for local runs and tests.
//
// It speaks the server side of the relay protocol: it expects an identify
// frame first, acknowledges each new_code with {"type":"ack","code":...}
// and answers {"type":"ping"} with {"type":"pong"}. It does not claim
// anything; received codes are logged and kept in memory.
package sink
