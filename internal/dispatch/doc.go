// Package dispatch decouples chat sources from the relay.
//
// Sources emit into a bounded queue; a fixed set of workers runs the handler
// for each message. When the queue is full the Overflow policy decides
// between back-pressure (block) and discarding a message.
package dispatch
