// Package events distributes node lifecycle notifications to
// interested observers such as the editing surface.
//
// The engine publishes an Event whenever a node evaluates, fails,
// changes state, reports progress, or is cancelled, and whenever links
// are created or removed. Subscribers receive events on their own
// goroutine through a buffered channel, so a slow display never stalls
// evaluation. In non-blocking mode events are dropped (with an OnDrop
// callback) instead of applying backpressure.
package events
