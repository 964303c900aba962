// Package channels binds kernel values to front-end elements through named
// channels.
//
// A Manager accepts Set and Watch calls at any time. Until a front end
// connects, values and watch handlers are held in a Buffer. Connect builds the
// live Registry, which adopts the watch handlers and publishes every buffered
// value exactly once. After that, Set publishes immediately and change
// notifications from the front end are dispatched to the watch handler
// registered for the (channel, name) pair.
//
// Only one handler is kept per (channel, name); the last registration wins.
// Change notifications for variables nobody watches are ignored.
package channels
