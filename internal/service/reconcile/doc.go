// Package reconcile applies asynchronous provider events back onto the
// delivery queue and the audience.
//
// Events arrive out of order and may be delivered more than once, so
// every transition is written as a conditional update: opened only if
// not already opened, failed only while not sent, and so on. An event
// for a message this system never tracked is a silent no-op.
//
// The package also hosts the delivered-events repair sweep that flips
// tasks stuck in failed back to sent when the provider's own history
// says they were delivered.
package reconcile
