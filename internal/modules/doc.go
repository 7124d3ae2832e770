// Package modules holds the built-in hub modules and the helpers they share.
//
// Modules never call each other. Each one declares itself to the hub with a
// descriptor and an action set, and modules that react to documents listen
// on the event bus. Register wires both at startup.
package modules
