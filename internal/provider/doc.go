// Package provider adapts the conversation store to the Anthropic beta Messages API.
//
// A Request carries the full history plus session settings. The adapter picks the
// single advertised tool (computer-use when a display is configured, bash
// otherwise), forbids parallel tool use, and drops error-role messages before the
// history goes on the wire.
package provider
