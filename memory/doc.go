// Package memory holds the conversation sent to the model.
//
// Model:
//   - Message content is either plain text or an ordered slice of blocks.
//   - Blocks are a closed set: text, tool_use, tool_result, thinking.
//   - Store is the single source of truth for what is sent upstream; observers get copies.
//   - Conversations persist as JSON in the same shape as the wire format.
package memory
