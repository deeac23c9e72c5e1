// Package render formats conversations for a terminal.
//
// Markdown converts assistant replies into plain text using the goldmark
// parser. Transcript, ConversationList, Models and Statistics write the CLI's
// human-readable views. All colour goes through fatih/color, so setting
// color.NoColor yields uncoloured output.
package render
