// Package dialog implements the conversation logic of the bot.
//
// Every inbound Event is routed under the sender's session lock in a fixed
// order of precedence:
//
//  1. commands (/start, /help, /search)
//  2. greetings, from any state; they discard whatever is pending
//  3. the (state, event kind) table
//  4. the generic help reply, leaving the session unchanged
//
// A handler never talks to the transport directly. It returns a Transition
// with the next state, the pending context and the outbound Actions; the
// Router applies the state and then delivers the actions through a
// Messenger. Recognition goes through a Transcriber and persistence through
// a RecordStore, so the whole dialog can be driven with in-memory fakes.
package dialog
