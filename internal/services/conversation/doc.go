// Package conversation owns the active-conversation state machine.
//
// Each conversation is Idle, Loading or Ready. Selecting a conversation
// clears its unread count, marks it Loading and fetches history; a newer
// select supersedes an in-flight load, whose result is discarded on
// arrival. Inbound realtime messages are either appended to the active
// conversation or accounted as unread for an inactive one — never both,
// never neither. Sends are encrypted for the conversation's recipient set
// plus the sender's own key and appended optimistically before
// transmission.
package conversation
