// Package chat implements a single model conversation.
//
// A Session keeps two views of its history. The comprehensive history records
// every exchange exactly as it was merged, including invalid model turns. The
// curated history is derived from it on demand and is what gets sent back to
// the service: a run of model turns containing an invalid turn is dropped along
// with the user turn that prompted it.
//
// Send and SendStream are serialized per session. Concurrent callers are
// applied to the history in call order, and a failed send leaves the history
// untouched without blocking the senders queued behind it. Readers always
// receive deep copies.
package chat
