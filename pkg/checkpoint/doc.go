// Package checkpoint persists per-variant download session state.
//
// A session file records, for every weight file of a variant, the remote
// entity tag and size observed when the download started and whether the
// file completed. On the next run the recorded etag is compared against the
// remote one: a match means any partial file on disk belongs to the same
// remote content and can be resumed, a mismatch forces a restart from zero.
//
// Session files live next to the weights they describe, as
// <checkpoints>/<variant>/.session.json, and are written atomically so an
// interrupted run never leaves a corrupt ledger behind.
package checkpoint
