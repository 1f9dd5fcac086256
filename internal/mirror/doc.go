// Package mirror keeps the entity graph in step with the HmIP cloud.
//
// BuildFromSnapshot replaces the graph with the contents of a
// getCurrentState document. Apply takes one push envelope from the event
// stream and applies each event independently:
//
//   - *_ADDED inserts the entity unless its id is already present.
//   - *_CHANGED patches the entity in place; unknown ids are ignored.
//   - *_REMOVED deletes the entity; unknown ids are ignored.
//   - HOME_CHANGED patches the home.
//   - SECURITY_JOURNAL_CHANGED is accepted and ignored.
//
// Every effective mutation is published on the notification bus. A bad or
// unknown event is recorded in the Report and skipped; it never stops the
// rest of the envelope. An *_ADDED event whose id belongs to another entity
// kind is not applied and Apply returns ErrKindConflict so the owner can
// fetch a fresh snapshot.
//
// Group channel references are checked once after each snapshot build.
// Incremental device changes do not re-check them.
package mirror
