// Package scheduler implements the drip-delivery state machine.
//
// # Overview
//
// The scheduler owns the (registry, ledger) pair behind one mutex. A
// background poll loop wakes in short increments, and when any recipient is
// due it runs a due-scan: one pass over all recipients, performing a single
// synchronous delivery attempt for each due one before moving on. One slow
// transport call therefore delays the rest of the tick; acceptable at the
// recipient counts this bot serves.
//
// # Per-recipient states
//
//   - Scheduled: has a next-eligible time; attempted once
//     now >= next + min_send_interval has passed.
//   - Blocked: terminal. Entered on a permanent transport failure
//     (recipient revoked access); retained for audit, never rescheduled.
//
// Catalog exhaustion is not a state of its own: the recipient stays
// Scheduled and keeps finding no content until new items become available
// (or is parked on the never sentinel, depending on policy).
//
// Every state mutation is persisted before the in-memory copy is updated;
// a failed write aborts the tick instead of leaving memory ahead of disk.
package scheduler
