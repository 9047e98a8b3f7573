// Package review tracks every item of a triage batch through review.
//
// A Tracker keeps three disjoint queues: items waiting for their first look
// (unprocessed), items whose refinement just finished (refined-ready), and
// items the reviewer has accepted or skipped (completed). Next prefers
// refined-ready over unprocessed. Independently of the queues, a fixed
// sequence of all items supports back and forward navigation.
//
// Callers receive copies of domain.QueueItem; all mutation goes through the
// Tracker's methods.
package review
