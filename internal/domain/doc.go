// Package domain contains the core entities of the triage pipeline: inbound
// items (emails), the drafts generated for them, and the review state each
// item moves through. It is independent of any scheduler, store or model
// backend.
package domain
