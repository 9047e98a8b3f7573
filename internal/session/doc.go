// Package session tracks the multi-turn refinement session of each item:
// turn count, the backend's resume handle, and accumulated cost and
// duration. Only these metrics are persisted, never the conversation text.
package session
