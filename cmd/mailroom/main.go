// Package main implements the mailroom command line: it pulls unread mail
// from the configured source, generates summaries and reply drafts, applies
// scripted review decisions and exports the accepted replies.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
