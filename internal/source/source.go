// Package source defines where unread items come from and provides the YAML
// mailbox implementation. The SQL implementation lives in package store.
package source

import (
	"context"

	"github.com/phrazzld/mailroom/internal/domain"
)

// Source is the capability every mailbox backend offers.
type Source interface {
	// ListUnprocessed returns unread items, oldest first.
	ListUnprocessed(ctx context.Context) ([]domain.Item, error)
	// MarkRead flags items as handled so they are not listed again. Unknown
	// ids are ignored.
	MarkRead(ctx context.Context, ids []string) error
	// Search returns items whose sender, subject or body contains query,
	// case-insensitively.
	Search(ctx context.Context, query string) ([]domain.Item, error)
}
