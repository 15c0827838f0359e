// Package attachment retrieves every file attached to vault items into
// the export tree at attachments/<item name>/<file name>.
package attachment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/randalmurphal/vaultbak/internal/agent"
	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
	"github.com/randalmurphal/vaultbak/internal/export"
)

// DirName is the subdirectory of the export root holding attachments.
const DirName = "attachments"

// Result summarizes a FetchAll pass.
type Result struct {
	// Fetched lists destination paths written, in retrieval order.
	Fetched []string
	// Failures holds one attachment error per failed retrieval. A
	// cancelled context ends the pass with a final fatal agent error.
	Failures []*vberrors.VaultError
}

// Fetcher lists and retrieves attachments.
type Fetcher struct {
	client agent.Client
	logger *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(client agent.Client, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, logger: logger}
}

// ListItemsWithAttachments returns the vault items that carry at least
// one attachment.
func (f *Fetcher) ListItemsWithAttachments(ctx context.Context, sess agent.Session) ([]agent.Item, error) {
	items, err := f.client.ListItems(ctx, sess, false)
	if err != nil {
		return nil, vberrors.ErrAgent("list items", err)
	}
	var withAttachments []agent.Item
	for _, item := range items {
		if len(item.Attachments) > 0 {
			withAttachments = append(withAttachments, item)
		}
	}
	return withAttachments, nil
}

// Destination returns the deterministic path for one attachment.
func Destination(root string, item agent.Item, att agent.Attachment) string {
	return filepath.Join(root, DirName, itemDirName(item), export.SanitizeName(att.FileName))
}

func itemDirName(item agent.Item) string {
	if item.Name == "" {
		return export.SanitizeName(item.ID)
	}
	return export.SanitizeName(item.Name)
}

// FetchAll retrieves every attachment of every item. A failed retrieval
// is recorded and the remaining attachments are still fetched, unless
// ctx is cancelled.
func (f *Fetcher) FetchAll(ctx context.Context, sess agent.Session, root string, items []agent.Item) Result {
	var res Result
	for _, item := range items {
		for _, att := range item.Attachments {
			if err := ctx.Err(); err != nil {
				res.Failures = append(res.Failures, vberrors.ErrAgent("get attachment", err))
				return res
			}
			dest := Destination(root, item, att)
			if err := f.fetch(ctx, sess, item, att, dest); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					res.Failures = append(res.Failures, vberrors.ErrAgent("get attachment", ctxErr))
					return res
				}
				f.logger.Warn("attachment retrieval failed", "item", item.Name, "file", att.FileName, "error", err)
				res.Failures = append(res.Failures, vberrors.ErrAttachment(item.Name, att.FileName, err))
				continue
			}
			res.Fetched = append(res.Fetched, dest)
		}
	}
	return res
}

func (f *Fetcher) fetch(ctx context.Context, sess agent.Session, item agent.Item, att agent.Attachment, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return fmt.Errorf("create attachment directory: %w", err)
	}
	f.logger.Debug("fetching attachment", "item", item.Name, "file", att.FileName)
	return f.client.GetAttachment(ctx, sess, att.FileName, item.ID, dest)
}
