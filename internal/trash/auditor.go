// Package trash counts soft-deleted vault items. Trashed items are not
// part of an export, so the operator is warned when any exist.
package trash

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/vaultbak/internal/agent"
	vberrors "github.com/randalmurphal/vaultbak/internal/errors"
)

// Auditor queries the agent for trashed items.
type Auditor struct {
	client agent.Client
	logger *slog.Logger
}

// NewAuditor creates an Auditor.
func NewAuditor(client agent.Client, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{client: client, logger: logger}
}

// Count returns the number of items currently in the trash.
func (a *Auditor) Count(ctx context.Context, sess agent.Session) (int, error) {
	items, err := a.client.ListItems(ctx, sess, true)
	if err != nil {
		return 0, vberrors.ErrAgent("list trash", err)
	}
	a.logger.Debug("trash counted", "items", len(items))
	return len(items), nil
}

// Warning returns the operator warning for count trashed items, and
// false when there is nothing to warn about.
func Warning(count int) (string, bool) {
	if count <= 0 {
		return "", false
	}
	noun := "items"
	if count == 1 {
		noun = "item"
	}
	return fmt.Sprintf("%d %s in the trash will not be included in this backup; restore them first if they should be kept", count, noun), true
}
