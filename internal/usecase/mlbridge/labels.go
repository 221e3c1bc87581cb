package mlbridge

import (
	"context"
	"fmt"

	"github.com/bkyoung/review-bridge/internal/domain"
	"github.com/bkyoung/review-bridge/internal/forge"
	"github.com/bkyoung/review-bridge/internal/scheduler"
)

// labelItem reconciles the forge repository's labels with the configured
// mailing lists: one label per list, described by the list address. Labels
// outside the derived set are left alone.
type labelItem struct {
	bot *Bot
}

func (i *labelItem) ID() string {
	return "mlbridge-labels/" + i.bot.repo.Name()
}

func (i *labelItem) ConcurrentWith(other scheduler.WorkItem) bool {
	o, ok := other.(*labelItem)
	if !ok {
		return true
	}
	return i.bot.repo.Name() != o.bot.repo.Name()
}

func (i *labelItem) Run(ctx context.Context, scratch string) ([]scheduler.WorkItem, error) {
	return nil, i.bot.updateLabels(ctx)
}

func (i *labelItem) HandleError(err error) {
	i.bot.log.WithError(err).Error("label update failed")
}

func (b *Bot) updateLabels(ctx context.Context) error {
	existing, err := b.repo.Labels(ctx)
	if err != nil {
		return fmt.Errorf("%w: list labels: %v", domain.ErrTransient, err)
	}
	byName := make(map[string]forge.Label, len(existing))
	for _, l := range existing {
		byName[l.Name] = l
	}

	for _, list := range b.cfg.allLists() {
		want := forge.Label{Name: list.Name, Description: list.Email}
		have, ok := byName[want.Name]
		if !ok {
			if err := b.repo.CreateLabel(ctx, want); err != nil {
				return fmt.Errorf("%w: create label %s: %v", domain.ErrTransient, want.Name, err)
			}
			continue
		}
		if have.Description != want.Description {
			if err := b.repo.UpdateLabel(ctx, want); err != nil {
				return fmt.Errorf("%w: update label %s: %v", domain.ErrTransient, want.Name, err)
			}
		}
	}
	return nil
}
