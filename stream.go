package pdf2md

import (
	"context"
	"sort"
)

// ConvertStream converts a PDF and delivers each page over a channel as it
// completes, instead of waiting for the whole document.
//
// Setup failures (bad input, no provider, wrong password) are returned
// synchronously. After that the channel yields exactly one StreamEvent per
// selected page and is then closed. When MaintainFormat is off, events
// arrive in completion order, not page order; consumers that need page
// order must sort. Cancelling the context stops outstanding work and closes
// the channel early.
func (c *Converter) ConvertStream(ctx context.Context, input string) (<-chan StreamEvent, error) {
	cfg := &c.cfg
	log.WithField("input", input).Info("starting streaming conversion")

	path, cleanup, err := resolveInput(ctx, input, cfg)
	if err != nil {
		return nil, err
	}

	prov, err := resolveProvider(cfg)
	if err != nil {
		cleanup()
		return nil, err
	}

	doc, err := openDocument(path, cfg.Password)
	if err != nil {
		cleanup()
		return nil, err
	}

	meta := doc.metadata()
	selected, err := cfg.Pages.resolve(meta.PageCount)
	if err != nil {
		doc.close()
		cleanup()
		return nil, err
	}

	events := make(chan StreamEvent, cfg.effectiveConcurrency())

	go func() {
		defer close(events)
		defer cleanup()
		defer doc.close()

		obs := cfg.observer()
		obs.ConversionStarted(len(selected))

		emit := func(pr *PageResult) {
			ev := StreamEvent{PageNum: pr.PageNum}
			if pr.Err != nil {
				ev.Err = pr.Err
			} else {
				ev.Page = pr
			}
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		pages, _ := c.runPipeline(ctx, prov, doc, selected, emit)

		processed := 0
		for _, p := range pages {
			if p.Err == nil {
				processed++
			}
		}
		obs.ConversionCompleted(len(selected), processed)
	}()

	return events, nil
}

// CollectStream drains a ConvertStream channel into page-ordered results.
// A convenience for callers that want streaming progress but an ordered
// document at the end.
func CollectStream(events <-chan StreamEvent) []PageResult {
	var pages []PageResult
	for ev := range events {
		if ev.Page != nil {
			pages = append(pages, *ev.Page)
		} else {
			pages = append(pages, PageResult{PageNum: ev.PageNum, Err: ev.Err})
		}
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNum < pages[j].PageNum })
	return pages
}
