package crawl

import (
	"context"
	"fmt"
	"os"

	"github.com/moodwatch/moodwatch/internal/store"
)

// drainReanalysis claims up to one batch of pending reanalysis requests,
// oldest first, and dispatches each by type. A request is marked completed
// once handled, whether or not its dispatch succeeded; dispatch failures are
// recorded as run errors and the drain continues. ctx is only polled for
// shutdown; store work runs to completion.
func (c *Crawler) drainReanalysis(ctx context.Context, cy *cycle, modelIDs []int64) error {
	bg := context.Background()

	if n, err := c.store.ReclaimStaleReanalysis(bg, c.opts.StaleReanalysisAge); err != nil {
		c.recordError(cy, KindStore, fmt.Sprintf("reclaim stale reanalysis requests: %v", err), "", "")
	} else if n > 0 {
		fmt.Fprintf(os.Stderr, "crawl: reclaimed %d abandoned reanalysis requests\n", n)
	}

	requests, err := c.store.PendingReanalysis(bg, c.opts.ReanalysisBatch)
	if err != nil {
		return storeErr("load pending reanalysis requests", err)
	}

	for _, req := range requests {
		if ctx.Err() != nil {
			cy.status = store.RunFailed
			c.recordError(cy, KindOther, "shutdown requested", "", "")
			return errShutdown
		}

		if err := c.store.MarkReanalysisProcessing(bg, req.ID); err != nil {
			return storeErr(fmt.Sprintf("mark reanalysis %d processing", req.ID), err)
		}

		if err := c.dispatchReanalysis(bg, req, modelIDs); err != nil {
			c.recordError(cy, Classify(err),
				fmt.Sprintf("failed reanalysis request %d: %v", req.ID, err), "", "")
		}

		if err := c.store.MarkReanalysisCompleted(bg, req.ID); err != nil {
			return storeErr(fmt.Sprintf("mark reanalysis %d completed", req.ID), err)
		}
	}

	return nil
}

func (c *Crawler) dispatchReanalysis(ctx context.Context, req store.ReanalysisRequest, modelIDs []int64) error {
	switch req.Type {
	case store.ReanalyzeTweet:
		if req.TweetID == nil {
			return &ConfigError{Message: fmt.Sprintf("reanalysis request %d has no tweet id", req.ID)}
		}
		if _, err := c.store.EnqueueForTweet(ctx, *req.TweetID, modelIDs); err != nil {
			return storeErr(fmt.Sprintf("enqueue reanalysis for tweet %d", *req.TweetID), err)
		}
	case store.ReanalyzeAccount:
		if req.AccountID == nil {
			return &ConfigError{Message: fmt.Sprintf("reanalysis request %d has no account id", req.ID)}
		}
		if _, err := c.store.EnqueueForAccount(ctx, *req.AccountID, modelIDs); err != nil {
			return storeErr(fmt.Sprintf("enqueue reanalysis for account %d", *req.AccountID), err)
		}
	case store.ReanalyzeAll:
		if _, err := c.store.EnqueueForAll(ctx, modelIDs); err != nil {
			return storeErr("enqueue reanalysis for all tweets", err)
		}
	default:
		return &ConfigError{Message: fmt.Sprintf("unknown reanalysis request type: %s", req.Type)}
	}
	return nil
}
