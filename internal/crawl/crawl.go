// Package crawl orchestrates one crawl cycle: drain reanalysis requests,
// resolve account profiles, fetch each account's new tweets from its
// checkpoint forward, ingest and fan out analysis jobs, and record the run.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/moodwatch/moodwatch/internal/store"
	"github.com/moodwatch/moodwatch/pkg/twitter"
)

// API is the subset of the Twitter client the crawler needs.
type API interface {
	LookupUsers(ctx context.Context, usernames []string) (twitter.UsersResult, error)
	UserTweets(ctx context.Context, userID string, startTime time.Time) (twitter.TweetsResult, error)
}

// Options configures a Crawler.
type Options struct {
	// HistoryDepthDays bounds how far back the first fetch for an account
	// reaches.
	HistoryDepthDays int

	// ReanalysisBatch caps how many pending reanalysis requests one cycle
	// drains.
	ReanalysisBatch int

	// StaleReanalysisAge is how long a request may sit in processing before
	// it is reclaimed as abandoned.
	StaleReanalysisAge time.Duration
}

// Crawler runs crawl cycles against a store and the Twitter API.
type Crawler struct {
	store store.Store
	api   API
	opts  Options
}

// New creates a Crawler. Zero option fields get defaults.
func New(st store.Store, api API, opts Options) *Crawler {
	if opts.HistoryDepthDays == 0 {
		opts.HistoryDepthDays = 90
	}
	if opts.ReanalysisBatch == 0 {
		opts.ReanalysisBatch = 25
	}
	if opts.StaleReanalysisAge == 0 {
		opts.StaleReanalysisAge = time.Hour
	}
	return &Crawler{store: st, api: api, opts: opts}
}

// errShutdown signals a cooperative stop observed at a poll point. The cycle
// ends with a failed run record but no error propagates: inserted rows and
// advanced checkpoints stay valid.
var errShutdown = errors.New("shutdown requested")

// cycle accumulates the state of one run. Counts only ever grow.
type cycle struct {
	status  string
	fetched int64
	queued  int64
	errs    []store.RunError
}

// RunCycle executes one full crawl cycle and records its outcome as a crawl
// run. Bookkeeping writes use a background context so a cancelled ctx cannot
// prevent the final run record from being persisted.
func (c *Crawler) RunCycle(ctx context.Context) error {
	fmt.Fprintln(os.Stderr, "crawl: starting cycle")

	runID, err := c.store.StartRun(context.Background())
	if err != nil {
		return storeErr("start crawl run", err)
	}

	cy := &cycle{status: store.RunCompleted}
	cycleErr := c.perform(ctx, cy)
	if cycleErr != nil {
		cy.status = store.RunFailed
		c.recordError(cy, Classify(cycleErr), fmt.Sprintf("crawl cycle error: %v", cycleErr), "", "")
	}

	if err := c.store.FinishRun(context.Background(), runID, cy.status, cy.fetched, cy.queued, cy.errs); err != nil {
		if cycleErr != nil {
			fmt.Fprintf(os.Stderr, "crawl: failed to finish run %d: %v\n", runID, err)
			return cycleErr
		}
		return storeErr(fmt.Sprintf("finish crawl run %d", runID), err)
	}

	return cycleErr
}

// perform runs the body of one cycle. Store operations deliberately take a
// background context: shutdown is observed at poll points, never by
// interrupting a persistence call, so rows and checkpoints written before
// the stop remain consistent.
func (c *Crawler) perform(ctx context.Context, cy *cycle) error {
	bg := context.Background()

	models, err := c.store.EnabledModelIDs(bg)
	if err != nil {
		return storeErr("load enabled models", err)
	}

	if n, err := c.store.ReconcileJobs(bg, models); err != nil {
		c.recordError(cy, KindStore, fmt.Sprintf("job reconciliation failed: %v", err), "", "")
	} else if n > 0 {
		fmt.Fprintf(os.Stderr, "crawl: reconciled %d missing analysis jobs\n", n)
	}

	if err := c.drainReanalysis(ctx, cy, models); err != nil {
		if errors.Is(err, errShutdown) {
			return nil
		}
		return err
	}

	accounts, err := c.store.ActiveAccounts(bg)
	if err != nil {
		return storeErr("load active accounts", err)
	}
	if len(accounts) == 0 {
		fmt.Fprintln(os.Stderr, "crawl: no active accounts")
		return nil
	}

	if ctx.Err() != nil {
		cy.status = store.RunFailed
		c.recordError(cy, KindOther, "shutdown requested", "", "")
		return nil
	}

	usernames := make([]string, len(accounts))
	for i, account := range accounts {
		usernames[i] = account.Username
	}

	lookup, err := c.api.LookupUsers(ctx, usernames)
	if err != nil {
		return err
	}
	for _, perr := range lookup.Errors {
		c.recordError(cy, KindAPIChange, perr.Message(), perr.Type, "/2/users/by")
	}

	byUsername := make(map[string]twitter.User, len(lookup.Users))
	for _, user := range lookup.Users {
		byUsername[user.Username] = user
	}

	floor := time.Now().UTC().AddDate(0, 0, -c.opts.HistoryDepthDays)

	for _, account := range accounts {
		if ctx.Err() != nil {
			cy.status = store.RunFailed
			c.recordError(cy, KindOther, "shutdown requested", "", "")
			return nil
		}

		user, ok := byUsername[account.Username]
		if !ok {
			c.recordError(cy, KindAPIChange,
				fmt.Sprintf("twitter user not found: @%s", account.Username), "", "/2/users/by")
			continue
		}

		if err := c.store.UpdateAccountProfile(bg, account.Username, user); err != nil {
			return storeErr(fmt.Sprintf("update profile @%s", account.Username), err)
		}

		checkpoint, err := c.store.Checkpoint(bg, account.ID)
		if err != nil {
			return storeErr(fmt.Sprintf("get checkpoint @%s", account.Username), err)
		}
		start := NextWindowStart(checkpoint, floor)

		fetch, err := c.api.UserTweets(ctx, user.ID, start)
		if err != nil {
			c.recordError(cy, Classify(err),
				fmt.Sprintf("failed fetching tweets for @%s: %v", account.Username, err),
				"", "/2/users/:id/tweets")
			if abortCycle(err) {
				cy.status = store.RunFailed
				return err
			}
			continue
		}
		for _, perr := range fetch.Errors {
			c.recordError(cy, KindAPIChange, perr.Message(), perr.Type, "/2/users/:id/tweets")
		}

		inserted, enqueued, latest, err := c.store.IngestTweets(bg, account.ID, fetch.Tweets, models)
		if err != nil {
			return storeErr(fmt.Sprintf("ingest tweets @%s", account.Username), err)
		}
		cy.fetched += inserted
		cy.queued += enqueued

		// Advance the checkpoint past everything seen, new or not, so the
		// next window does not re-scan known tweets.
		if !latest.IsZero() {
			if err := c.store.SetCheckpoint(bg, account.ID, latest); err != nil {
				return storeErr(fmt.Sprintf("set checkpoint @%s", account.Username), err)
			}
		}
	}

	fmt.Fprintf(os.Stderr, "crawl: cycle complete: %d tweets fetched, %d analysis jobs queued\n",
		cy.fetched, cy.queued)
	return nil
}

// recordError appends one error to the run's error list and mirrors it into
// the standalone api_errors log. A failure of the mirror write is only
// logged so it never masks the error being recorded.
func (c *Crawler) recordError(cy *cycle, kind ErrorKind, message, code, endpoint string) {
	cy.errs = append(cy.errs, store.RunError{
		Type:      string(kind),
		Message:   message,
		Code:      code,
		Endpoint:  endpoint,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	if err := c.store.InsertAPIError(context.Background(), string(kind), message, code, endpoint); err != nil {
		fmt.Fprintf(os.Stderr, "crawl: failed to record api error: %v\n", err)
	}
}
