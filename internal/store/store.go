// Package store owns all writes to the crawler's tables: tweets, analysis
// jobs, checkpoints, reanalysis requests, crawl runs and the API error log.
// Idempotency comes from uniqueness constraints, not transactions: re-ingesting
// a known tweet or re-enqueuing an existing job is a no-op.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/moodwatch/moodwatch/pkg/twitter"
)

// Store is the persistence interface.
type Store interface {
	ActiveAccounts(ctx context.Context) ([]Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	AddAccount(ctx context.Context, username, displayName string) (int64, error)
	UpdateAccountProfile(ctx context.Context, username string, profile twitter.User) error

	EnabledModelIDs(ctx context.Context) ([]int64, error)
	AddModel(ctx context.Context, name string, enabled bool) (int64, error)

	Checkpoint(ctx context.Context, accountID int64) (*time.Time, error)
	SetCheckpoint(ctx context.Context, accountID int64, ts time.Time) error

	IngestTweets(ctx context.Context, accountID int64, tweets []twitter.Tweet, modelIDs []int64) (inserted, enqueued int64, latest time.Time, err error)
	EnqueueForTweet(ctx context.Context, tweetID int64, modelIDs []int64) (int64, error)
	EnqueueForAccount(ctx context.Context, accountID int64, modelIDs []int64) (int64, error)
	EnqueueForAll(ctx context.Context, modelIDs []int64) (int64, error)
	ReconcileJobs(ctx context.Context, modelIDs []int64) (int64, error)

	RequestReanalysis(ctx context.Context, reqType string, tweetID, accountID *int64) (int64, error)
	PendingReanalysis(ctx context.Context, limit int) ([]ReanalysisRequest, error)
	ReclaimStaleReanalysis(ctx context.Context, olderThan time.Duration) (int64, error)
	MarkReanalysisProcessing(ctx context.Context, id int64) error
	MarkReanalysisCompleted(ctx context.Context, id int64) error

	StartRun(ctx context.Context) (int64, error)
	FinishRun(ctx context.Context, runID int64, status string, fetched, queued int64, errs []RunError) error
	InsertAPIError(ctx context.Context, kind, message, code, endpoint string) error
	RecentRuns(ctx context.Context, limit int) ([]CrawlRun, error)
	RecentErrors(ctx context.Context, limit int) ([]APIErrorRecord, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ActiveAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.db.SelectContext(ctx, &accounts, `
		SELECT id, twitter_id, username, display_name, avatar_url, follower_count, following_count, is_active
		FROM accounts
		WHERE is_active = 1
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load active accounts: %w", err)
	}
	return accounts, nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.db.SelectContext(ctx, &accounts, `
		SELECT id, twitter_id, username, display_name, avatar_url, follower_count, following_count, is_active
		FROM accounts
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (s *SQLiteStore) AddAccount(ctx context.Context, username, displayName string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (username, display_name) VALUES (?, ?)",
		username, displayName)
	if err != nil {
		return 0, fmt.Errorf("add account %s: %w", username, err)
	}
	return res.LastInsertId()
}

// UpdateAccountProfile refreshes the denormalized profile columns from an
// API lookup. Empty API fields leave the stored value untouched.
func (s *SQLiteStore) UpdateAccountProfile(ctx context.Context, username string, profile twitter.User) error {
	var followers, following any
	if profile.PublicMetrics != nil {
		followers = profile.PublicMetrics.FollowersCount
		following = profile.PublicMetrics.FollowingCount
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET twitter_id      = COALESCE(NULLIF(?, ''), twitter_id),
		    display_name    = COALESCE(NULLIF(?, ''), display_name),
		    avatar_url      = COALESCE(NULLIF(?, ''), avatar_url),
		    follower_count  = COALESCE(?, follower_count),
		    following_count = COALESCE(?, following_count),
		    updated_at      = strftime('%Y-%m-%dT%H:%M:%SZ','now')
		WHERE username = ?`,
		profile.ID, profile.Name, profile.ProfileImageURL, followers, following, username)
	if err != nil {
		return fmt.Errorf("update account %s: %w", username, err)
	}
	return nil
}

func (s *SQLiteStore) EnabledModelIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, "SELECT id FROM llm_models WHERE is_enabled = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("load enabled models: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) AddModel(ctx context.Context, name string, enabled bool) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO llm_models (name, is_enabled) VALUES (?, ?)", name, enabled)
	if err != nil {
		return 0, fmt.Errorf("add model %s: %w", name, err)
	}
	return res.LastInsertId()
}

// Checkpoint returns the last-seen tweet timestamp for an account, or nil
// when none is recorded. An unparseable stored value is treated as missing.
func (s *SQLiteStore) Checkpoint(ctx context.Context, accountID int64) (*time.Time, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw,
		"SELECT last_tweet_timestamp FROM checkpoints WHERE account_id = ?", accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint for account %d: %w", accountID, err)
	}

	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, nil
	}
	ts = ts.UTC()
	return &ts, nil
}

func (s *SQLiteStore) SetCheckpoint(ctx context.Context, accountID int64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (account_id, last_tweet_timestamp, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		ON CONFLICT(account_id) DO UPDATE SET
			last_tweet_timestamp = excluded.last_tweet_timestamp,
			updated_at = excluded.updated_at`,
		accountID, ts.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set checkpoint for account %d: %w", accountID, err)
	}
	return nil
}

// IngestTweets inserts fetched tweets idempotently and fans each newly
// inserted tweet out into the analysis queue. The returned latest timestamp
// covers all input tweets, including already-known ones, so the caller can
// advance the checkpoint even when nothing new was stored.
func (s *SQLiteStore) IngestTweets(ctx context.Context, accountID int64, tweets []twitter.Tweet, modelIDs []int64) (int64, int64, time.Time, error) {
	var inserted, enqueued int64
	var latest time.Time

	for _, tweet := range tweets {
		if tweet.CreatedAt.After(latest) {
			latest = tweet.CreatedAt
		}

		engagement := map[string]int64{"likes": 0, "retweets": 0, "replies": 0, "quotes": 0}
		if m := tweet.PublicMetrics; m != nil {
			engagement["likes"] = m.LikeCount
			engagement["retweets"] = m.RetweetCount
			engagement["replies"] = m.ReplyCount
			engagement["quotes"] = m.QuoteCount
		}
		engagementJSON, _ := json.Marshal(engagement)

		res, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO tweets
			(account_id, tweet_id, content, tweet_timestamp, engagement_metrics, is_retweet, is_reply)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			accountID, tweet.ID, tweet.Text, tweet.CreatedAt.UTC().Format(time.RFC3339),
			string(engagementJSON), tweet.IsRetweet(), tweet.IsReply())
		if err != nil {
			return inserted, enqueued, latest, fmt.Errorf("insert tweet %s: %w", tweet.ID, err)
		}

		changes, err := res.RowsAffected()
		if err != nil {
			return inserted, enqueued, latest, fmt.Errorf("insert tweet %s: %w", tweet.ID, err)
		}
		if changes == 0 {
			continue
		}
		inserted++

		rowID, err := res.LastInsertId()
		if err != nil {
			return inserted, enqueued, latest, fmt.Errorf("insert tweet %s: %w", tweet.ID, err)
		}
		jobs, err := s.enqueueJobs(ctx, rowID, modelIDs)
		if err != nil {
			return inserted, enqueued, latest, err
		}
		enqueued += jobs
	}

	return inserted, enqueued, latest, nil
}

func (s *SQLiteStore) EnqueueForTweet(ctx context.Context, tweetID int64, modelIDs []int64) (int64, error) {
	return s.enqueueJobs(ctx, tweetID, modelIDs)
}

func (s *SQLiteStore) EnqueueForAccount(ctx context.Context, accountID int64, modelIDs []int64) (int64, error) {
	var tweetIDs []int64
	err := s.db.SelectContext(ctx, &tweetIDs, "SELECT id FROM tweets WHERE account_id = ?", accountID)
	if err != nil {
		return 0, fmt.Errorf("list tweets for account %d: %w", accountID, err)
	}

	var jobs int64
	for _, id := range tweetIDs {
		n, err := s.enqueueJobs(ctx, id, modelIDs)
		if err != nil {
			return jobs, err
		}
		jobs += n
	}
	return jobs, nil
}

func (s *SQLiteStore) EnqueueForAll(ctx context.Context, modelIDs []int64) (int64, error) {
	var tweetIDs []int64
	if err := s.db.SelectContext(ctx, &tweetIDs, "SELECT id FROM tweets"); err != nil {
		return 0, fmt.Errorf("list tweets: %w", err)
	}

	var jobs int64
	for _, id := range tweetIDs {
		n, err := s.enqueueJobs(ctx, id, modelIDs)
		if err != nil {
			return jobs, err
		}
		jobs += n
	}
	return jobs, nil
}

// ReconcileJobs creates the analysis jobs that should exist but do not: one
// per (tweet, enabled model), or one null-model job per tweet when no model
// is enabled. Run at cycle start, it closes the crash window between a tweet
// insert and its job creation.
func (s *SQLiteStore) ReconcileJobs(ctx context.Context, modelIDs []int64) (int64, error) {
	targets := []any{nil}
	if len(modelIDs) > 0 {
		targets = targets[:0]
		for _, id := range modelIDs {
			targets = append(targets, id)
		}
	}

	var created int64
	for _, modelID := range targets {
		res, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO analysis_queue (tweet_id, llm_model_id)
			SELECT id, ? FROM tweets`, modelID)
		if err != nil {
			return created, fmt.Errorf("reconcile analysis jobs: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return created, fmt.Errorf("reconcile analysis jobs: %w", err)
		}
		created += n
	}
	return created, nil
}

func (s *SQLiteStore) enqueueJobs(ctx context.Context, tweetID int64, modelIDs []int64) (int64, error) {
	if len(modelIDs) == 0 {
		return s.enqueueJob(ctx, tweetID, nil)
	}

	var jobs int64
	for _, modelID := range modelIDs {
		n, err := s.enqueueJob(ctx, tweetID, modelID)
		if err != nil {
			return jobs, err
		}
		jobs += n
	}
	return jobs, nil
}

func (s *SQLiteStore) enqueueJob(ctx context.Context, tweetID int64, modelID any) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO analysis_queue (tweet_id, llm_model_id) VALUES (?, ?)",
		tweetID, modelID)
	if err != nil {
		return 0, fmt.Errorf("enqueue job for tweet %d: %w", tweetID, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) RequestReanalysis(ctx context.Context, reqType string, tweetID, accountID *int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO reanalysis_requests (request_type, tweet_id, account_id) VALUES (?, ?, ?)",
		reqType, tweetID, accountID)
	if err != nil {
		return 0, fmt.Errorf("request reanalysis: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) PendingReanalysis(ctx context.Context, limit int) ([]ReanalysisRequest, error) {
	var requests []ReanalysisRequest
	err := s.db.SelectContext(ctx, &requests, `
		SELECT id, request_type, tweet_id, account_id
		FROM reanalysis_requests
		WHERE status = 'pending'
		ORDER BY requested_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("load pending reanalysis requests: %w", err)
	}
	return requests, nil
}

// ReclaimStaleReanalysis moves requests stuck in processing back to pending.
// A request claimed longer than olderThan ago is assumed abandoned by a
// crashed cycle. Staleness counts from the claim, not the request, so a
// request orphaned right after being claimed waits only one window.
func (s *SQLiteStore) ReclaimStaleReanalysis(ctx context.Context, olderThan time.Duration) (int64, error) {
	modifier := fmt.Sprintf("-%d seconds", int64(olderThan.Seconds()))
	res, err := s.db.ExecContext(ctx, `
		UPDATE reanalysis_requests
		SET status = 'pending',
		    claimed_at = NULL
		WHERE status = 'processing'
		  AND COALESCE(claimed_at, requested_at) <= strftime('%Y-%m-%dT%H:%M:%SZ','now', ?)`, modifier)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale reanalysis requests: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) MarkReanalysisProcessing(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reanalysis_requests
		SET status = 'processing',
		    claimed_at = strftime('%Y-%m-%dT%H:%M:%SZ','now')
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark reanalysis %d processing: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) MarkReanalysisCompleted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reanalysis_requests
		SET status = 'completed',
		    processed_at = strftime('%Y-%m-%dT%H:%M:%SZ','now')
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark reanalysis %d completed: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) StartRun(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO crawl_runs (status) VALUES (?)", RunRunning)
	if err != nil {
		return 0, fmt.Errorf("start crawl run: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID int64, status string, fetched, queued int64, errs []RunError) error {
	var details any
	if len(errs) > 0 {
		raw, err := json.Marshal(errs)
		if err != nil {
			return fmt.Errorf("serialize run %d errors: %w", runID, err)
		}
		details = string(raw)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE crawl_runs
		SET status = ?,
		    completed_at = strftime('%Y-%m-%dT%H:%M:%SZ','now'),
		    tweets_fetched = ?,
		    jobs_queued = ?,
		    errors_count = ?,
		    error_details = ?
		WHERE id = ?`,
		status, fetched, queued, len(errs), details, runID)
	if err != nil {
		return fmt.Errorf("finish crawl run %d: %w", runID, err)
	}
	return nil
}

func (s *SQLiteStore) InsertAPIError(ctx context.Context, kind, message, code, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_errors (error_type, error_message, error_code, endpoint, resolved)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), 0)`,
		kind, message, code, endpoint)
	if err != nil {
		return fmt.Errorf("insert api error: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]CrawlRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []CrawlRun
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, status, tweets_fetched, jobs_queued, errors_count, error_details, started_at, completed_at
		FROM crawl_runs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list crawl runs: %w", err)
	}
	return runs, nil
}

func (s *SQLiteStore) RecentErrors(ctx context.Context, limit int) ([]APIErrorRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []APIErrorRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, error_type, error_message, error_code, endpoint, occurred_at, resolved
		FROM api_errors
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list api errors: %w", err)
	}
	return records, nil
}
