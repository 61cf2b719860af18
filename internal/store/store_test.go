package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/moodwatch/moodwatch/pkg/twitter"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addAccount(t *testing.T, s *SQLiteStore, username string) int64 {
	t.Helper()
	id, err := s.AddAccount(context.Background(), username, username)
	if err != nil {
		t.Fatalf("AddAccount(%s): %v", username, err)
	}
	return id
}

func addModel(t *testing.T, s *SQLiteStore, name string, enabled bool) int64 {
	t.Helper()
	id, err := s.AddModel(context.Background(), name, enabled)
	if err != nil {
		t.Fatalf("AddModel(%s): %v", name, err)
	}
	return id
}

func mkTweet(id string, ts time.Time) twitter.Tweet {
	return twitter.Tweet{
		ID:        id,
		Text:      "tweet " + id,
		CreatedAt: ts,
		PublicMetrics: &twitter.TweetMetrics{
			LikeCount: 3, RetweetCount: 1,
		},
	}
}

func queueSize(t *testing.T, s *SQLiteStore) int64 {
	t.Helper()
	var n int64
	if err := s.db.Get(&n, "SELECT COUNT(*) FROM analysis_queue"); err != nil {
		t.Fatalf("count analysis_queue: %v", err)
	}
	return n
}

func TestNewAppliesPragmas(t *testing.T) {
	s := newTestStore(t)

	var mode string
	if err := s.db.Get(&mode, "PRAGMA journal_mode"); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var timeout int64
	if err := s.db.Get(&timeout, "PRAGMA busy_timeout"); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}

func TestIngestTweets(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("inserts new tweets and fans out one job per model", func(t *testing.T) {
		s := newTestStore(t)
		acct := addAccount(t, s, "alice")
		m1 := addModel(t, s, "model-a", true)
		m2 := addModel(t, s, "model-b", true)

		inserted, enqueued, latest, err := s.IngestTweets(ctx, acct,
			[]twitter.Tweet{mkTweet("100", base), mkTweet("101", base.Add(time.Minute))},
			[]int64{m1, m2})
		if err != nil {
			t.Fatalf("IngestTweets: %v", err)
		}
		if inserted != 2 {
			t.Errorf("inserted = %d, want 2", inserted)
		}
		if enqueued != 4 {
			t.Errorf("enqueued = %d, want 4", enqueued)
		}
		if !latest.Equal(base.Add(time.Minute)) {
			t.Errorf("latest = %v, want %v", latest, base.Add(time.Minute))
		}
	})

	t.Run("re-ingesting known tweets is a no-op", func(t *testing.T) {
		s := newTestStore(t)
		acct := addAccount(t, s, "alice")
		m1 := addModel(t, s, "model-a", true)

		tweets := []twitter.Tweet{mkTweet("100", base)}
		if _, _, _, err := s.IngestTweets(ctx, acct, tweets, []int64{m1}); err != nil {
			t.Fatalf("first IngestTweets: %v", err)
		}

		inserted, enqueued, latest, err := s.IngestTweets(ctx, acct, tweets, []int64{m1})
		if err != nil {
			t.Fatalf("second IngestTweets: %v", err)
		}
		if inserted != 0 || enqueued != 0 {
			t.Errorf("inserted = %d, enqueued = %d, want 0 and 0", inserted, enqueued)
		}
		// Latest still covers the duplicate, so the checkpoint can advance.
		if !latest.Equal(base) {
			t.Errorf("latest = %v, want %v", latest, base)
		}
		if n := queueSize(t, s); n != 1 {
			t.Errorf("queue size = %d, want 1", n)
		}
	})

	t.Run("no enabled models yields one null-model job per tweet", func(t *testing.T) {
		s := newTestStore(t)
		acct := addAccount(t, s, "alice")

		inserted, enqueued, _, err := s.IngestTweets(ctx, acct,
			[]twitter.Tweet{mkTweet("100", base)}, nil)
		if err != nil {
			t.Fatalf("IngestTweets: %v", err)
		}
		if inserted != 1 || enqueued != 1 {
			t.Errorf("inserted = %d, enqueued = %d, want 1 and 1", inserted, enqueued)
		}
	})

	t.Run("nil metrics stores zeroed engagement", func(t *testing.T) {
		s := newTestStore(t)
		acct := addAccount(t, s, "alice")

		tweet := mkTweet("100", base)
		tweet.PublicMetrics = nil
		if _, _, _, err := s.IngestTweets(ctx, acct, []twitter.Tweet{tweet}, nil); err != nil {
			t.Fatalf("IngestTweets: %v", err)
		}

		var raw string
		if err := s.db.Get(&raw, "SELECT engagement_metrics FROM tweets WHERE tweet_id = '100'"); err != nil {
			t.Fatalf("read engagement: %v", err)
		}
		want := `{"likes":0,"quotes":0,"replies":0,"retweets":0}`
		if raw != want {
			t.Errorf("engagement = %s, want %s", raw, want)
		}
	})
}

func TestEnqueueIdempotency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	acct := addAccount(t, s, "alice")
	m1 := addModel(t, s, "model-a", true)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if _, _, _, err := s.IngestTweets(ctx, acct, []twitter.Tweet{mkTweet("100", base)}, []int64{m1}); err != nil {
		t.Fatalf("IngestTweets: %v", err)
	}

	t.Run("enqueue for account only adds missing jobs", func(t *testing.T) {
		m2 := addModel(t, s, "model-b", true)
		n, err := s.EnqueueForAccount(ctx, acct, []int64{m1, m2})
		if err != nil {
			t.Fatalf("EnqueueForAccount: %v", err)
		}
		if n != 1 {
			t.Errorf("created = %d, want 1 (model-a job already exists)", n)
		}
	})

	t.Run("enqueue for all is a no-op when jobs exist", func(t *testing.T) {
		before := queueSize(t, s)
		n, err := s.EnqueueForAll(ctx, []int64{m1})
		if err != nil {
			t.Fatalf("EnqueueForAll: %v", err)
		}
		if n != 0 {
			t.Errorf("created = %d, want 0", n)
		}
		if after := queueSize(t, s); after != before {
			t.Errorf("queue grew from %d to %d", before, after)
		}
	})

	t.Run("null-model jobs dedupe too", func(t *testing.T) {
		s := newTestStore(t)
		acct := addAccount(t, s, "bob")
		if _, _, _, err := s.IngestTweets(ctx, acct, []twitter.Tweet{mkTweet("200", base)}, nil); err != nil {
			t.Fatalf("IngestTweets: %v", err)
		}

		n, err := s.EnqueueForAll(ctx, nil)
		if err != nil {
			t.Fatalf("EnqueueForAll: %v", err)
		}
		if n != 0 {
			t.Errorf("created = %d, want 0 (null-model job already exists)", n)
		}
	})
}

func TestReconcileJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	acct := addAccount(t, s, "alice")
	m1 := addModel(t, s, "model-a", true)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if _, _, _, err := s.IngestTweets(ctx, acct, []twitter.Tweet{mkTweet("100", base)}, []int64{m1}); err != nil {
		t.Fatalf("IngestTweets: %v", err)
	}

	// Simulate a tweet whose fan-out was lost to a crash.
	if _, err := s.db.Exec(`
		INSERT INTO tweets (account_id, tweet_id, content, tweet_timestamp)
		VALUES (?, '101', 'orphan', ?)`, acct, base.Format(time.RFC3339)); err != nil {
		t.Fatalf("insert orphan tweet: %v", err)
	}

	created, err := s.ReconcileJobs(ctx, []int64{m1})
	if err != nil {
		t.Fatalf("ReconcileJobs: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}

	// A second pass finds nothing missing.
	created, err = s.ReconcileJobs(ctx, []int64{m1})
	if err != nil {
		t.Fatalf("ReconcileJobs: %v", err)
	}
	if created != 0 {
		t.Errorf("second pass created = %d, want 0", created)
	}
}

func TestCheckpoint(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	acct := addAccount(t, s, "alice")

	t.Run("missing checkpoint is nil", func(t *testing.T) {
		ts, err := s.Checkpoint(ctx, acct)
		if err != nil {
			t.Fatalf("Checkpoint: %v", err)
		}
		if ts != nil {
			t.Errorf("checkpoint = %v, want nil", ts)
		}
	})

	t.Run("set then get round-trips", func(t *testing.T) {
		want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		if err := s.SetCheckpoint(ctx, acct, want); err != nil {
			t.Fatalf("SetCheckpoint: %v", err)
		}
		ts, err := s.Checkpoint(ctx, acct)
		if err != nil {
			t.Fatalf("Checkpoint: %v", err)
		}
		if ts == nil || !ts.Equal(want) {
			t.Errorf("checkpoint = %v, want %v", ts, want)
		}
	})

	t.Run("second set replaces the first", func(t *testing.T) {
		want := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
		if err := s.SetCheckpoint(ctx, acct, want); err != nil {
			t.Fatalf("SetCheckpoint: %v", err)
		}
		ts, err := s.Checkpoint(ctx, acct)
		if err != nil {
			t.Fatalf("Checkpoint: %v", err)
		}
		if ts == nil || !ts.Equal(want) {
			t.Errorf("checkpoint = %v, want %v", ts, want)
		}
	})

	t.Run("unparseable stored value is treated as missing", func(t *testing.T) {
		if _, err := s.db.Exec(
			"UPDATE checkpoints SET last_tweet_timestamp = 'garbage' WHERE account_id = ?", acct); err != nil {
			t.Fatalf("corrupt checkpoint: %v", err)
		}
		ts, err := s.Checkpoint(ctx, acct)
		if err != nil {
			t.Fatalf("Checkpoint: %v", err)
		}
		if ts != nil {
			t.Errorf("checkpoint = %v, want nil", ts)
		}
	})
}

func TestReanalysisLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tweetID := int64(7)
	first, err := s.RequestReanalysis(ctx, ReanalyzeTweet, &tweetID, nil)
	if err != nil {
		t.Fatalf("RequestReanalysis: %v", err)
	}
	second, err := s.RequestReanalysis(ctx, ReanalyzeAll, nil, nil)
	if err != nil {
		t.Fatalf("RequestReanalysis: %v", err)
	}

	t.Run("pending requests come back oldest first", func(t *testing.T) {
		pending, err := s.PendingReanalysis(ctx, 25)
		if err != nil {
			t.Fatalf("PendingReanalysis: %v", err)
		}
		if len(pending) != 2 {
			t.Fatalf("pending = %d, want 2", len(pending))
		}
		if pending[0].ID != first || pending[1].ID != second {
			t.Errorf("order = [%d %d], want [%d %d]", pending[0].ID, pending[1].ID, first, second)
		}
		if pending[0].Type != ReanalyzeTweet || pending[0].TweetID == nil || *pending[0].TweetID != tweetID {
			t.Errorf("first request = %+v", pending[0])
		}
	})

	t.Run("limit caps the batch", func(t *testing.T) {
		pending, err := s.PendingReanalysis(ctx, 1)
		if err != nil {
			t.Fatalf("PendingReanalysis: %v", err)
		}
		if len(pending) != 1 || pending[0].ID != first {
			t.Errorf("pending = %+v, want only request %d", pending, first)
		}
	})

	t.Run("processing and completed drop out of pending", func(t *testing.T) {
		if err := s.MarkReanalysisProcessing(ctx, first); err != nil {
			t.Fatalf("MarkReanalysisProcessing: %v", err)
		}
		if err := s.MarkReanalysisCompleted(ctx, second); err != nil {
			t.Fatalf("MarkReanalysisCompleted: %v", err)
		}
		pending, err := s.PendingReanalysis(ctx, 25)
		if err != nil {
			t.Fatalf("PendingReanalysis: %v", err)
		}
		if len(pending) != 0 {
			t.Errorf("pending = %+v, want none", pending)
		}
	})

	t.Run("stale claims are reclaimed", func(t *testing.T) {
		// Backdate the stuck request's claim past the staleness cutoff.
		if _, err := s.db.Exec(`
			UPDATE reanalysis_requests
			SET claimed_at = strftime('%Y-%m-%dT%H:%M:%SZ','now','-2 hours')
			WHERE id = ?`, first); err != nil {
			t.Fatalf("backdate claim: %v", err)
		}

		reclaimed, err := s.ReclaimStaleReanalysis(ctx, time.Hour)
		if err != nil {
			t.Fatalf("ReclaimStaleReanalysis: %v", err)
		}
		if reclaimed != 1 {
			t.Errorf("reclaimed = %d, want 1", reclaimed)
		}

		pending, err := s.PendingReanalysis(ctx, 25)
		if err != nil {
			t.Fatalf("PendingReanalysis: %v", err)
		}
		if len(pending) != 1 || pending[0].ID != first {
			t.Errorf("pending = %+v, want reclaimed request %d", pending, first)
		}
	})

	t.Run("fresh claims are left alone even on old requests", func(t *testing.T) {
		// Claimed just now; the request itself being old must not count.
		if err := s.MarkReanalysisProcessing(ctx, first); err != nil {
			t.Fatalf("MarkReanalysisProcessing: %v", err)
		}
		if _, err := s.db.Exec(`
			UPDATE reanalysis_requests
			SET requested_at = strftime('%Y-%m-%dT%H:%M:%SZ','now','-2 hours')
			WHERE id = ?`, first); err != nil {
			t.Fatalf("backdate request: %v", err)
		}

		reclaimed, err := s.ReclaimStaleReanalysis(ctx, time.Hour)
		if err != nil {
			t.Fatalf("ReclaimStaleReanalysis: %v", err)
		}
		if reclaimed != 0 {
			t.Errorf("reclaimed = %d, want 0", reclaimed)
		}
	})

	t.Run("claim abandoned soon after the request is reclaimed on claim age", func(t *testing.T) {
		// Requested and claimed almost together, then orphaned: the claim
		// going stale is what frees it, regardless of request age.
		if _, err := s.db.Exec(`
			UPDATE reanalysis_requests
			SET requested_at = strftime('%Y-%m-%dT%H:%M:%SZ','now','-61 minutes'),
			    claimed_at   = strftime('%Y-%m-%dT%H:%M:%SZ','now','-61 minutes')
			WHERE id = ?`, first); err != nil {
			t.Fatalf("backdate request and claim: %v", err)
		}

		reclaimed, err := s.ReclaimStaleReanalysis(ctx, time.Hour)
		if err != nil {
			t.Fatalf("ReclaimStaleReanalysis: %v", err)
		}
		if reclaimed != 1 {
			t.Errorf("reclaimed = %d, want 1", reclaimed)
		}
	})
}

func TestCrawlRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	runID, err := s.StartRun(ctx)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	t.Run("new run starts as running", func(t *testing.T) {
		runs, err := s.RecentRuns(ctx, 10)
		if err != nil {
			t.Fatalf("RecentRuns: %v", err)
		}
		if len(runs) != 1 || runs[0].Status != RunRunning {
			t.Fatalf("runs = %+v, want one running run", runs)
		}
		if runs[0].CompletedAt != nil {
			t.Errorf("completed_at = %v, want nil", *runs[0].CompletedAt)
		}
	})

	t.Run("finish records counters and serialized errors", func(t *testing.T) {
		errs := []RunError{{
			Type:      "rate_limit",
			Message:   "429 from timeline",
			Endpoint:  "/2/users/:id/tweets",
			Timestamp: "2024-05-01T12:00:00Z",
		}}
		if err := s.FinishRun(ctx, runID, RunFailed, 12, 24, errs); err != nil {
			t.Fatalf("FinishRun: %v", err)
		}

		runs, err := s.RecentRuns(ctx, 10)
		if err != nil {
			t.Fatalf("RecentRuns: %v", err)
		}
		run := runs[0]
		if run.Status != RunFailed || run.TweetsFetched != 12 || run.JobsQueued != 24 || run.ErrorsCount != 1 {
			t.Errorf("run = %+v", run)
		}
		if run.CompletedAt == nil {
			t.Error("completed_at not set")
		}
		if run.ErrorDetails == nil || *run.ErrorDetails == "" {
			t.Error("error_details not serialized")
		}
	})

	t.Run("clean finish leaves error details null", func(t *testing.T) {
		id, err := s.StartRun(ctx)
		if err != nil {
			t.Fatalf("StartRun: %v", err)
		}
		if err := s.FinishRun(ctx, id, RunCompleted, 5, 5, nil); err != nil {
			t.Fatalf("FinishRun: %v", err)
		}

		runs, err := s.RecentRuns(ctx, 1)
		if err != nil {
			t.Fatalf("RecentRuns: %v", err)
		}
		if runs[0].ID != id {
			t.Fatalf("most recent run = %d, want %d", runs[0].ID, id)
		}
		if runs[0].ErrorDetails != nil {
			t.Errorf("error_details = %q, want null", *runs[0].ErrorDetails)
		}
	})
}

func TestAPIErrorLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.InsertAPIError(ctx, "auth", "401 from lookup", "", "/2/users/by"); err != nil {
		t.Fatalf("InsertAPIError: %v", err)
	}
	if err := s.InsertAPIError(ctx, "other", "something odd", "E42", ""); err != nil {
		t.Fatalf("InsertAPIError: %v", err)
	}

	records, err := s.RecentErrors(ctx, 10)
	if err != nil {
		t.Fatalf("RecentErrors: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	// Newest first.
	latest, oldest := records[0], records[1]
	if latest.Type != "other" || latest.Code == nil || *latest.Code != "E42" || latest.Endpoint != nil {
		t.Errorf("latest = %+v", latest)
	}
	if oldest.Type != "auth" || oldest.Code != nil || oldest.Endpoint == nil || *oldest.Endpoint != "/2/users/by" {
		t.Errorf("oldest = %+v", oldest)
	}
}

func TestUpdateAccountProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addAccount(t, s, "alice")

	full := twitter.User{
		ID:              "99",
		Name:            "Alice A.",
		Username:        "alice",
		ProfileImageURL: "https://example.com/a.png",
		PublicMetrics:   &twitter.UserMetrics{FollowersCount: 1000, FollowingCount: 50},
	}
	if err := s.UpdateAccountProfile(ctx, "alice", full); err != nil {
		t.Fatalf("UpdateAccountProfile: %v", err)
	}

	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	got := accounts[0]
	if got.TwitterID != "99" || got.DisplayName != "Alice A." || got.FollowerCount != 1000 {
		t.Errorf("account = %+v", got)
	}

	// A lookup without optional fields must not blank out stored values.
	sparse := twitter.User{ID: "99", Username: "alice"}
	if err := s.UpdateAccountProfile(ctx, "alice", sparse); err != nil {
		t.Fatalf("UpdateAccountProfile: %v", err)
	}

	accounts, err = s.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	got = accounts[0]
	if got.DisplayName != "Alice A." || got.AvatarURL != "https://example.com/a.png" || got.FollowerCount != 1000 {
		t.Errorf("sparse update clobbered profile: %+v", got)
	}
}

func TestActiveAccounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addAccount(t, s, "alice")
	bob := addAccount(t, s, "bob")

	if _, err := s.db.Exec("UPDATE accounts SET is_active = 0 WHERE id = ?", bob); err != nil {
		t.Fatalf("deactivate bob: %v", err)
	}

	active, err := s.ActiveAccounts(ctx)
	if err != nil {
		t.Fatalf("ActiveAccounts: %v", err)
	}
	if len(active) != 1 || active[0].Username != "alice" {
		t.Errorf("active = %+v, want only alice", active)
	}

	all, err := s.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d accounts, want 2", len(all))
	}
}
