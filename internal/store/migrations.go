package store

// All timestamps are stored as RFC3339 UTC strings.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    twitter_id      TEXT NOT NULL DEFAULT '',
    username        TEXT NOT NULL UNIQUE,
    display_name    TEXT NOT NULL DEFAULT '',
    avatar_url      TEXT NOT NULL DEFAULT '',
    follower_count  INTEGER NOT NULL DEFAULT 0,
    following_count INTEGER NOT NULL DEFAULT 0,
    is_active       INTEGER NOT NULL DEFAULT 1,
    created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    updated_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE TABLE IF NOT EXISTS tweets (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id         INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    tweet_id           TEXT NOT NULL UNIQUE,
    content            TEXT NOT NULL,
    tweet_timestamp    TEXT NOT NULL,
    engagement_metrics TEXT NOT NULL DEFAULT '{}',
    is_retweet         INTEGER NOT NULL DEFAULT 0,
    is_reply           INTEGER NOT NULL DEFAULT 0,
    created_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_tweets_account ON tweets(account_id);
CREATE INDEX IF NOT EXISTS idx_tweets_timestamp ON tweets(tweet_timestamp);

CREATE TABLE IF NOT EXISTS llm_models (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    is_enabled INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS analysis_queue (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    tweet_id      INTEGER NOT NULL REFERENCES tweets(id) ON DELETE CASCADE,
    llm_model_id  INTEGER REFERENCES llm_models(id),
    status        TEXT NOT NULL DEFAULT 'pending',
    attempt_count INTEGER NOT NULL DEFAULT 0,
    last_error    TEXT,
    enqueued_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

-- COALESCE collapses the null-model job onto a fixed key so INSERT OR IGNORE
-- dedupes it too; a plain UNIQUE(tweet_id, llm_model_id) treats NULLs as
-- distinct and would re-enqueue the null-model job on every pass.
CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_tweet_model
    ON analysis_queue(tweet_id, COALESCE(llm_model_id, 0));
CREATE INDEX IF NOT EXISTS idx_queue_status ON analysis_queue(status);

CREATE TABLE IF NOT EXISTS checkpoints (
    account_id           INTEGER PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
    last_tweet_timestamp TEXT NOT NULL,
    updated_at           TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE TABLE IF NOT EXISTS reanalysis_requests (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    request_type TEXT NOT NULL,
    tweet_id     INTEGER,
    account_id   INTEGER,
    status       TEXT NOT NULL DEFAULT 'pending',
    requested_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    claimed_at   TEXT,
    processed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_reanalysis_status ON reanalysis_requests(status);

CREATE TABLE IF NOT EXISTS crawl_runs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    status         TEXT NOT NULL,
    tweets_fetched INTEGER NOT NULL DEFAULT 0,
    jobs_queued    INTEGER NOT NULL DEFAULT 0,
    errors_count   INTEGER NOT NULL DEFAULT 0,
    error_details  TEXT,
    started_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    completed_at   TEXT
);

CREATE TABLE IF NOT EXISTS api_errors (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    error_type    TEXT NOT NULL,
    error_message TEXT NOT NULL,
    error_code    TEXT,
    endpoint      TEXT,
    occurred_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    resolved      INTEGER NOT NULL DEFAULT 0
);
`
