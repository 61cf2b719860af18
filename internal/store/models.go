package store

// Account is a tracked Twitter account. Accounts are created out-of-band;
// the crawler only reads them and refreshes their denormalized profile
// fields from the API.
type Account struct {
	ID             int64  `db:"id" json:"id"`
	TwitterID      string `db:"twitter_id" json:"twitter_id"`
	Username       string `db:"username" json:"username"`
	DisplayName    string `db:"display_name" json:"display_name"`
	AvatarURL      string `db:"avatar_url" json:"avatar_url"`
	FollowerCount  int64  `db:"follower_count" json:"follower_count"`
	FollowingCount int64  `db:"following_count" json:"following_count"`
	IsActive       bool   `db:"is_active" json:"is_active"`
}

// ReanalysisRequest asks the crawler to re-queue analysis jobs for one
// tweet, one account, or everything. Created externally as pending; the
// cycle controller claims it, acts, and marks it completed.
type ReanalysisRequest struct {
	ID        int64  `db:"id" json:"id"`
	Type      string `db:"request_type" json:"type"`
	TweetID   *int64 `db:"tweet_id" json:"tweet_id,omitempty"`
	AccountID *int64 `db:"account_id" json:"account_id,omitempty"`
}

// Reanalysis request types.
const (
	ReanalyzeTweet   = "tweet"
	ReanalyzeAccount = "account"
	ReanalyzeAll     = "all"
)

// CrawlRun is the audit record of one crawl cycle.
type CrawlRun struct {
	ID            int64   `db:"id" json:"id"`
	Status        string  `db:"status" json:"status"`
	TweetsFetched int64   `db:"tweets_fetched" json:"tweets_fetched"`
	JobsQueued    int64   `db:"jobs_queued" json:"jobs_queued"`
	ErrorsCount   int64   `db:"errors_count" json:"errors_count"`
	ErrorDetails  *string `db:"error_details" json:"error_details,omitempty"`
	StartedAt     string  `db:"started_at" json:"started_at"`
	CompletedAt   *string `db:"completed_at" json:"completed_at,omitempty"`
}

// Crawl run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// RunError is one error recorded during a cycle. The full list is
// serialized into the run's error_details column; each entry is also
// mirrored into the standalone api_errors table as it happens.
type RunError struct {
	Type      string `json:"error_type"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	Timestamp string `json:"timestamp"`
}

// APIErrorRecord is a row of the standalone error log.
type APIErrorRecord struct {
	ID         int64   `db:"id" json:"id"`
	Type       string  `db:"error_type" json:"error_type"`
	Message    string  `db:"error_message" json:"error_message"`
	Code       *string `db:"error_code" json:"error_code,omitempty"`
	Endpoint   *string `db:"endpoint" json:"endpoint,omitempty"`
	OccurredAt string  `db:"occurred_at" json:"occurred_at"`
	Resolved   bool    `db:"resolved" json:"resolved"`
}
