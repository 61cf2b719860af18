package twitter

import "time"

// User is a profile returned by the users lookup endpoint.
type User struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Username        string       `json:"username"`
	PublicMetrics   *UserMetrics `json:"public_metrics"`
	ProfileImageURL string       `json:"profile_image_url"`
}

// UserMetrics holds follower counts from user.fields=public_metrics.
type UserMetrics struct {
	FollowersCount int64 `json:"followers_count"`
	FollowingCount int64 `json:"following_count"`
}

// Tweet is a single tweet from the user timeline endpoint.
type Tweet struct {
	ID               string            `json:"id"`
	Text             string            `json:"text"`
	CreatedAt        time.Time         `json:"created_at"`
	PublicMetrics    *TweetMetrics     `json:"public_metrics"`
	ReferencedTweets []ReferencedTweet `json:"referenced_tweets"`
}

// TweetMetrics holds engagement counts from tweet.fields=public_metrics.
type TweetMetrics struct {
	LikeCount    int64 `json:"like_count"`
	RetweetCount int64 `json:"retweet_count"`
	ReplyCount   int64 `json:"reply_count"`
	QuoteCount   int64 `json:"quote_count"`
}

// ReferencedTweet links a tweet to one it retweets, quotes or replies to.
type ReferencedTweet struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// IsRetweet reports whether the tweet is a retweet of another tweet.
func (t Tweet) IsRetweet() bool { return t.references("retweeted") }

// IsReply reports whether the tweet is a reply to another tweet.
func (t Tweet) IsReply() bool { return t.references("replied_to") }

func (t Tweet) references(kind string) bool {
	for _, ref := range t.ReferencedTweets {
		if ref.Type == kind {
			return true
		}
	}
	return false
}

// PartialError is an error object embedded in an otherwise-successful
// response body, scoped to one requested user or tweet. These are returned
// alongside data, never raised.
type PartialError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

// Message renders the partial error as a single log-friendly line.
func (e PartialError) Message() string {
	title := e.Title
	if title == "" {
		title = "Twitter API error"
	}
	detail := e.Detail
	if detail == "" {
		detail = "Unknown error"
	}
	return title + ": " + detail
}

// UsersResult is the union of all lookup batches for one LookupUsers call.
type UsersResult struct {
	Users  []User
	Errors []PartialError
}

// TweetsResult is the union of all timeline pages for one UserTweets call.
type TweetsResult struct {
	Tweets []Tweet
	Errors []PartialError
}

type usersResponse struct {
	Data   []User         `json:"data"`
	Errors []PartialError `json:"errors"`
}

type tweetsResponse struct {
	Data   []Tweet        `json:"data"`
	Meta   *tweetsMeta    `json:"meta"`
	Errors []PartialError `json:"errors"`
}

type tweetsMeta struct {
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token"`
}
