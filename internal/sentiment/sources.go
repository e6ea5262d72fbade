package sentiment

import (
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fluxtrade/fluxtrader/internal/sentiment/nlp"
)

// MicroblogSource scores cashtag-filtered short posts.
type MicroblogSource struct {
	client   *resty.Client
	maxItems int
}

// NewMicroblogSource creates a microblog fetcher. apiKey may be empty
// for keyless endpoints.
func NewMicroblogSource(baseURL, apiKey string, maxItems int) *MicroblogSource {
	client := resty.New().SetBaseURL(baseURL)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	if maxItems <= 0 {
		maxItems = 100
	}
	return &MicroblogSource{client: client, maxItems: maxItems}
}

func (s *MicroblogSource) Name() string { return SourceMicroblog }

type microblogEnvelope struct {
	Posts []struct {
		Text       string `json:"text"`
		Engagement int    `json:"engagement"`
	} `json:"posts"`
}

func (s *MicroblogSource) Fetch(ctx context.Context, symbol string) (Reading, error) {
	var envelope microblogEnvelope
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("q", "$"+strings.ToUpper(symbol)).
		SetQueryParam("limit", fmt.Sprintf("%d", s.maxItems)).
		SetResult(&envelope).
		Get("/search")
	if err != nil {
		return Reading{}, fmt.Errorf("microblog search: %w", err)
	}
	if resp.IsError() {
		return Reading{}, fmt.Errorf("microblog search: status %d", resp.StatusCode())
	}

	texts := make([]string, 0, len(envelope.Posts))
	for _, post := range envelope.Posts {
		texts = append(texts, post.Text)
	}
	return readingFromTexts(SourceMicroblog, symbol, texts), nil
}

// ForumSource ranks forum posts by engagement and scores the top 50.
type ForumSource struct {
	client *resty.Client
	forums []string
}

// NewForumSource creates a forum fetcher over the configured forums.
func NewForumSource(baseURL string, forums []string) *ForumSource {
	return &ForumSource{
		client: resty.New().SetBaseURL(baseURL),
		forums: forums,
	}
}

func (s *ForumSource) Name() string { return SourceForum }

type forumPost struct {
	Title    string `json:"title"`
	Upvotes  int    `json:"upvotes"`
	Comments int    `json:"comments"`
}

func (p forumPost) engagement() int { return p.Upvotes + 2*p.Comments }

func (s *ForumSource) Fetch(ctx context.Context, symbol string) (Reading, error) {
	var all []forumPost
	for _, forum := range s.forums {
		var envelope struct {
			Posts []forumPost `json:"posts"`
		}
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParam("symbol", symbol).
			SetResult(&envelope).
			Get("/forums/" + forum + "/top")
		if err != nil {
			return Reading{}, fmt.Errorf("forum %s: %w", forum, err)
		}
		if resp.IsError() {
			return Reading{}, fmt.Errorf("forum %s: status %d", forum, resp.StatusCode())
		}
		all = append(all, envelope.Posts...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].engagement() > all[j].engagement() })
	if len(all) > 50 {
		all = all[:50]
	}

	texts := make([]string, 0, len(all))
	for _, post := range all {
		texts = append(texts, post.Title)
	}
	return readingFromTexts(SourceForum, symbol, texts), nil
}

// NewsSource parses RSS titles from configured feeds, filtered by
// symbol keywords.
type NewsSource struct {
	client   *resty.Client
	feedURLs []string
	keywords map[string][]string // symbol -> extra match terms
}

// NewNewsSource creates an RSS news fetcher.
func NewNewsSource(feedURLs []string, keywords map[string][]string) *NewsSource {
	return &NewsSource{
		client:   resty.New(),
		feedURLs: feedURLs,
		keywords: keywords,
	}
}

func (s *NewsSource) Name() string { return SourceNews }

type rssFeed struct {
	Channel struct {
		Items []struct {
			Title string `xml:"title"`
		} `xml:"item"`
	} `xml:"channel"`
}

func (s *NewsSource) Fetch(ctx context.Context, symbol string) (Reading, error) {
	terms := append([]string{strings.ToLower(symbol)}, s.keywords[strings.ToUpper(symbol)]...)

	var titles []string
	for _, url := range s.feedURLs {
		resp, err := s.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return Reading{}, fmt.Errorf("news feed %s: %w", url, err)
		}
		if resp.IsError() {
			return Reading{}, fmt.Errorf("news feed %s: status %d", url, resp.StatusCode())
		}

		var feed rssFeed
		if err := xml.Unmarshal(resp.Body(), &feed); err != nil {
			return Reading{}, fmt.Errorf("news feed %s: %w", url, err)
		}
		for _, item := range feed.Channel.Items {
			if titleMatches(item.Title, terms) {
				titles = append(titles, item.Title)
			}
		}
	}
	return readingFromTexts(SourceNews, symbol, titles), nil
}

func titleMatches(title string, terms []string) bool {
	lower := strings.ToLower(title)
	for _, term := range terms {
		if term != "" && strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// OnChainSource scores structured on-chain metrics.
type OnChainSource struct {
	client *resty.Client
}

// NewOnChainSource creates an on-chain metrics fetcher.
func NewOnChainSource(baseURL string) *OnChainSource {
	return &OnChainSource{client: resty.New().SetBaseURL(baseURL)}
}

func (s *OnChainSource) Name() string { return SourceOnChain }

// OnChainMetrics is the scalar envelope from the metrics provider.
type OnChainMetrics struct {
	TxCount            int     `json:"tx_count"`
	LargeTransfers     int     `json:"large_transfers"`
	ExchangeInflow     float64 `json:"exchange_inflow"`
	ExchangeOutflow    float64 `json:"exchange_outflow"`
	MempoolSize        int     `json:"mempool_size"`
	DormantActivations int     `json:"dormant_activations"`
}

func (s *OnChainSource) Fetch(ctx context.Context, symbol string) (Reading, error) {
	var m OnChainMetrics
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&m).
		Get("/metrics")
	if err != nil {
		return Reading{}, fmt.Errorf("onchain metrics: %w", err)
	}
	if resp.IsError() {
		return Reading{}, fmt.Errorf("onchain metrics: status %d", resp.StatusCode())
	}

	return ScoreOnChain(symbol, m), nil
}

// ScoreOnChain converts raw on-chain metrics into a reading. Outflow
// from exchanges reads bullish, dormant activations and heavy inflow
// bearish.
func ScoreOnChain(symbol string, m OnChainMetrics) Reading {
	var score float64

	if total := m.ExchangeInflow + m.ExchangeOutflow; total > 0 {
		// Net flow off exchanges is accumulation.
		score += 0.6 * (m.ExchangeOutflow - m.ExchangeInflow) / total
	}
	if m.DormantActivations > 0 {
		// Old coins moving usually precede distribution.
		score -= math.Min(0.3, 0.05*float64(m.DormantActivations))
	}
	if m.LargeTransfers > 10 {
		score -= 0.1
	}

	score = math.Max(-1, math.Min(1, score))

	activity := float64(m.TxCount + m.MempoolSize)
	confidence := math.Min(1, activity/100000)*0.5 + math.Abs(score)*0.5

	raw := []string{
		fmt.Sprintf("tx_count=%d large_transfers=%d inflow=%.0f outflow=%.0f mempool=%d dormant=%d",
			m.TxCount, m.LargeTransfers, m.ExchangeInflow, m.ExchangeOutflow, m.MempoolSize, m.DormantActivations),
	}

	return Reading{
		Source:     SourceOnChain,
		Symbol:     symbol,
		Score:      score,
		Confidence: confidence,
		Volume:     m.TxCount,
		ProducedAt: time.Now().UTC(),
		Raw:        raw,
	}
}

// readingFromTexts scores a text batch and folds it into one reading.
func readingFromTexts(source, symbol string, texts []string) Reading {
	reading := Reading{
		Source:     source,
		Symbol:     symbol,
		Volume:     len(texts),
		ProducedAt: time.Now().UTC(),
		Raw:        texts,
	}
	if len(texts) == 0 {
		return reading
	}

	results := nlp.ScoreBatch(texts)
	var scoreSum, confSum float64
	for _, r := range results {
		scoreSum += r.Score
		confSum += r.Confidence
	}
	reading.Score = scoreSum / float64(len(results))
	reading.Confidence = confSum / float64(len(results))
	return reading
}
