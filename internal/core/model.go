package core

import (
	"time"
)

// Provider identifies a mail provider
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
)

// ParseProvider validates a provider name
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case ProviderGmail, ProviderOutlook:
		return p, nil
	default:
		return "", ErrUnknownProvider
	}
}

// MessageType is the coarse heuristic category of a message
type MessageType string

const (
	TypeReceipt    MessageType = "receipt"
	TypeBill       MessageType = "bill"
	TypeNewsletter MessageType = "newsletter"
	TypePersonal   MessageType = "personal"
	TypeOther      MessageType = "other"
)

// MessageTypes lists every message type in display order
var MessageTypes = []MessageType{TypeReceipt, TypeBill, TypeNewsletter, TypePersonal, TypeOther}

// InsightKind is the category of an insight record
type InsightKind string

const (
	KindSubscription InsightKind = "subscription"
	KindBill         InsightKind = "bill"
	KindAnomaly      InsightKind = "anomaly"
	KindGoal         InsightKind = "goal"
	KindAdvice       InsightKind = "advice"
)

// RawMessage is a message as fetched from a provider
type RawMessage struct {
	ID                string
	Subject           string
	From              string
	ReceivedAtEpochMs int64
	Snippet           string
	TextBody          string
	HTMLBody          string
	Provider          Provider
}

// AIReadableMessage is the provider-neutral, redacted form sent to the model
type AIReadableMessage struct {
	ID                string      `json:"id"`
	Subject           string      `json:"subject"`
	SenderName        string      `json:"senderName"`
	SenderEmail       string      `json:"senderEmail"`
	ReceivedAtISO8601 string      `json:"receivedAt"`
	SanitizedContent  string      `json:"content"`
	Summary           string      `json:"summary"`
	Type              MessageType `json:"type"`
	Amount            *float64    `json:"amount,omitempty"`
	Merchant          string      `json:"merchant,omitempty"`
}

// MessageSummary counts converted messages per type
type MessageSummary struct {
	Total      int                 `json:"total"`
	ByType     map[MessageType]int `json:"byType"`
	WithAmount int                 `json:"withAmount"`
}

// AIHeader is the presentation block attached to an insight
type AIHeader struct {
	Bullets    []string `json:"bullets"`
	NextStep   string   `json:"nextStep"`
	Badges     []string `json:"badges"`
	Confidence float64  `json:"confidence"`
}

// InsightRecord is one normalized financial insight
type InsightRecord struct {
	ID             string      `json:"id"`
	Kind           InsightKind `json:"kind"`
	Title          string      `json:"title"`
	MerchantOrBill string      `json:"merchantOrBill"`
	Amount         float64     `json:"amount"`
	Date           string      `json:"date"`
	Account        string      `json:"account"`
	Category       string      `json:"category"`
	Delta30        float64     `json:"delta30"`
	Delta90        float64     `json:"delta90"`
	EmailSummary   string      `json:"emailSummary"`
	AIHeader       AIHeader    `json:"aiHeader"`
}

// CacheKey identifies a cached insight list
type CacheKey struct {
	UserIdentity string
	Provider     Provider
}

// String renders the key as a single storage key
func (k CacheKey) String() string {
	return k.UserIdentity + "|" + string(k.Provider)
}

// CacheEntry holds a merged insight list for one user and provider
type CacheEntry struct {
	Key       CacheKey
	CreatedAt time.Time
	TTL       time.Duration
	Payload   []InsightRecord
}

// ExpiresAt returns the instant after which the entry is stale
func (e *CacheEntry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// FreshAt reports whether the entry may still be served at now
func (e *CacheEntry) FreshAt(now time.Time) bool {
	return now.Before(e.ExpiresAt())
}

// StoredInsights is one persisted batch of merged insights
type StoredInsights struct {
	UserIdentity string          `json:"userIdentity"`
	Provider     Provider        `json:"provider"`
	Records      []InsightRecord `json:"insights"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// InsightRequest carries the inputs of one pipeline run
type InsightRequest struct {
	UserIdentity string
	Provider     Provider
	Token        string
	MaxResults   int
}

// CompletionRequest is a single prompt sent to an LLM
type CompletionRequest struct {
	System string
	Prompt string
}

// CloneRecords returns a deep copy of records
func CloneRecords(records []InsightRecord) []InsightRecord {
	if records == nil {
		return nil
	}
	out := make([]InsightRecord, len(records))
	for i, r := range records {
		r.AIHeader.Bullets = append([]string{}, r.AIHeader.Bullets...)
		r.AIHeader.Badges = append([]string{}, r.AIHeader.Badges...)
		out[i] = r
	}
	return out
}
