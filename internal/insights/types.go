// Package insights defines the entity model and ports shared across subsystems.
package insights

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind identifies one of the entity collections.
type Kind string

// Entity kinds handled by the acquisition engine.
const (
	KindOrganization Kind = "organization"
	KindPost         Kind = "post"
	KindPerson       Kind = "person"
	KindComment      Kind = "comment"
)

// Collection returns the logical collection name, also used as cache-key prefix.
func (k Kind) Collection() string {
	switch k {
	case KindOrganization:
		return "organizations"
	case KindPost:
		return "posts"
	case KindPerson:
		return "people"
	case KindComment:
		return "comments"
	default:
		return string(k)
	}
}

// CacheKey builds the cache key for a collection scoped to parentKey.
func (k Kind) CacheKey(parentKey string) string {
	return k.Collection() + ":" + parentKey
}

// Record is implemented by every persisted entity.
type Record interface {
	Kind() Kind
	Key() string
	ParentKey() string
	Scraped() time.Time
}

// Industry is the enumerated organization category.
type Industry string

// Known industries. Anything else folds to IndustryOther.
const (
	IndustryTechnology    Industry = "Technology"
	IndustryFinance       Industry = "Finance"
	IndustryHealthcare    Industry = "Healthcare"
	IndustryEducation     Industry = "Education"
	IndustryRetail        Industry = "Retail"
	IndustryManufacturing Industry = "Manufacturing"
	IndustryConsulting    Industry = "Consulting"
	IndustryMedia         Industry = "Media"
	IndustryMarketing     Industry = "Marketing"
	IndustryOther         Industry = "Other"
)

var industries = []Industry{
	IndustryTechnology,
	IndustryFinance,
	IndustryHealthcare,
	IndustryEducation,
	IndustryRetail,
	IndustryManufacturing,
	IndustryConsulting,
	IndustryMedia,
	IndustryMarketing,
	IndustryOther,
}

// ParseIndustry maps free text onto a known industry, case-insensitively.
func ParseIndustry(raw string) Industry {
	trimmed := strings.TrimSpace(raw)
	for _, ind := range industries {
		if strings.EqualFold(trimmed, string(ind)) {
			return ind
		}
	}
	return IndustryOther
}

// PostKind classifies a post by its dominant attachment.
type PostKind string

// Post kinds.
const (
	PostText     PostKind = "text"
	PostImage    PostKind = "image"
	PostVideo    PostKind = "video"
	PostArticle  PostKind = "article"
	PostDocument PostKind = "document"
	PostPoll     PostKind = "poll"
	PostOther    PostKind = "other"
)

// Organization is the root entity, keyed by the external page slug.
type Organization struct {
	PageID            string         `json:"page_id"`
	URL               string         `json:"url"`
	Name              string         `json:"name"`
	ProfilePictureURL string         `json:"profile_picture_url,omitempty"`
	Description       string         `json:"description,omitempty"`
	Website           string         `json:"website,omitempty"`
	Industry          Industry       `json:"industry"`
	FollowerCount     int64          `json:"follower_count"`
	HeadCount         int64          `json:"head_count"`
	Specialities      []string       `json:"specialities"`
	ExtraData         map[string]any `json:"extra_data"`
	LastScraped       time.Time      `json:"last_scraped"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Kind implements Record.
func (Organization) Kind() Kind { return KindOrganization }

// Key implements Record.
func (o Organization) Key() string { return o.PageID }

// ParentKey implements Record. Organizations have no parent.
func (Organization) ParentKey() string { return "" }

// Scraped implements Record.
func (o Organization) Scraped() time.Time { return o.LastScraped }

// Reactions holds engagement counters. Total always equals Like+Comment+Share.
type Reactions struct {
	Like    int64 `json:"like_count"`
	Comment int64 `json:"comment_count"`
	Share   int64 `json:"share_count"`
	Total   int64 `json:"total_count"`
}

// NewReactions builds counters with a consistent total. Negative inputs clamp to zero.
func NewReactions(like, comment, share int64) Reactions {
	like, comment, share = max(like, 0), max(comment, 0), max(share, 0)
	return Reactions{
		Like:    like,
		Comment: comment,
		Share:   share,
		Total:   like + comment + share,
	}
}

// UnmarshalJSON recomputes Total so decoded values keep the invariant.
func (r *Reactions) UnmarshalJSON(data []byte) error {
	type raw Reactions
	var decoded raw
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err //nolint:wrapcheck // passthrough from the json package
	}
	*r = NewReactions(decoded.Like, decoded.Comment, decoded.Share)
	return nil
}

// Post is one organization update.
type Post struct {
	PostID      string         `json:"post_id"`
	PageID      string         `json:"page_id"`
	URL         string         `json:"url"`
	PostType    PostKind       `json:"post_type"`
	Content     string         `json:"content"`
	MediaURLs   []string       `json:"media_urls"`
	Reactions   Reactions      `json:"reactions"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	ExtraData   map[string]any `json:"extra_data"`
	LastScraped time.Time      `json:"last_scraped"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Kind implements Record.
func (Post) Kind() Kind { return KindPost }

// Key implements Record.
func (p Post) Key() string { return p.PostID }

// ParentKey implements Record.
func (p Post) ParentKey() string { return p.PageID }

// Scraped implements Record.
func (p Post) Scraped() time.Time { return p.LastScraped }

// Person is a member profile, optionally tied to an organization.
type Person struct {
	UserID            string         `json:"user_id"`
	URL               string         `json:"url"`
	Name              string         `json:"name"`
	ProfilePictureURL string         `json:"profile_picture_url,omitempty"`
	Headline          string         `json:"headline,omitempty"`
	Company           string         `json:"company,omitempty"`
	CompanyPageID     *string        `json:"company_page_id,omitempty"`
	Location          string         `json:"location,omitempty"`
	ConnectionCount   *int64         `json:"connection_count,omitempty"`
	FollowerCount     *int64         `json:"follower_count,omitempty"`
	IsEmployee        bool           `json:"is_employee"`
	ExtraData         map[string]any `json:"extra_data"`
	LastScraped       time.Time      `json:"last_scraped"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Kind implements Record.
func (Person) Kind() Kind { return KindPerson }

// Key implements Record.
func (p Person) Key() string { return p.UserID }

// ParentKey implements Record.
func (p Person) ParentKey() string {
	if p.CompanyPageID == nil {
		return ""
	}
	return *p.CompanyPageID
}

// Scraped implements Record.
func (p Person) Scraped() time.Time { return p.LastScraped }

// Comment is a reaction thread entry under a post. ParentCommentID marks replies.
type Comment struct {
	CommentID       string         `json:"comment_id"`
	PostID          string         `json:"post_id"`
	UserID          string         `json:"user_id"`
	Content         string         `json:"content"`
	LikeCount       int64          `json:"like_count"`
	ReplyCount      int64          `json:"reply_count"`
	ParentCommentID *string        `json:"parent_comment_id,omitempty"`
	PublishedAt     *time.Time     `json:"published_at,omitempty"`
	ExtraData       map[string]any `json:"extra_data"`
	LastScraped     time.Time      `json:"last_scraped"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Kind implements Record.
func (Comment) Kind() Kind { return KindComment }

// Key implements Record.
func (c Comment) Key() string { return c.CommentID }

// ParentKey implements Record.
func (c Comment) ParentKey() string { return c.PostID }

// Scraped implements Record.
func (c Comment) Scraped() time.Time { return c.LastScraped }

// Acquisition bundles everything gathered for one organization.
type Acquisition struct {
	Organization Organization `json:"organization"`
	Posts        []Post       `json:"posts"`
	People       []Person     `json:"people"`
	Comments     []Comment    `json:"comments"`
}

// AcquiredEvent is published once a composite acquisition completes.
type AcquiredEvent struct {
	ID         string    `json:"id"`
	PageID     string    `json:"page_id"`
	Posts      int       `json:"posts"`
	People     int       `json:"people"`
	Comments   int       `json:"comments"`
	AcquiredAt time.Time `json:"acquired_at"`
}
