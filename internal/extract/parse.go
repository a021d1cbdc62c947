package extract

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/page-insights/internal/insights"
)

// Structural selectors for the rendered source pages.
const (
	selOrgCard          = ".org-top-card"
	selOrgTitle         = ".org-top-card__title"
	selOrgLogo          = ".org-top-card__logo-img"
	selOrgFollowers     = ".org-top-card-secondary-content__connections"
	selOrgDescription   = ".org-about-module__description"
	selOrgWebsite       = "a.link-without-visited-state[href*='http']"
	selOrgIndustry      = ".org-about-module__industry"
	selOrgHeadCount     = ".org-about-module__company-staff-count-range"
	selOrgSpecialities  = ".org-about-module__specialities"
	selLinkedData       = "script[type='application/ld+json']"
	selPostMarker       = ".update-components-actor__sub-description"
	selPostLink         = "a.app-aware-link[href*='/posts/']"
	selPostText         = ".update-components-text"
	selPostImage        = ".update-components-image"
	selPostVideo        = ".update-components-video"
	selPostArticle      = ".update-components-article"
	selPostDocument     = ".update-components-document"
	selPostPoll         = ".update-components-poll"
	selPostMedia        = ".update-components-image__image"
	selPostLikes        = ".social-details-social-counts__reactions-count"
	selPostComments     = ".social-details-social-counts__comments"
	selPostReposts      = ".social-details-social-counts__reposts"
	selPersonCard       = ".org-people-profile-card"
	selPersonLink       = ".org-people-profile-card__profile-title a"
	selPersonPicture    = ".artdeco-entity-image"
	selPersonHeadline   = ".org-people-profile-card__subline"
	selPersonLocation   = ".org-people-profile-card__location"
	selComment          = ".comments-comment-item"
	selCommentReplyCls  = "comments-reply-item"
	selCommentAuthor    = ".comments-post-meta__name-text"
	selCommentContent   = ".comments-comment-item__main-content"
	selCommentLikes     = ".comments-comment-social-bar__reactions-count"
	selCommentTimestamp = ".comments-comment-item__timestamp"
	selCommentsLoadMore = ".comments-comments-list__load-more-comments-button"
)

const specialitiesLabel = "Specialties"

var (
	firstInteger = regexp.MustCompile(`\d+`)
	relativeTime = regexp.MustCompile(
		`(?i)\b(just now|yesterday|\d+\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|weeks?|months?|years?|yrs?|mo|[smhdwy])\b)`,
	)
)

// parseCount strips thousands separators and reads the first integer run.
func parseCount(raw string) int64 {
	match := firstInteger.FindString(strings.ReplaceAll(raw, ",", ""))
	if match == "" {
		return 0
	}
	n, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseRelativeTime approximates any recognizable relative phrase as now.
func parseRelativeTime(raw string, now time.Time) *time.Time {
	if !relativeTime.MatchString(raw) {
		return nil
	}
	ts := now.UTC()
	return &ts
}

// idFromHref returns the last path segment, ignoring query, fragment and trailing slash.
func idFromHref(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(strings.TrimSpace(href), "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		href = href[i+1:]
	}
	return href
}

func resolveURL(base, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	root, err := url.Parse(base)
	if err != nil {
		return href
	}
	return root.ResolveReference(ref).String()
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(s.First().Text())
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.First().Attr(name)
	return strings.TrimSpace(v)
}

func parseOrganization(doc *goquery.Document, pageID, pageURL string, now time.Time) []insights.Organization {
	card := doc.Find(selOrgCard).First()
	if card.Length() == 0 {
		return nil
	}
	org := insights.Organization{
		PageID:            pageID,
		URL:               pageURL,
		Name:              text(card.Find(selOrgTitle)),
		ProfilePictureURL: attr(card.Find(selOrgLogo), "src"),
		Description:       text(doc.Find(selOrgDescription)),
		Website:           attr(doc.Find(selOrgWebsite), "href"),
		Industry:          insights.ParseIndustry(text(doc.Find(selOrgIndustry))),
		FollowerCount:     parseCount(text(doc.Find(selOrgFollowers))),
		HeadCount:         parseCount(text(doc.Find(selOrgHeadCount))),
		Specialities:      parseSpecialities(text(doc.Find(selOrgSpecialities))),
		ExtraData:         map[string]any{},
		LastScraped:       now.UTC(),
	}
	if id := linkedDataID(doc); id != "" {
		org.ExtraData["linkedin_id"] = id
	}
	return []insights.Organization{org}
}

func parseSpecialities(raw string) []string {
	out := []string{}
	_, rest, found := strings.Cut(raw, specialitiesLabel)
	if !found {
		return out
	}
	for _, part := range strings.Split(rest, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func linkedDataID(doc *goquery.Document) string {
	raw := doc.Find(selLinkedData).First().Text()
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	var payload struct {
		ID string `json:"@id"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || payload.ID == "" {
		return ""
	}
	parts := strings.Split(payload.ID, ":")
	return parts[len(parts)-1]
}

func parsePosts(doc *goquery.Document, pageID, baseURL string, now time.Time) ([]insights.Post, int) {
	var (
		posts   []insights.Post
		dropped int
	)
	doc.Find(selPostMarker).Each(func(_ int, marker *goquery.Selection) {
		container := marker.Parent().Parent().Parent()
		if container.Length() == 0 {
			dropped++
			return
		}
		href := attr(container.Find(selPostLink), "href")
		postID := idFromHref(href)
		if postID == "" {
			dropped++
			return
		}
		var media []string
		container.Find(selPostMedia).Each(func(_ int, img *goquery.Selection) {
			if src := attr(img, "src"); src != "" {
				media = append(media, src)
			}
		})
		if media == nil {
			media = []string{}
		}
		reactions := insights.NewReactions(
			parseCount(text(container.Find(selPostLikes))),
			parseCount(text(container.Find(selPostComments))),
			parseCount(text(container.Find(selPostReposts))),
		)
		posts = append(posts, insights.Post{
			PostID:      postID,
			PageID:      pageID,
			URL:         resolveURL(baseURL, href),
			PostType:    postKind(container),
			Content:     text(container.Find(selPostText)),
			MediaURLs:   media,
			Reactions:   reactions,
			PublishedAt: parseRelativeTime(text(marker), now),
			ExtraData:   map[string]any{},
			LastScraped: now.UTC(),
		})
	})
	return posts, dropped
}

func postKind(container *goquery.Selection) insights.PostKind {
	switch {
	case container.Find(selPostImage).Length() > 0:
		return insights.PostImage
	case container.Find(selPostVideo).Length() > 0:
		return insights.PostVideo
	case container.Find(selPostArticle).Length() > 0:
		return insights.PostArticle
	case container.Find(selPostDocument).Length() > 0:
		return insights.PostDocument
	case container.Find(selPostPoll).Length() > 0:
		return insights.PostPoll
	default:
		return insights.PostText
	}
}

func parsePeople(doc *goquery.Document, pageID, baseURL string, now time.Time) ([]insights.Person, int) {
	var (
		people  []insights.Person
		dropped int
	)
	doc.Find(selPersonCard).Each(func(_ int, card *goquery.Selection) {
		link := card.Find(selPersonLink).First()
		href := attr(link, "href")
		userID := idFromHref(href)
		if userID == "" {
			dropped++
			return
		}
		company := pageID
		people = append(people, insights.Person{
			UserID:            userID,
			URL:               resolveURL(baseURL, href),
			Name:              text(link),
			ProfilePictureURL: attr(card.Find(selPersonPicture), "src"),
			Headline:          text(card.Find(selPersonHeadline)),
			CompanyPageID:     &company,
			Location:          text(card.Find(selPersonLocation)),
			IsEmployee:        true,
			ExtraData:         map[string]any{},
			LastScraped:       now.UTC(),
		})
	})
	return people, dropped
}

// commentCandidate carries layout hints that never influence identity.
type commentCandidate struct {
	comment        insights.Comment
	ancestorAuthor string
}

func parseComments(
	doc *goquery.Document,
	postID string,
	now time.Time,
	derive func(postID, userID, content string, ordinal int) string,
) ([]insights.Comment, int) {
	var (
		candidates []commentCandidate
		dropped    int
		occurrence = map[[2]string]int{}
	)
	doc.Find(selComment).Each(func(_ int, item *goquery.Selection) {
		author := item.Find(selCommentAuthor).First()
		href := attr(author.Parent(), "href")
		if href == "" {
			href = attr(author.Closest("a"), "href")
		}
		userID := idFromHref(href)
		if userID == "" {
			dropped++
			return
		}
		content := text(item.Find(selCommentContent))
		commentID := renderedCommentID(item)
		if commentID == "" {
			pair := [2]string{userID, content}
			commentID = derive(postID, userID, content, occurrence[pair])
			occurrence[pair]++
		}
		c := commentCandidate{
			comment: insights.Comment{
				CommentID:   commentID,
				PostID:      postID,
				UserID:      userID,
				Content:     content,
				LikeCount:   parseCount(text(item.Find(selCommentLikes))),
				ReplyCount:  int64(item.Find("." + selCommentReplyCls).Length()),
				PublishedAt: parseRelativeTime(text(item.Find(selCommentTimestamp)), now),
				ExtraData:   map[string]any{},
				LastScraped: now.UTC(),
			},
		}
		if item.HasClass(selCommentReplyCls) {
			ancestor := item.ParentsFiltered(selComment).First()
			c.ancestorAuthor = text(ancestor.Find(selCommentAuthor))
		}
		candidates = append(candidates, c)
	})
	return inferReplyParents(candidates), dropped
}

// renderedCommentID returns the first identity attribute the page rendered
// on the comment element.
func renderedCommentID(item *goquery.Selection) string {
	for _, name := range []string{"data-id", "data-urn", "data-entity-urn", "id"} {
		if v := attr(item, name); v != "" {
			return v
		}
	}
	return ""
}

// inferReplyParents links replies to a key synthesized from the enclosing
// comment's author name. The result is a hint and may point at no stored comment.
func inferReplyParents(candidates []commentCandidate) []insights.Comment {
	out := make([]insights.Comment, 0, len(candidates))
	for _, c := range candidates {
		if c.ancestorAuthor != "" {
			parent := "comment_" + c.ancestorAuthor
			c.comment.ParentCommentID = &parent
		}
		out = append(out, c.comment)
	}
	return out
}
