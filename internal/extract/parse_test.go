package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestParseCount(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input string
		want  int64
	}{
		{"12,345 followers", 12345},
		{"1,001-5,000 employees", 1001},
		{"followers", 0},
		{"", 0},
		{"  7 comments", 7},
		{"99999999999999999999999", 0},
	}
	for _, tc := range testCases {
		if got := parseCount(tc.input); got != tc.want {
			t.Errorf("parseCount(%q) = %d; want %d", tc.input, got, tc.want)
		}
	}
}

func TestIDFromHref(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input string
		want  string
	}{
		{"https://www.linkedin.com/in/jane-doe/", "jane-doe"},
		{"/in/jane-doe?miniProfile=1", "jane-doe"},
		{"/feed/update/posts/7001/#comments", "7001"},
		{"jane", "jane"},
		{"", ""},
		{"/", ""},
	}
	for _, tc := range testCases {
		if got := idFromHref(tc.input); got != tc.want {
			t.Errorf("idFromHref(%q) = %q; want %q", tc.input, got, tc.want)
		}
	}
}

func TestParseRelativeTime(t *testing.T) {
	t.Parallel()

	recognized := []string{"2 hours ago", "3d", "1w • Edited", "5 minutes ago", "just now", "Yesterday", "4mo"}
	for _, in := range recognized {
		got := parseRelativeTime(in, testNow)
		if got == nil || !got.Equal(testNow) {
			t.Errorf("parseRelativeTime(%q) = %v; want %v", in, got, testNow)
		}
	}
	for _, in := range []string{"", "Edited", "Promoted"} {
		if got := parseRelativeTime(in, testNow); got != nil {
			t.Errorf("parseRelativeTime(%q) = %v; want nil", in, got)
		}
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	if StateWaitingForContent.String() != "waiting_for_content" {
		t.Fatalf("unexpected state name %q", StateWaitingForContent)
	}
	if !StateDone.Terminal() || !StateFailed.Terminal() || StatePaginating.Terminal() {
		t.Fatal("unexpected terminal classification")
	}
	if State(42).String() != "unknown" {
		t.Fatal("expected unknown for out of range state")
	}
}

func TestParseCommentsCountsRepeatedPairs(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(repeatedRepliesPage))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	var calls []string
	derive := func(postID, userID, content string, ordinal int) string {
		id := fmt.Sprintf("%s/%s/%s/%d", postID, userID, content, ordinal)
		calls = append(calls, id)
		return id
	}

	comments, dropped := parseComments(doc, "7001", testNow, derive)
	if dropped != 0 || len(comments) != 4 {
		t.Fatalf("parseComments = %d comments, %d dropped; want 4, 0", len(comments), dropped)
	}
	if got, want := calls[1], "7001/bob/Congrats/0"; got != want {
		t.Errorf("first reply derived %q; want %q", got, want)
	}
	if got, want := calls[3], "7001/bob/Congrats/1"; got != want {
		t.Errorf("second reply derived %q; want %q", got, want)
	}
}
