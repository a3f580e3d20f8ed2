package mova

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExampleDecodesUpstreamShape(t *testing.T) {
	t.Parallel()

	payload := `[{"id":1,"title":"Rule A","content":"<p>x</p>","image":"img/a.png","category":1}]`

	var examples []Example
	if err := json.Unmarshal([]byte(payload), &examples); err != nil {
		t.Fatalf("unmarshal examples: %v", err)
	}
	want := []Example{{ID: 1, Title: "Rule A", Content: "<p>x</p>", Image: "img/a.png", CategoryID: 1}}
	if diff := cmp.Diff(want, examples); diff != "" {
		t.Fatalf("examples mismatch (-want +got):\n%s", diff)
	}
}

func TestContentErrorMatchesSentinelByKind(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("get categories: %w", &ContentError{
		Kind: ContentErrorSourceUnavailable,
		Op:   "fetch categories",
		Err:  cause,
	})

	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("errors.Is(err, ErrSourceUnavailable) = false, want true (err=%v)", err)
	}
	if errors.Is(err, ErrCacheUnavailable) {
		t.Fatal("errors.Is(err, ErrCacheUnavailable) = true, want false")
	}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is(err, cause) = false, want true")
	}

	kind, ok := ContentErrorKindOf(err)
	if !ok || kind != ContentErrorSourceUnavailable {
		t.Fatalf("ContentErrorKindOf() = (%q, %v), want (%q, true)", kind, ok, ContentErrorSourceUnavailable)
	}
	if _, ok := ContentErrorKindOf(cause); ok {
		t.Fatal("ContentErrorKindOf(plain) = true, want false")
	}
}

func TestContentErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ContentError{Kind: ContentErrorDeserialization, Op: "load examples", Err: errors.New("unexpected EOF")}
	want := "load examples: deserialization_failure: unexpected EOF"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
