package groups

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"editgate/internal/domain"
	editgatesdk "editgate/sdk/go"
)

func TestForPatternSelectsQueryForm(t *testing.T) {
	q := ForPattern("A/Program_Chairs|A/Submission1/Authors", "~Me1")
	assert.Equal(t, ModeRegex, q.Mode())
	assert.Equal(t, "A/Program_Chairs|A/Submission1/Authors", q.Regex)
	assert.Empty(t, q.Prefix)
	assert.Equal(t, "~Me1", q.Signatory)

	q = ForPattern("A/Submission1/Reviewer_.*", "")
	assert.Equal(t, ModePrefix, q.Mode())
	assert.Equal(t, "A/Submission1/Reviewer_.*", q.Prefix)

	assert.Equal(t, ModeID, ForID("A/Program_Chairs").Mode())
}

func TestQueryKeyDistinguishesSignatory(t *testing.T) {
	a := ForPattern("A/.*", "~One1")
	b := ForPattern("A/.*", "~Two1")
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), ForPattern("A/.*", "~One1").Key())
}

func TestSessionSuppressesDuplicateLookups(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	lookup := LookupFunc(func(ctx context.Context, q Query) ([]domain.Group, error) {
		calls.Add(1)
		<-release
		return []domain.Group{{ID: q.Pattern() + "/1"}}, nil
	})
	s := NewSession(lookup, nil)

	var wg sync.WaitGroup
	results := make([][]domain.Group, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gs, err := s.Groups(context.Background(), ForPattern("A/.*", ""))
			assert.NoError(t, err)
			results[i] = gs
		}(i)
	}
	close(release)
	wg.Wait()

	gs, err := s.Groups(context.Background(), ForPattern("A/.*", ""))
	require.NoError(t, err)
	assert.Equal(t, "A/.*/1", gs[0].ID)
	for _, r := range results {
		assert.Equal(t, gs, r)
	}
	assert.Equal(t, int32(1), calls.Load())

	_, err = s.Groups(context.Background(), ForPattern("B/.*", ""))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSessionsDoNotShareResults(t *testing.T) {
	var calls atomic.Int32
	lookup := LookupFunc(func(ctx context.Context, q Query) ([]domain.Group, error) {
		calls.Add(1)
		return nil, nil
	})
	for i := 0; i < 3; i++ {
		_, err := NewSession(lookup, nil).Groups(context.Background(), ForID("A"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestSessionWrapsFailures(t *testing.T) {
	boom := errors.New("connection refused")
	s := NewSession(LookupFunc(func(ctx context.Context, q Query) ([]domain.Group, error) {
		return nil, boom
	}), nil)
	_, err := s.Groups(context.Background(), ForPattern("A/.*", ""))
	var le *LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "A/.*", le.Query.Prefix)
	assert.ErrorIs(t, err, boom)
}

func TestClientQueryForms(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.RawQuery)
		mu.Unlock()
		if r.URL.Query().Get("prefix") == "missing.*" {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"code":"bad_gateway","message":"upstream down"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"groups": []map[string]any{{"id": "everyone"}, {"id": "A/Reviewers", "members": []string{"~R1"}}},
		})
	}))
	defer srv.Close()

	c := NewClient(editgatesdk.New(srv.URL))
	gs, err := c.Groups(context.Background(), ForPattern("A/Reviewers|everyone", "~Me1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"everyone", "A/Reviewers"}, IDs(gs))
	assert.Equal(t, []string{"~R1"}, gs[1].Members)

	_, err = c.Groups(context.Background(), ForPattern("A/.*", ""))
	require.NoError(t, err)

	_, err = c.Groups(context.Background(), ForPattern("missing.*", ""))
	var le *LookupError
	require.ErrorAs(t, err, &le)
	var apiErr *editgatesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream down", apiErr.Message)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, "regex=A%2FReviewers%7Ceveryone&signatory=~Me1", seen[0])
	assert.Equal(t, "prefix=A%2F.%2A", seen[1])
}

func TestClientRateLimitHonoursContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"groups": []map[string]any{{"id": "everyone"}}})
	}))
	defer srv.Close()

	c := NewClient(editgatesdk.New(srv.URL)).WithRateLimit(0.001, 1)
	require.NotNil(t, c.Limiter)
	_, err := c.Groups(context.Background(), ForID("everyone"))
	require.NoError(t, err)

	// The burst is spent; the next query cannot be admitted before the deadline.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Groups(ctx, ForID("everyone"))
	var le *LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, int32(1), calls.Load())

	assert.Nil(t, NewClient(editgatesdk.New(srv.URL)).WithRateLimit(0, 5).Limiter)
}
