package enrichment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/emlsync/pkg/intelligence"
)

func testdataPath(name string) string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "testdata", name)
}

type mockParser struct {
	mock.Mock
}

func (m *mockParser) ParseCompany(ctx context.Context, text string) (*intelligence.CompanyDetails, error) {
	args := m.Called(ctx, text)
	details, _ := args.Get(0).(*intelligence.CompanyDetails)
	return details, args.Error(1)
}

type stubProvider struct {
	name    string
	details *intelligence.CompanyDetails
	err     error
	calls   int
	delay   time.Duration
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Lookup(ctx context.Context, query, domain string) (*intelligence.CompanyDetails, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.details, s.err
}

func TestChain_FirstHitWins(t *testing.T) {
	first := &stubProvider{name: "first", err: errors.New("blocked")}
	second := &stubProvider{name: "second", details: &intelligence.CompanyDetails{Name: "Acme", Sector: "Robotics"}}
	third := &stubProvider{name: "third", details: &intelligence.CompanyDetails{Name: "Other"}}

	c := NewChain([]Provider{first, second, third})
	details, err := c.Lookup(context.Background(), "acme robotics", "acme.example")

	require.NoError(t, err)
	assert.Equal(t, "Acme", details.Name)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls)
	assert.Equal(t, []string{"first", "second", "third"}, c.Providers())
}

func TestChain_EmptyResultFallsThrough(t *testing.T) {
	empty := &stubProvider{name: "empty", details: &intelligence.CompanyDetails{}}
	good := &stubProvider{name: "good", details: &intelligence.CompanyDetails{Sector: "Retail"}}

	details, err := NewChain([]Provider{empty, good}).Lookup(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, "Retail", details.Sector)
}

func TestChain_AllFail(t *testing.T) {
	a := &stubProvider{name: "a", err: errors.New("down")}
	b := &stubProvider{name: "b"}

	_, err := NewChain([]Provider{a, b}).Lookup(context.Background(), "q", "d.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Contains(t, err.Error(), "b:")
}

func TestChain_NoSeeds(t *testing.T) {
	p := &stubProvider{name: "p"}
	_, err := NewChain([]Provider{p}).Lookup(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Equal(t, 0, p.calls)

	_, err = NewChain(nil).Lookup(context.Background(), "q", "")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestChain_Timeout(t *testing.T) {
	slow := &stubProvider{name: "slow", delay: time.Second, details: &intelligence.CompanyDetails{Name: "late"}}
	fast := &stubProvider{name: "fast", details: &intelligence.CompanyDetails{Name: "Acme"}}

	c := NewChain([]Provider{slow, fast}, WithTimeout(50*time.Millisecond))
	details, err := c.Lookup(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, "Acme", details.Name)
}

func TestNew(t *testing.T) {
	c, err := New(Config{Providers: []string{"duckduckgo", " Website ", ""}}, &mockParser{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{ProviderDuckDuckGo, ProviderWebsite}, c.Providers())

	_, err = New(Config{Providers: []string{"bing"}}, &mockParser{}, nil)
	assert.ErrorContains(t, err, "bing")

	assert.Equal(t, []string{ProviderDuckDuckGo}, DefaultConfig().Providers)
}

func TestDuckDuckGo_Lookup(t *testing.T) {
	page, err := os.ReadFile(testdataPath("ddg_results.html"))
	require.NoError(t, err)

	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		gotQuery = r.PostForm.Get("q")
		gotUA = r.UserAgent()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(page)
	}))
	defer srv.Close()

	parser := &mockParser{}
	parser.On("ParseCompany", mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "Acme Robotics builds warehouse robots.") &&
			strings.Contains(text, "https://acme.example/") &&
			strings.Contains(text, "The Austin startup raised $40M.") &&
			!strings.Contains(text, "Sponsored") &&
			!strings.Contains(text, "Should not be included")
	})).Return(&intelligence.CompanyDetails{Name: "Acme Robotics", Sector: "Robotics"}, nil)

	d := NewDuckDuckGo(parser, srv.Client(), WithBaseURL(srv.URL), WithUserAgent("test-agent"))
	details, err := d.Lookup(context.Background(), "", "acme.example")

	require.NoError(t, err)
	assert.Equal(t, "Robotics", details.Sector)
	assert.Equal(t, "acme.example", gotQuery)
	assert.Equal(t, "test-agent", gotUA)
	parser.AssertExpectations(t)
}

func TestDuckDuckGo_Search(t *testing.T) {
	page, err := os.ReadFile(testdataPath("ddg_results.html"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(page)
	}))
	defer srv.Close()

	results, err := NewDuckDuckGo(nil, srv.Client(), WithBaseURL(srv.URL)).Search(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Acme Robotics | Industrial automation", results[0].Title)
	assert.Equal(t, "https://acme.example/", results[0].URL)
	assert.Equal(t, "https://www.linkedin.com/company/acme-robotics", results[1].URL)
}

func TestDuckDuckGo_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := NewDuckDuckGo(&mockParser{}, srv.Client(), WithBaseURL(srv.URL))
	_, err := d.Lookup(context.Background(), "acme", "")
	assert.ErrorContains(t, err, "403")

	_, err = d.Lookup(context.Background(), " ", "")
	assert.ErrorIs(t, err, ErrNoResult)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>No results.</body></html>"))
	}))
	defer empty.Close()

	_, err = NewDuckDuckGo(&mockParser{}, empty.Client(), WithBaseURL(empty.URL)).Lookup(context.Background(), "acme", "")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestWebsite_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><style>p{}</style></head><body><h1>Acme Robotics</h1><p>We build robots in Austin.</p></body></html>`))
	}))
	defer srv.Close()

	parser := &mockParser{}
	parser.On("ParseCompany", mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "We build robots in Austin.") && !strings.Contains(text, "<p>")
	})).Return(&intelligence.CompanyDetails{Name: "Acme Robotics", City: "Austin"}, nil)

	w := NewWebsite(parser, srv.Client(), WithBaseURL(srv.URL))
	details, err := w.Lookup(context.Background(), "ignored", "Acme.Example")

	require.NoError(t, err)
	assert.Equal(t, "Austin", details.City)
	assert.Equal(t, "acme.example", details.Website)
	parser.AssertExpectations(t)

	_, err = w.Lookup(context.Background(), "q", "")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestWebsite_ParserError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<p>hello</p>`))
	}))
	defer srv.Close()

	parser := &mockParser{}
	parser.On("ParseCompany", mock.Anything, mock.Anything).Return(nil, errors.New("model down"))

	_, err := NewWebsite(parser, srv.Client(), WithBaseURL(srv.URL)).Lookup(context.Background(), "", "acme.example")
	assert.ErrorContains(t, err, "model down")
}
