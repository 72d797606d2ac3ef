package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChecker(t *testing.T, handler http.HandlerFunc) *Checker {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &Checker{client: server.Client(), endpoint: server.URL}
}

func TestLatestReportsNewerRelease(t *testing.T) {
	checker := testChecker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mindkeep/"+Version, r.Header.Get("User-Agent"))
		w.Write([]byte(`{"tag_name": "v99.0.0", "name": "v99.0.0", "html_url": "https://example.com/rel"}`))
	})

	release, err := checker.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, release)
	assert.Equal(t, "v99.0.0", release.TagName)
	assert.Equal(t, "https://example.com/rel", release.URL)
}

func TestLatestNilWhenCurrent(t *testing.T) {
	checker := testChecker(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tag_name": "v` + Version + `"}`))
	})

	release, err := checker.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, release)
}

func TestLatestNilWhenNeverReleased(t *testing.T) {
	checker := testChecker(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	release, err := checker.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, release)
}

func TestLatestErrorsOnServerFailure(t *testing.T) {
	checker := testChecker(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := checker.Latest(context.Background())
	assert.Error(t, err)
}

func TestIsNewer(t *testing.T) {
	assert.True(t, IsNewer("0.3.0", "0.3.1"))
	assert.True(t, IsNewer("0.3.0", "1.0.0"))
	assert.True(t, IsNewer("0.3", "0.3.1"), "longer dotted tail wins")
	assert.False(t, IsNewer("0.3.0", "0.3.0"))
	assert.False(t, IsNewer("0.3.0", "0.2.9"))
	assert.False(t, IsNewer("0.3.0", ""))
}
