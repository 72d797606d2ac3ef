package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultEndpoint = "https://api.github.com/repos/a-kowalski/mindkeep/releases/latest"

// Release is the subset of the GitHub release payload the checker reads.
type Release struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	URL     string `json:"html_url"`
}

// Checker queries a GitHub releases feed for builds newer than the
// running one.
type Checker struct {
	client   *http.Client
	endpoint string
}

// NewChecker returns a checker against the project's release feed.
func NewChecker() *Checker {
	return &Checker{
		client:   &http.Client{Timeout: 5 * time.Second},
		endpoint: defaultEndpoint,
	}
}

// Latest returns the newest published release if it is newer than the
// running build, nil when already current or never released.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "mindkeep/"+Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// No releases published yet.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github api returned status %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}

	if IsNewer(Version, strings.TrimPrefix(release.TagName, "v")) {
		return &release, nil
	}
	return nil, nil
}

// IsNewer compares two dotted version strings and reports whether latest
// is newer than current.
func IsNewer(current, latest string) bool {
	if latest == "" {
		return false
	}

	cParts := strings.Split(current, ".")
	lParts := strings.Split(latest, ".")

	for i := 0; i < len(cParts) && i < len(lParts); i++ {
		cVal, _ := strconv.Atoi(cParts[i])
		lVal, _ := strconv.Atoi(lParts[i])

		if lVal > cVal {
			return true
		}
		if lVal < cVal {
			return false
		}
	}

	return len(lParts) > len(cParts)
}
