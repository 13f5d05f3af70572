// Package portal talks to the external academic records portal: it performs
// the credentialed login and turns the returned markup into course records.
//
// The portal requires a stateful login, so every Login uses a fresh cookie
// jar and the returned content comes from the same logical session that
// submitted the credentials.
package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ayzhao/gradesync/internal/errs"
)

// DefaultBaseURL is the portal login endpoint.
const DefaultBaseURL = "https://ta.yrdsb.ca/live/index.php"

// successMarker must be present in a logged-in report page.
const successMarker = "Student Reports"

// rejectionPhrases in the response body mean the portal refused the login
// regardless of the HTTP status.
var rejectionPhrases = []string{
	"Invalid Login",
	"Access Denied",
	"Session Expired",
	"YRDSB teachassist login",
}

// Client performs credentialed logins against the portal.
type Client struct {
	baseURL string
	timeout time.Duration
}

// NewClient constructs a portal client. An empty baseURL selects the
// production portal endpoint.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{baseURL: baseURL, timeout: timeout}
}

// Login submits credentials and returns the raw report markup.
// Failures are classified by response content, not status code alone:
// a missing success marker or any known rejection phrase is
// errs.ErrInvalidCredentials; transport failures and server errors are
// errs.ErrPortalUnavailable. No retries are performed here.
func (c *Client) Login(ctx context.Context, studentID, password string) (string, error) {
	if studentID == "" || password == "" {
		return "", errs.ErrInvalidCredentials
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("portal url: %w", err)
	}
	q := u.Query()
	q.Set("username", studentID)
	q.Set("password", password)
	q.Set("submit", "Login")
	q.Set("subject_id", "0")
	u.RawQuery = q.Encode()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", err
	}
	httpc := &http.Client{Jar: jar, Timeout: c.timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return "", err
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrPortalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("%w: status %d", errs.ErrPortalUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrPortalUnavailable, err)
	}
	html := string(body)

	for _, phrase := range rejectionPhrases {
		if strings.Contains(html, phrase) {
			return "", errs.ErrInvalidCredentials
		}
	}
	if !strings.Contains(html, successMarker) {
		return "", errs.ErrInvalidCredentials
	}
	return html, nil
}
