package moodle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"berichtsheft/internal/domain"
	"berichtsheft/internal/httpx"
)

// Client talks to a Moodle instance over the mobile web-service API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: httpx.Client(),
	}
}

var htmlMarker = regexp.MustCompile(`(?i)</?(html|head|body|title)`)

// hasHTML detects an HTML page where JSON was expected. Moodle answers
// with a login or error page instead of a web-service error when SSO
// intercepts the request or the mobile service is disabled.
func hasHTML(s string) bool {
	return htmlMarker.MatchString(s)
}

// trailing ";a" shows up when the password was pasted out of a URL.
var pasteArtifact = regexp.MustCompile(`;a$`)

type tokenResponse struct {
	Token     string `json:"token"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorcode"`
}

// Token exchanges username/password for a mobile-app web-service token.
func (c *Client) Token(ctx context.Context, username, password string) (string, error) {
	form := url.Values{
		"username": {username},
		"password": {pasteArtifact.ReplaceAllString(password, "")},
		"service":  {"moodle_mobile_app"},
	}

	body, err := c.postForm(ctx, c.BaseURL+"/login/token.php", form)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if hasHTML(string(body)) {
			return "", fmt.Errorf("token endpoint returned HTML (SSO redirect or mobile service disabled): %s", truncate(body, 200))
		}
		return "", fmt.Errorf("token endpoint returned non-JSON: %s", truncate(body, 200))
	}
	if resp.Error != "" {
		return "", fmt.Errorf("token rejected: %s (%s)", resp.Error, resp.ErrorCode)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("no token in response: %s", truncate(body, 200))
	}
	return resp.Token, nil
}

type wsException struct {
	Exception string `json:"exception"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorcode"`
}

// callWS invokes one Moodle web-service function and returns the raw
// JSON body after rejecting HTML pages and exception envelopes.
func (c *Client) callWS(ctx context.Context, token, wsfunction string, params url.Values) (json.RawMessage, error) {
	form := url.Values{
		"moodlewsrestformat": {"json"},
		"wstoken":            {token},
		"wsfunction":         {wsfunction},
	}
	for key, values := range params {
		form[key] = values
	}

	body, err := c.postForm(ctx, c.BaseURL+"/webservice/rest/server.php", form)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wsfunction, err)
	}

	if !json.Valid(body) {
		if hasHTML(string(body)) {
			return nil, fmt.Errorf("%s returned HTML (missing web-service permission?): %s", wsfunction, truncate(body, 200))
		}
		return nil, fmt.Errorf("%s returned non-JSON: %s", wsfunction, truncate(body, 200))
	}

	var exc wsException
	if err := json.Unmarshal(body, &exc); err == nil && exc.Exception != "" {
		return nil, fmt.Errorf("%s failed: %s: %s [%s]", wsfunction, exc.Exception, exc.Message, exc.ErrorCode)
	}

	return body, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 300))
	}
	return body, nil
}

type siteInfo struct {
	UserID int64 `json:"userid"`
}

// SiteUserID looks up the numeric user id behind the token.
func (c *Client) SiteUserID(ctx context.Context, token string) (int64, error) {
	raw, err := c.callWS(ctx, token, "core_webservice_get_site_info", nil)
	if err != nil {
		return 0, err
	}
	var info siteInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return 0, fmt.Errorf("parsing site info: %w", err)
	}
	if info.UserID == 0 {
		return 0, fmt.Errorf("site info carries no user id")
	}
	return info.UserID, nil
}

// Courses lists the user's enrolled courses.
func (c *Client) Courses(ctx context.Context, token string, userID int64) ([]domain.Course, error) {
	raw, err := c.callWS(ctx, token, "core_enrol_get_users_courses", url.Values{
		"userid": {strconv.FormatInt(userID, 10)},
	})
	if err != nil {
		return nil, err
	}
	var courses []domain.Course
	if err := json.Unmarshal(raw, &courses); err != nil {
		return nil, fmt.Errorf("parsing courses: %w", err)
	}
	return courses, nil
}

type assignmentsResponse struct {
	Courses []struct {
		ID          int64  `json:"id"`
		ShortName   string `json:"shortname"`
		FullName    string `json:"fullname"`
		Assignments []struct {
			ID         int64  `json:"id"`
			Name       string `json:"name"`
			DueDate    int64  `json:"duedate"`
			CutoffDate int64  `json:"cutoffdate"`
		} `json:"assignments"`
	} `json:"courses"`
	Warnings []struct {
		Item        string `json:"item"`
		ItemID      int64  `json:"itemid"`
		WarningCode string `json:"warningcode"`
		Message     string `json:"message"`
	} `json:"warnings"`
}

// Assignments fetches upload assignments for all given courses in one
// batched call. Courses the remote could not serve come back as warning
// strings alongside the assignments it did deliver; zero due/cutoff
// dates are preserved as "not set".
func (c *Client) Assignments(ctx context.Context, token string, courseIDs []int64) ([]domain.Assignment, []string, error) {
	params := url.Values{}
	for i, id := range courseIDs {
		params.Set(fmt.Sprintf("courseids[%d]", i), strconv.FormatInt(id, 10))
	}

	raw, err := c.callWS(ctx, token, "mod_assign_get_assignments", params)
	if err != nil {
		return nil, nil, err
	}

	var resp assignmentsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, fmt.Errorf("parsing assignments: %w", err)
	}

	var assignments []domain.Assignment
	for _, course := range resp.Courses {
		for _, a := range course.Assignments {
			assignments = append(assignments, domain.Assignment{
				ID:         a.ID,
				Name:       a.Name,
				DueDate:    a.DueDate,
				CutoffDate: a.CutoffDate,
				Course: domain.Course{
					ID:        course.ID,
					ShortName: course.ShortName,
					FullName:  course.FullName,
				},
			})
		}
	}

	var warnings []string
	for _, w := range resp.Warnings {
		warnings = append(warnings, fmt.Sprintf("%s %d: %s (%s)", w.Item, w.ItemID, w.Message, w.WarningCode))
	}

	return assignments, warnings, nil
}

// FetchAll runs the full token -> user -> courses -> assignments chain.
// Authentication and course-list failures are fatal; a failed assignment
// batch still returns the course list with the failure recorded in
// Errors, so a partially broken LMS never blanks the whole report.
func (c *Client) FetchAll(ctx context.Context, username, password string) (*domain.AssignmentData, error) {
	token, err := c.Token(ctx, username, password)
	if err != nil {
		return nil, err
	}

	userID, err := c.SiteUserID(ctx, token)
	if err != nil {
		return nil, err
	}

	courses, err := c.Courses(ctx, token, userID)
	if err != nil {
		return nil, err
	}

	data := &domain.AssignmentData{Courses: courses}
	if len(courses) == 0 {
		return data, nil
	}

	ids := make([]int64, len(courses))
	for i, course := range courses {
		ids[i] = course.ID
	}

	assignments, warnings, err := c.Assignments(ctx, token, ids)
	if err != nil {
		log.Printf("moodle assignments fetch failed, keeping course list: %v", err)
		data.Errors = append(data.Errors, err.Error())
		return data, nil
	}

	data.Assignments = assignments
	data.Errors = append(data.Errors, warnings...)
	log.Printf("moodle fetched courses=%d assignments=%d warnings=%d", len(courses), len(assignments), len(warnings))
	return data, nil
}

func truncate(b []byte, max int) string {
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
