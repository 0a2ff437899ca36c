package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/franckalain/livestockweight/internal/logger"
	"github.com/franckalain/livestockweight/internal/models"
	"github.com/google/uuid"
)

const maxResponseBytes = 8 << 20

// Client is the REST client of the livestock backend. Base URL, auth and
// timeouts live here; callers only see canonical models.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a backend client. A zero timeout leaves requests bounded
// only by their context.
func NewClient(baseURL, token string, timeout time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log.With("component", "transport"),
	}
}

// ListObservations fetches one page of a subject's observations
func (c *Client) ListObservations(ctx context.Context, subjectID string, page, limit int) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/subjects/%s/weighings?%s", c.baseURL, url.PathEscape(subjectID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	result, err := NormalizeObservations(body)
	if err != nil {
		return nil, &Error{Status: http.StatusOK, Class: ClassServer, Err: err}
	}
	if result.Skipped > 0 {
		c.log.Warn("dropped malformed observations", "subject_id", subjectID, "count", result.Skipped)
	}
	return result, nil
}

// CreateObservation persists an observation and returns the backend's record
func (c *Client) CreateObservation(ctx context.Context, obs models.Observation) (*models.Observation, error) {
	payload, err := json.Marshal(encodeObservation(obs))
	if err != nil {
		return nil, fmt.Errorf("failed to encode observation: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/weighings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return c.decodeOne(body)
}

// EstimateWeight uploads a capture for estimation. The backend persists the
// estimate and returns it with its assigned id.
func (c *Client) EstimateWeight(ctx context.Context, in models.EstimateRequest) (*models.Observation, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	name := in.ImageName
	if name == "" {
		name = "capture"
	}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	h.Set("Content-Type", in.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(in.Image); err != nil {
		return nil, err
	}

	fields := map[string]string{"breed": in.Breed}
	if in.SubjectID != "" {
		fields["subject_id"] = in.SubjectID
	}
	if in.GPS != nil {
		fields["gps_latitude"] = strconv.FormatFloat(in.GPS.Latitude, 'f', -1, 64)
		fields["gps_longitude"] = strconv.FormatFloat(in.GPS.Longitude, 'f', -1, 64)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/weighings/estimate", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return c.decodeOne(body)
}

// GetSubject fetches the subject record used for registration and birth events
func (c *Client) GetSubject(ctx context.Context, subjectID string) (*models.Subject, error) {
	var subject models.Subject
	if err := c.getJSON(ctx, "/subjects/"+url.PathEscape(subjectID), &subject); err != nil {
		return nil, err
	}
	return &subject, nil
}

// GetLineage fetches parentage metadata for a subject
func (c *Client) GetLineage(ctx context.Context, subjectID string) (*models.Lineage, error) {
	var lineage models.Lineage
	if err := c.getJSON(ctx, "/subjects/"+url.PathEscape(subjectID)+"/lineage", &lineage); err != nil {
		return nil, err
	}
	if lineage.SubjectID == "" {
		lineage.SubjectID = subjectID
	}
	return &lineage, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Status: http.StatusOK, Class: ClassServer, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
}

func (c *Client) decodeOne(body []byte) (*models.Observation, error) {
	obs, err := NormalizeObservation(body)
	if err != nil {
		return nil, &Error{Status: http.StatusOK, Class: ClassServer, Err: err}
	}
	return obs, nil
}

// do sends req and returns the body of a 2xx response; anything else becomes an *Error
func (c *Client) do(req *http.Request) ([]byte, error) {
	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("backend request failed", "method", req.Method, "path", req.URL.Path, "request_id", requestID, "error", err)
		return nil, &Error{Class: ClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Class: ClassNetwork, Err: err}
	}

	c.log.Debug("backend request", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode,
		"request_id", requestID, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Status:  resp.StatusCode,
			Class:   ClassOf(resp.StatusCode),
			Message: errorDetail(body),
		}
	}
	return body, nil
}

// errorDetail extracts the backend's error message from a failure body
func errorDetail(body []byte) string {
	var payload struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	switch d := payload.Detail.(type) {
	case string:
		return d
	case nil:
	default:
		if b, err := json.Marshal(d); err == nil {
			return string(b)
		}
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
