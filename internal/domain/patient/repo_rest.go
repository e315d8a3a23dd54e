package patient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RemoteError is returned when the hosted data API answers with a non-2xx status.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("data api returned status %d: %s", e.StatusCode, e.Body)
}

// patientRepoREST talks to a PostgREST-style hosted data API exposing the
// patients table under /rest/v1/patients.
type patientRepoREST struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewPatientRepoREST returns a Repository backed by a hosted data API.
func NewPatientRepoREST(baseURL, apiKey string, timeout time.Duration) Repository {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &patientRepoREST{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *patientRepoREST) tableURL(query url.Values) string {
	u := r.baseURL + "/rest/v1/patients"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (r *patientRepoREST) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do executes req and decodes a JSON array of records from a 2xx response.
func (r *patientRepoREST) do(req *http.Request) ([]*Record, *http.Response, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp, &RemoteError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var records []*Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, resp, fmt.Errorf("decode response: %w", err)
	}
	return records, resp, nil
}

func (r *patientRepoREST) InsertPatient(ctx context.Context, in InsertRequest) (*Record, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode patient: %w", err)
	}
	req, err := r.newRequest(ctx, http.MethodPost, r.tableURL(nil), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")

	records, _, err := r.do(req)
	if err != nil {
		return nil, fmt.Errorf("patient insert: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("patient insert: data api returned no record")
	}
	if records[0].PatientID == "" {
		return nil, errors.New("patient insert: created record has no patient_id")
	}
	return records[0], nil
}

func (r *patientRepoREST) getOne(ctx context.Context, column, value string) (*Record, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set(column, "eq."+value)
	q.Set("limit", "1")
	req, err := r.newRequest(ctx, http.MethodGet, r.tableURL(q), nil)
	if err != nil {
		return nil, err
	}
	records, _, err := r.do(req)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

func (r *patientRepoREST) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.getOne(ctx, "id", id.String())
}

func (r *patientRepoREST) GetByPatientID(ctx context.Context, patientID string) (*Record, error) {
	return r.getOne(ctx, "patient_id", patientID)
}

func (r *patientRepoREST) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	req, err := r.newRequest(ctx, http.MethodGet, r.tableURL(q), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Prefer", "count=exact")

	records, resp, err := r.do(req)
	if err != nil {
		return nil, 0, err
	}
	total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	if !ok {
		total = offset + len(records)
	}
	return records, total, nil
}

// parseContentRangeTotal reads the total from a "0-9/42" style header.
func parseContentRangeTotal(h string) (int, bool) {
	i := strings.LastIndex(h, "/")
	if i < 0 || i == len(h)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(h[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
