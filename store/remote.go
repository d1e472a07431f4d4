package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"whatsapp-session-keeper/types"
)

// RemoteStore talks to a session backup service over HTTP. The wire shape
// follows the storage backend's /api/sessions surface: multipart upload,
// JSON listing, raw-byte download.
type RemoteStore struct {
	base   string
	client *http.Client
}

// NewRemoteStore creates a store client for the given base URL, e.g.
// "http://backup.internal:8000".
func NewRemoteStore(baseURL string) *RemoteStore {
	return &RemoteStore{
		base:   baseURL,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type uploadResponse struct {
	Success bool   `json:"success"`
	FileID  string `json:"file_id"`
}

type listResponse struct {
	Success  bool             `json:"success"`
	Sessions []types.BlobInfo `json:"sessions"`
	Count    int              `json:"count"`
}

func (s *RemoteStore) Put(ctx context.Context, identity types.BotIdentity, data []byte) (PutResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fmt.Sprintf("%s.session", identity))
	if err != nil {
		return PutResult{}, err
	}
	if _, err := part.Write(data); err != nil {
		return PutResult{}, err
	}
	if err := mw.Close(); err != nil {
		return PutResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(identity, "upload"), &body)
	if err != nil {
		return PutResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return PutResult{}, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return PutResult{}, err
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return PutResult{}, fmt.Errorf("%w: decoding upload response: %v", types.ErrStoreRejected, err)
	}
	return PutResult{ID: out.FileID, CreatedAt: time.Now().UTC()}, nil
}

func (s *RemoteStore) List(ctx context.Context, identity types.BotIdentity) ([]types.BlobInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(identity, ""), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding session list: %v", types.ErrStoreRejected, err)
	}
	return out.Sessions, nil
}

func (s *RemoteStore) Get(ctx context.Context, identity types.BotIdentity, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(identity, "download/"+url.PathEscape(id)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (s *RemoteStore) Delete(ctx context.Context, identity types.BotIdentity, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.endpoint(identity, url.PathEscape(id)), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (s *RemoteStore) endpoint(identity types.BotIdentity, suffix string) string {
	u := fmt.Sprintf("%s/api/sessions", s.base)
	if suffix != "" {
		u += "/" + suffix
	}
	return u + "?identity=" + url.QueryEscape(string(identity))
}

// checkStatus maps HTTP status codes onto the store error taxonomy.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return types.ErrNotFound
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode >= 500:
		return fmt.Errorf("%w: backend returned %d", types.ErrStoreUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: backend returned %d", types.ErrStoreRejected, resp.StatusCode)
	}
}
