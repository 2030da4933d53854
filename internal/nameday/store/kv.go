package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"nameday/internal/httpclient"
	"nameday/internal/nameday"
)

// DefaultKVKey is the key holding the calendar JSON.
const DefaultKVKey = "namedays"

// KVStore keeps the calendar under one key of an Upstash Redis database,
// spoken to over its REST API.
type KVStore struct {
	client  *http.Client
	baseURL string
	token   string
	key     string
}

// NewKVStore creates a store for the REST endpoint baseURL.
func NewKVStore(client *http.Client, baseURL, token, key string) *KVStore {
	if client == nil {
		client = http.DefaultClient
	}
	if key == "" {
		key = DefaultKVKey
	}
	return &KVStore{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		key:     key,
	}
}

func (s *KVStore) Name() string { return "kv" }

type kvResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// Load reads the key. An unset key yields an empty calendar. The value may
// be a JSON string holding the calendar or the calendar object itself.
func (s *KVStore) Load(ctx context.Context) (nameday.Calendar, error) {
	resp, err := s.call(ctx, http.MethodGet, "get", nil)
	if err != nil {
		return nil, err
	}
	raw := bytes.TrimSpace(resp.Result)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nameday.Calendar{}, nil
	}
	if raw[0] == '"' {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("decode kv value: %w", err)
		}
		raw = []byte(value)
	}
	return decodeCalendar(raw)
}

// Save stores the calendar as a compact JSON string.
func (s *KVStore) Save(ctx context.Context, cal nameday.Calendar) error {
	data, err := EncodeCalendar(cal, false)
	if err != nil {
		return err
	}
	_, err = s.call(ctx, http.MethodPost, "set", bytes.TrimSpace(data))
	return err
}

func (s *KVStore) call(ctx context.Context, method, command string, body []byte) (*kvResponse, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", s.baseURL, command, url.PathEscape(s.key))
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("kv %s: %w", command, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	data, err := httpclient.Do(s.client, req)
	if err != nil {
		return nil, fmt.Errorf("kv %s: %w", command, err)
	}
	var resp kvResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("kv %s: decode response: %w", command, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("kv %s: %s", command, resp.Error)
	}
	return &resp, nil
}
