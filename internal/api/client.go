package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"misl/internal/model"
)

// Fetched is a list snapshot plus whether a cache served it.
type Fetched struct {
	List   model.List
	Cached bool
}

// Client speaks the list API. One Client serves one access code.
type Client struct {
	BaseURL    string
	AccessCode string
	HTTP       *http.Client
}

func New(baseURL, accessCode string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		AccessCode: strings.TrimSpace(accessCode),
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func entryPath(listType model.ListType, index int) string {
	return "/list/" + url.PathEscape(string(listType)) + "/" + strconv.Itoa(index)
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.AccessCode != "" {
		req.Header.Set(model.HeaderAccessCode, c.AccessCode)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		se := &StatusError{Op: op, Status: resp.StatusCode}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(b, &se.Body)
		return nil, se
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, op, method, path string, body any) error {
	resp, err := c.do(ctx, op, method, path, body)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) Info(ctx context.Context) (model.Info, error) {
	resp, err := c.do(ctx, "info", http.MethodGet, "/", nil)
	if err != nil {
		return model.Info{}, err
	}
	defer resp.Body.Close()
	var info model.Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return model.Info{}, &NetworkError{Op: "info", Err: err}
	}
	return info, nil
}

func (c *Client) GetList(ctx context.Context) (Fetched, error) {
	resp, err := c.do(ctx, "get list", http.MethodGet, "/list", nil)
	if err != nil {
		return Fetched{}, err
	}
	defer resp.Body.Close()
	var out Fetched
	if err := json.NewDecoder(resp.Body).Decode(&out.List); err != nil {
		return Fetched{}, &NetworkError{Op: "get list", Err: err}
	}
	out.List.Normalize()
	out.Cached = strings.EqualFold(resp.Header.Get(model.HeaderFromCache), "true")
	return out, nil
}

// CreateList does not need an access code.
func (c *Client) CreateList(ctx context.Context, title string) (string, error) {
	resp, err := c.do(ctx, "create list", http.MethodPut, "/list", title)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out model.CreateListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &NetworkError{Op: "create list", Err: err}
	}
	return out.ListCode, nil
}

func (c *Client) DeleteList(ctx context.Context) error {
	return c.send(ctx, "delete list", http.MethodDelete, "/list", nil)
}

func (c *Client) AddEntry(ctx context.Context, listType model.ListType, e model.Entry) error {
	return c.send(ctx, "add entry", http.MethodPut, "/list/"+url.PathEscape(string(listType)), e)
}

func (c *Client) ToggleEntry(ctx context.Context, listType model.ListType, index int, expected model.Entry) error {
	return c.send(ctx, "toggle entry", http.MethodPost, entryPath(listType, index), expected)
}

func (c *Client) DeleteEntry(ctx context.Context, listType model.ListType, index int, expected model.Entry) error {
	return c.send(ctx, "delete entry", http.MethodDelete, entryPath(listType, index), expected)
}

func (c *Client) EditEntry(ctx context.Context, listType model.ListType, index int, old, next model.Entry) error {
	return c.send(ctx, "edit entry", http.MethodPut, entryPath(listType, index), model.EditRequest{Old: old, New: next})
}

func (c *Client) ReplaceCategories(ctx context.Context, cats []model.Category) error {
	if cats == nil {
		cats = []model.Category{}
	}
	return c.send(ctx, "replace categories", http.MethodPut, "/list/categories", cats)
}

func (c *Client) ReplaceUnits(ctx context.Context, units []model.Unit) error {
	if units == nil {
		units = []model.Unit{}
	}
	return c.send(ctx, "replace units", http.MethodPut, "/list/units", units)
}
