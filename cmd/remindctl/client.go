package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// apiClient is a thin resty wrapper over the service's JSON API.
type apiClient struct {
	baseURL string
	token   string
	http    *resty.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    resty.New().SetBaseURL(baseURL).SetTimeout(5 * time.Minute),
	}
}

func (c *apiClient) setToken(token string) {
	c.token = token
	c.http.SetAuthToken(token)
}

type apiError struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	var e apiError
	if json.Unmarshal(resp.Body(), &e) == nil && e.Message != "" {
		if e.Field != "" {
			return fmt.Errorf("http %d: %s (%s)", resp.StatusCode(), e.Message, e.Field)
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode(), e.Message)
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
}

func (c *apiClient) get(path string, out interface{}) error {
	return check(c.http.R().SetResult(out).Get(path))
}

func (c *apiClient) send(method, path string, body, out interface{}) error {
	r := c.http.R()
	if body != nil {
		r.SetBody(body)
	}
	if out != nil {
		r.SetResult(out)
	}
	return check(r.Execute(method, path))
}
