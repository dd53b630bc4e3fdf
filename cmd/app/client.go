package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type cliConfig struct {
	Transport string `json:"transport"`
	Server    string `json:"server"`
	Socket    string `json:"socket"`
	Token     string `json:"token"`
}

// remoteError is what both transports report for a failed call; Code is the
// HTTP status of the failure.
type remoteError struct {
	Code    int
	Message string
}

func (e *remoteError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Code, e.Message)
}

func isRemoteStatus(err error, code int) bool {
	var remote *remoteError
	return errors.As(err, &remote) && remote.Code == code
}

type apiClient struct {
	httpClient *http.Client
	server     string
	token      string
}

func newAPIClient(server, token string) *apiClient {
	return &apiClient{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		server:     strings.TrimRight(server, "/"),
		token:      token,
	}
}

// request returns the response headers so callers can pick up the ETag.
func (c *apiClient) request(ctx context.Context, method, path string, in any, headers map[string]string, out any) (http.Header, error) {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return nil, err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		var problem struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload, &problem) != nil || problem.Message == "" {
			problem.Message = strings.TrimSpace(string(payload))
		}
		return resp.Header, &remoteError{Code: resp.StatusCode, Message: problem.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.Header, nil
	}
	return resp.Header, json.NewDecoder(resp.Body).Decode(out)
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sciencemap", "config.json"), nil
}

func defaultCLIConfig() cliConfig {
	return cliConfig{Transport: "uds", Server: "http://127.0.0.1:8080", Socket: "/tmp/sciencemap.sock"}
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultCLIConfig(), nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	defaults := defaultCLIConfig()
	if cfg.Transport == "" {
		cfg.Transport = defaults.Transport
	}
	if cfg.Server == "" {
		cfg.Server = defaults.Server
	}
	if cfg.Socket == "" {
		cfg.Socket = defaults.Socket
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	return nil
}
