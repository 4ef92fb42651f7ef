package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const dropboxContentURL = "https://content.dropboxapi.com/2"

// Remote stores whole-file snapshots under a fixed path.
type Remote interface {
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
}

// DropboxClient uploads and downloads files through the Dropbox content API.
type DropboxClient struct {
	contentURL string
	auth       *Reauthorizer
	httpClient *http.Client
}

func NewDropboxClient(auth *Reauthorizer) *DropboxClient {
	return &DropboxClient{
		contentURL: dropboxContentURL,
		auth:       auth,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type dropboxArg struct {
	Path       string `json:"path"`
	Mode       string `json:"mode,omitempty"`
	Autorename bool   `json:"autorename,omitempty"`
	Mute       bool   `json:"mute,omitempty"`
}

// Upload overwrites remotePath with the content of localPath.
func (c *DropboxClient) Upload(ctx context.Context, localPath, remotePath string) error {
	return c.auth.Do(ctx, "dropbox upload", func(ctx context.Context, token string) error {
		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", localPath, err)
		}
		defer f.Close()

		resp, err := c.do(ctx, "/files/upload", token, dropboxArg{Path: remotePath, Mode: "overwrite", Mute: true}, f)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
}

// Download writes remotePath to localPath, replacing it only once the whole
// file was received.
func (c *DropboxClient) Download(ctx context.Context, remotePath, localPath string) error {
	return c.auth.Do(ctx, "dropbox download", func(ctx context.Context, token string) error {
		resp, err := c.do(ctx, "/files/download", token, dropboxArg{Path: remotePath}, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return writeFileAtomic(localPath, resp.Body)
	})
}

func (c *DropboxClient) do(ctx context.Context, endpoint, token string, arg dropboxArg, body io.Reader) (*http.Response, error) {
	rawArg, err := json.Marshal(arg)
	if err != nil {
		return nil, fmt.Errorf("encode dropbox arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Dropbox-API-Arg", string(rawArg))
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dropbox %s: %w", endpoint, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	text := strings.TrimSpace(string(msg))
	if resp.StatusCode == http.StatusConflict && strings.Contains(text, "not_found") {
		return nil, fmt.Errorf("%s: %w", arg.Path, ErrNotFound)
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Message: text}
}

func writeFileAtomic(path string, r io.Reader) error {
	tmp := path + ".download"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
