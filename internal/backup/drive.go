package backup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveClient keeps the snapshot as a single file in Google Drive, looked up by
// name (and parent folder when configured).
type DriveClient struct {
	auth     *Reauthorizer
	folderID string
	opts     []option.ClientOption
}

func NewDriveClient(auth *Reauthorizer, folderID string, opts ...option.ClientOption) *DriveClient {
	return &DriveClient{auth: auth, folderID: folderID, opts: opts}
}

func (c *DriveClient) service(ctx context.Context, token string) (*drive.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, c.opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return srv, nil
}

// Upload creates or replaces the file named after remotePath.
func (c *DriveClient) Upload(ctx context.Context, localPath, remotePath string) error {
	return c.auth.Do(ctx, "drive upload", func(ctx context.Context, token string) error {
		srv, err := c.service(ctx, token)
		if err != nil {
			return err
		}

		id, err := c.findFile(ctx, srv, remotePath)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", localPath, err)
		}
		defer f.Close()

		if id != "" {
			_, err = srv.Files.Update(id, &drive.File{}).Media(f).Context(ctx).Do()
		} else {
			file := &drive.File{Name: path.Base(remotePath)}
			if c.folderID != "" {
				file.Parents = []string{c.folderID}
			}
			_, err = srv.Files.Create(file).Media(f).Context(ctx).Do()
		}
		return classifyDriveError(err)
	})
}

// Download fetches the file named after remotePath into localPath.
func (c *DriveClient) Download(ctx context.Context, remotePath, localPath string) error {
	return c.auth.Do(ctx, "drive download", func(ctx context.Context, token string) error {
		srv, err := c.service(ctx, token)
		if err != nil {
			return err
		}

		id, err := c.findFile(ctx, srv, remotePath)
		if err != nil {
			return err
		}

		resp, err := srv.Files.Get(id).Context(ctx).Download()
		if err != nil {
			return classifyDriveError(err)
		}
		defer resp.Body.Close()
		return writeFileAtomic(localPath, resp.Body)
	})
}

func (c *DriveClient) findFile(ctx context.Context, srv *drive.Service, remotePath string) (string, error) {
	list, err := srv.Files.List().
		Q(driveQuery(path.Base(remotePath), c.folderID)).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", classifyDriveError(err)
	}
	if len(list.Files) == 0 {
		return "", fmt.Errorf("%s: %w", remotePath, ErrNotFound)
	}
	return list.Files[0].Id, nil
}

// queryEscaper escapes values placed inside Drive query string literals.
var queryEscaper = strings.NewReplacer(`\`, `\\`, "'", `\'`)

func driveQuery(name, folderID string) string {
	q := fmt.Sprintf("name = '%s' and trashed = false", queryEscaper.Replace(name))
	if folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", queryEscaper.Replace(folderID))
	}
	return q
}

func classifyDriveError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized:
			return &APIError{StatusCode: gerr.Code, Message: gerr.Message}
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, gerr.Message)
		}
	}
	return err
}
