package connector

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// downloadAttachment fetches a platform-hosted file into a local temp
// path so it can later be staged into a workspace's.media/ directory,
// rule 5.
func downloadAttachment(url, filename string) (string, error) {
	resp, err:= http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %s", url, resp.Status)
	}

	if filename == "" {
		filename = uuid.NewString()
	}
	dir, err:= os.MkdirTemp("", "agentforge-attachment-*")
	if err != nil {
		return "", err
	}
	path:= filepath.Join(dir, filename)
	f, err:= os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err:= io.Copy(f, resp.Body); err != nil {
		return "", err
	}
	return path, nil
}
