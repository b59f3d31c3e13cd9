package sources

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

var textFileExtensions = map[string]bool{
	".txt": true, ".md": true, ".rst": true, ".adoc": true,
	".go": true, ".py": true, ".js": true, ".ts": true, ".rb": true,
	".java": true, ".c": true, ".cpp": true, ".h": true, ".rs": true,
	".sh": true, ".sql": true, ".proto": true,
	".html": true, ".css": true, ".xml": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true,
	".conf": true, ".csv": true, ".tsv": true,
}

// GetGitRepositoryContent shallow-clones a repository and returns the
// concatenated content of its text files, each preceded by a file
// header so chunks stay attributable.
func GetGitRepositoryContent(url string, privateKey string) (string, error) {
	dir, err := os.MkdirTemp("", "git-source-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	options := &git.CloneOptions{
		URL:           url,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.HEAD,
	}
	if privateKey != "" {
		auth, err := sshAuth(privateKey)
		if err != nil {
			return "", err
		}
		options.Auth = auth
	}

	if _, err := git.PlainClone(dir, false, options); err != nil {
		return "", fmt.Errorf("cloning %s: %w", url, err)
	}

	var content strings.Builder
	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !textFileExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		relPath, _ := filepath.Rel(dir, path)
		fmt.Fprintf(&content, "\n--- File: %s ---\n", relPath)
		content.Write(data)
		content.WriteString("\n")
		return nil
	})
	if err != nil {
		return "", err
	}

	return content.String(), nil
}

// sshAuth builds SSH credentials from a base64-encoded private key. The
// encoding lets the key travel through env vars and config files intact.
func sshAuth(privateKey string) (*ssh.PublicKeys, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	return ssh.NewPublicKeys("git", keyBytes, "")
}
