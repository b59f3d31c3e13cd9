package sources

import (
	"strings"

	"github.com/mudler/xlog"
)

// Config carries credentials used when fetching sources.
type Config struct {
	// GitPrivateKey is a base64-encoded SSH key for private repositories.
	GitPrivateKey string
}

// SourceRouter fetches the content behind a URL, dispatching on what the
// URL points at: a git repository, a sitemap, or a plain web page.
func SourceRouter(url string, config *Config) (string, error) {
	xlog.Info("Downloading content from", "url", url)

	switch {
	case strings.HasSuffix(url, ".git"):
		return GetGitRepositoryContent(url, config.GitPrivateKey)
	case strings.HasSuffix(url, "sitemap.xml"):
		content, err := GetWebSitemapContent(url)
		if err != nil {
			return "", err
		}
		xlog.Info("Downloaded all content from sitemap", "url", url, "pages", len(content))
		return strings.Join(content, "\n"), nil
	}

	return GetWebPage(url)
}
