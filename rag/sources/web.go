package sources

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mudler/xlog"
	sitemap "github.com/oxffaa/gopher-parse-sitemap"
	"jaytaylor.com/html2text"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// GetWebPage downloads a page and converts it to plain text.
func GetWebPage(url string) (string, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return html2text.FromString(string(body), html2text.Options{PrettyTables: true})
}

// GetWebSitemapContent walks a sitemap and returns the text of every
// page it lists. Pages that fail to download are skipped, not fatal.
func GetWebSitemapContent(url string) ([]string, error) {
	var pages []string
	err := sitemap.ParseFromSite(url, func(e sitemap.Entry) error {
		location := e.GetLocation()
		content, err := GetWebPage(location)
		if err != nil {
			xlog.Warn("Skipping sitemap page", "url", location, "error", err)
			return nil
		}
		pages = append(pages, content)
		return nil
	})
	return pages, err
}
