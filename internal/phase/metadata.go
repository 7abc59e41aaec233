package phase

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/stylescan/stylescan/internal/browser"
	"github.com/stylescan/stylescan/internal/model"
)

// MetadataExecutor collects per-page document metadata: title, description,
// Open Graph tags, canonical URL, and language.
type MetadataExecutor struct{}

// NewMetadataExecutor creates the metadata-phase executor.
func NewMetadataExecutor() *MetadataExecutor { return &MetadataExecutor{} }

// Execute navigates to the page and parses its head metadata.
func (e *MetadataExecutor) Execute(ctx context.Context, task model.Task, page browser.Page) (*model.TaskResult, error) {
	if err := page.Navigate(ctx, task.URL); err != nil {
		return nil, eris.Wrapf(err, "metadata: navigate %s", task.URL)
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "metadata: read document %s", task.URL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrapf(err, "metadata: parse document %s", task.URL)
	}

	md := parseMetadata(doc, task.URL)
	return &model.TaskResult{TaskID: task.ID, URL: task.URL, Data: md}, nil
}

// parseMetadata reads head-level metadata from a parsed document.
func parseMetadata(doc *goquery.Document, pageURL string) model.PageMetadata {
	md := model.PageMetadata{
		URL:   pageURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		content := strings.TrimSpace(sel.AttrOr("content", ""))
		if content == "" {
			return
		}
		switch strings.ToLower(sel.AttrOr("name", "")) {
		case "description":
			if md.Description == "" {
				md.Description = content
			}
		}
		switch strings.ToLower(sel.AttrOr("property", "")) {
		case "og:title":
			md.OGTitle = content
		case "og:type":
			md.OGType = content
		case "og:image":
			md.OGImage = content
		case "og:description":
			if md.Description == "" {
				md.Description = content
			}
		}
	})

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		md.Canonical = strings.TrimSpace(href)
	}
	if lang, ok := doc.Find("html").First().Attr("lang"); ok {
		md.Lang = strings.TrimSpace(lang)
	}
	return md
}
