package extract

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"golang.org/x/net/html"
)

// Publisher landing pages whose snapshots embed paywall chrome instead of
// figures. Their images are never worth keeping.
var skipTitleContains = []string{
	"Wiley Online Library",
	"IEEE Xplore",
}

// WebpageDecoder extracts base64 data-URI images embedded in a saved web
// page snapshot (Zotero's text/html attachments inline every image).
type WebpageDecoder struct {
	log logger.Logger
}

func NewWebpageDecoder() *WebpageDecoder {
	return &WebpageDecoder{log: logger.New()}
}

func (*WebpageDecoder) ContentType() string {
	return "text/html"
}

func (d *WebpageDecoder) Decode(targetDir, sourcePath string) error {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return errors.WithStack(err)
	}

	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return errors.Wrapf(err, "failed to parse %s", sourcePath)
	}

	title := pageTitle(doc)
	for _, fragment := range skipTitleContains {
		if strings.Contains(title, fragment) {
			d.log.Warn("skipping publisher landing page snapshot", logger.Data{"title": title, "path": sourcePath})
			return nil
		}
	}

	for i, img := range imageNodes(doc) {
		src := attr(img, "src")
		payload, ok := dataURIPayload(src)
		if !ok {
			// External reference, nothing embedded to extract.
			continue
		}

		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			d.log.Warn("undecodable embedded image", logger.Data{"path": sourcePath, "index": i, "error": err.Error()})
			continue
		}

		ext := mimetype.Detect(raw).Extension()
		if ext == "" {
			d.log.Warn("unrecognized embedded image type", logger.Data{"path": sourcePath, "index": i})
			continue
		}

		name := attr(img, "alt")
		if name == "" {
			name = fmt.Sprintf("image_%d", i)
		}

		outPath := filepath.Join(targetDir, sanitizeFilename(name)+ext)
		if err := os.WriteFile(outPath, raw, 0644); err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}

// dataURIPayload returns the base64 payload of a "data:<type>;base64,<...>"
// URI.
func dataURIPayload(src string) (string, bool) {
	if !strings.HasPrefix(src, "data:") {
		return "", false
	}
	idx := strings.Index(src, ",")
	if idx < 0 {
		return "", false
	}
	return src[idx+1:], true
}

// sanitizeFilename keeps alt-text-derived names from escaping the image
// directory or clashing with path separators.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		name = "image"
	}
	return name
}

func pageTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = n.FirstChild.Data
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

func imageNodes(doc *html.Node) []*html.Node {
	var imgs []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			imgs = append(imgs, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return imgs
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
