/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: extract.go
Description: HTML resource extraction for the direct-HTTP observer. Finds external and
inline scripts, frames and preloaded resources in a landing document.
*/

package web

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
)

// Resource is one reference found in a document
type Resource struct {
	URL    string
	Kind   interfaces.ResourceKind
	Inline string // script text for inline scripts; URL is then the document URL
}

// ExtractResources lists the resources referenced by an HTML document in document order.
// Relative references are resolved against base; non-http(s) references are dropped.
func ExtractResources(html string, base *url.URL) ([]Resource, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	var out []Resource
	seen := make(map[string]struct{})
	add := func(ref string, kind interfaces.ResourceKind) {
		abs, ok := resolve(base, ref)
		if !ok {
			return
		}
		key := string(kind) + " " + abs
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, Resource{URL: abs, Kind: kind})
	}

	doc.Find("script, iframe, frame, link").Each(func(_ int, sel *goquery.Selection) {
		switch goquery.NodeName(sel) {
		case "script":
			if src, ok := sel.Attr("src"); ok {
				add(src, interfaces.KindScript)
				return
			}
			if text := strings.TrimSpace(sel.Text()); text != "" {
				out = append(out, Resource{URL: base.String(), Kind: interfaces.KindScript, Inline: text})
			}
		case "iframe", "frame":
			if src, ok := sel.Attr("src"); ok {
				add(src, interfaces.KindSubDocument)
			}
		case "link":
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			rel := strings.ToLower(sel.AttrOr("rel", ""))
			as := strings.ToLower(sel.AttrOr("as", ""))
			switch {
			case strings.Contains(rel, "modulepreload"):
				add(href, interfaces.KindScript)
			case strings.Contains(rel, "preload") && as == "script":
				add(href, interfaces.KindScript)
			case strings.Contains(rel, "preload") && as == "fetch":
				add(href, interfaces.KindFetch)
			}
		}
	})
	return out, nil
}

func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
