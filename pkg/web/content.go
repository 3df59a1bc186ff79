/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: content.go
Description: Content helpers shared by observers: resource kind mapping, textual body
detection and host extraction.
*/

package web

import (
	"net"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
)

// textualTypes are media type fragments whose bodies are scanned for domains and variables
var textualTypes = []string{"text/", "javascript", "ecmascript", "json", "xml"}

// IsTextual reports whether a body should be sampled. The declared content type wins;
// without one the body is sniffed.
func IsTextual(contentType string, body []byte) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" && len(body) > 0 {
		for m := mimetype.Detect(body); m != nil; m = m.Parent() {
			if m.Is("text/plain") {
				return true
			}
		}
		return false
	}
	for _, t := range textualTypes {
		if strings.Contains(ct, t) {
			return true
		}
	}
	return false
}

// KindFromResourceType maps a DevTools resource type name onto a ResourceKind
func KindFromResourceType(resourceType string, mainFrame bool) interfaces.ResourceKind {
	switch strings.ToLower(resourceType) {
	case "document":
		if mainFrame {
			return interfaces.KindDocument
		}
		return interfaces.KindSubDocument
	case "script":
		return interfaces.KindScript
	case "xhr":
		return interfaces.KindXHR
	case "fetch", "eventsource":
		return interfaces.KindFetch
	case "websocket":
		return interfaces.KindWebSocket
	case "stylesheet":
		return interfaces.KindStylesheet
	case "image":
		return interfaces.KindImage
	case "font":
		return interfaces.KindFont
	case "media":
		return interfaces.KindMedia
	default:
		return interfaces.KindOther
	}
}

// sampled reports whether bodies of kind are kept for analysis
func sampled(kind interfaces.ResourceKind) bool {
	switch kind {
	case interfaces.KindScript, interfaces.KindXHR, interfaces.KindFetch,
		interfaces.KindDocument, interfaces.KindSubDocument, interfaces.KindOther:
		return true
	}
	return false
}

// hostHeader returns the explicit Host header, without port, when present
func hostHeader(headers map[string]interface{}) string {
	for _, key := range []string{"Host", "host", ":authority"} {
		if v, ok := headers[key].(string); ok && v != "" {
			if h, _, err := net.SplitHostPort(v); err == nil {
				return strings.ToLower(h)
			}
			return strings.ToLower(v)
		}
	}
	return ""
}

func urlHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func truncate(body []byte, limit int) []byte {
	if limit > 0 && len(body) > limit {
		return body[:limit]
	}
	return body
}
