/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: domains.go
Description: Domain discovery in response bodies. Pulls hostnames out of absolute
http(s)/ws(s) URLs, including the slash-escaped form found in JSON payloads.
*/

package inference

import (
	"regexp"
	"strings"
)

var absoluteURLPattern = regexp.MustCompile(
	`(?i)\b(?:https?|wss?):(?:\\?/){2}([a-z0-9](?:[a-z0-9-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]*[a-z0-9])?)+)`)

// ExtractDomains returns the distinct hostnames referenced in text, first-seen order
func ExtractDomains(text string) []string {
	var domains []string
	seen := make(map[string]struct{})
	for _, m := range absoluteURLPattern.FindAllStringSubmatch(text, -1) {
		host := strings.ToLower(m[1])
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		domains = append(domains, host)
	}
	return domains
}
