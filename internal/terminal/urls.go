package terminal

import "regexp"

// localURL matches http(s) URLs on the loopback or wildcard address.
// Script text is scanned with it to guess which local servers a shell
// script will start; it is a heuristic and may miss URLs built at run time.
var localURL = regexp.MustCompile(`https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0)(?::\d+)?(?:/[^\s'"<>)]*)?`)

// LocalURLs returns the distinct local URLs in source, in order of first
// appearance.
func LocalURLs(source string) []string {
	matches := localURL.FindAllString(source, -1)
	seen := make(map[string]bool, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		urls = append(urls, m)
	}
	return urls
}
