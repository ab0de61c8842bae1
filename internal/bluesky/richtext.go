package bluesky

import (
	"context"
	"regexp"
	"strings"
)

var (
	linkPattern    = regexp.MustCompile(`https?://[^\s<>"]+`)
	tagPattern     = regexp.MustCompile(`(?:^|\s)(#[\p{L}\p{N}_]+)`)
	mentionPattern = regexp.MustCompile(`(?:^|\s|\()(@[a-zA-Z0-9][a-zA-Z0-9.-]*\.[a-zA-Z]{2,})`)
)

// facet annotates a byte range of post text with a link, tag or mention.
type facet struct {
	Index    byteSlice      `json:"index"`
	Features []facetFeature `json:"features"`
}

type byteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type facetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
	Tag  string `json:"tag,omitempty"`
	DID  string `json:"did,omitempty"`
}

// detectFacets finds links, hashtags and mentions in text. Mentions whose
// handle does not resolve are left as plain text.
func detectFacets(ctx context.Context, text string, resolve func(context.Context, string) (string, error)) []facet {
	var facets []facet

	for _, m := range linkPattern.FindAllStringIndex(text, -1) {
		uri := strings.TrimRight(text[m[0]:m[1]], ".,;:!?)")
		facets = append(facets, facet{
			Index:    byteSlice{ByteStart: m[0], ByteEnd: m[0] + len(uri)},
			Features: []facetFeature{{Type: "app.bsky.richtext.facet#link", URI: uri}},
		})
	}

	for _, m := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		facets = append(facets, facet{
			Index:    byteSlice{ByteStart: start, ByteEnd: end},
			Features: []facetFeature{{Type: "app.bsky.richtext.facet#tag", Tag: text[start+1 : end]}},
		})
	}

	if resolve != nil {
		for _, m := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2], m[3]
			did, err := resolve(ctx, text[start+1:end])
			if err != nil {
				continue
			}
			facets = append(facets, facet{
				Index:    byteSlice{ByteStart: start, ByteEnd: end},
				Features: []facetFeature{{Type: "app.bsky.richtext.facet#mention", DID: did}},
			})
		}
	}

	return facets
}
