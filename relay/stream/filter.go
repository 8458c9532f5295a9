package stream

import (
	"regexp"
	"strings"
	"sync"
)

// TagFilter elides configured upstream markup blocks, such as
// <grok:render …>…</grok:render>, from relayed chat text. Tag markup may be
// split across an arbitrary number of token deltas, so one filter instance
// carries its match state for the whole life of a stream.
//
// Text that merely looks like the start of a filtered tag is withheld until
// enough bytes arrive to decide; if it turns out not to be one of the
// configured tags it is released verbatim on a later Feed or on Flush.
type TagFilter struct {
	tags []string

	pending strings.Builder // candidate "<tag" prefix not yet resolved
	tagBuf  strings.Builder // markup accumulated while inside a filtered tag
	inTag   bool
}

// NewTagFilter builds a filter over the given tag names. With no tags the
// filter passes everything through untouched.
func NewTagFilter(tags []string) *TagFilter {
	return &TagFilter{tags: tags}
}

// Feed filters one content delta and returns the bytes safe to emit now.
// Bytes belonging to an unresolved tag prefix are retained for later calls.
func (f *TagFilter) Feed(chunk string) string {
	if len(f.tags) == 0 {
		return chunk
	}

	var out strings.Builder
	out.Grow(len(chunk))
	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		if f.inTag {
			f.tagBuf.WriteByte(c)
			if c == '>' && f.tagClosed() {
				f.inTag = false
				f.tagBuf.Reset()
			}
			continue
		}

		if f.pending.Len() == 0 {
			if c != '<' {
				out.WriteByte(c)
				continue
			}
			f.pending.WriteByte(c)
			continue
		}

		f.pending.WriteByte(c)
		held := f.pending.String()
		if f.openMatch(held) {
			f.pending.Reset()
			f.inTag = true
			f.tagBuf.Reset()
			f.tagBuf.WriteString(held)
			continue
		}
		if f.openPossible(held) {
			continue
		}
		// The held text diverged from every configured tag at its last
		// byte. Everything before that byte is literal content, and the
		// byte itself may start a fresh candidate.
		f.pending.Reset()
		out.WriteString(held[:len(held)-1])
		if c == '<' {
			f.pending.WriteByte(c)
		} else {
			out.WriteByte(c)
		}
	}
	return out.String()
}

// Flush releases any withheld prefix once the stream has ended. Markup from
// a filtered tag that never closed stays dropped.
func (f *TagFilter) Flush() string {
	if f.inTag {
		f.tagBuf.Reset()
		return ""
	}
	rest := f.pending.String()
	f.pending.Reset()
	return rest
}

// openMatch reports whether held spells out "<tag" for one of the
// configured tags.
func (f *TagFilter) openMatch(held string) bool {
	for _, tag := range f.tags {
		if strings.HasPrefix(held, "<"+tag) {
			return true
		}
	}
	return false
}

// openPossible reports whether held is still a strict prefix of some "<tag".
func (f *TagFilter) openPossible(held string) bool {
	for _, tag := range f.tags {
		if strings.HasPrefix("<"+tag, held) {
			return true
		}
	}
	return false
}

// tagClosed reports whether the accumulated markup ends the tag, either as
// self-closing or via the corresponding close tag.
func (f *TagFilter) tagClosed() bool {
	buf := f.tagBuf.String()
	if strings.Contains(buf, "/>") {
		return true
	}
	for _, tag := range f.tags {
		if strings.Contains(buf, "</"+tag+">") {
			return true
		}
	}
	return false
}

var (
	sweepMu       sync.Mutex
	sweepPatterns = map[string]*regexp.Regexp{}
)

func sweepPattern(tag string) *regexp.Regexp {
	sweepMu.Lock()
	defer sweepMu.Unlock()
	if re, ok := sweepPatterns[tag]; ok {
		return re
	}
	quoted := regexp.QuoteMeta(tag)
	re := regexp.MustCompile(`(?s)<` + quoted + `[^>]*>.*?</` + quoted + `>|<` + quoted + `[^>]*/>`)
	sweepPatterns[tag] = re
	return re
}

// StripTags removes whole filtered-tag blocks from collected content. It is
// the non-streaming counterpart of TagFilter and is idempotent.
func StripTags(content string, tags []string) string {
	if content == "" || len(tags) == 0 {
		return content
	}
	for _, tag := range tags {
		content = sweepPattern(tag).ReplaceAllString(content, "")
	}
	return content
}
