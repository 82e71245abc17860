package predicate

import "strings"

// segmentKind distinguishes the three pattern segment kinds spec §4.1
// defines: literal, named capture (:name), and greedy suffix (:*name).
type segmentKind int

const (
	segLiteral segmentKind = iota
	segNamed
	segGreedy
)

type patternSegment struct {
	kind    segmentKind
	literal string // for segLiteral, already lower-cased
	name    string // for segNamed/segGreedy
}

// compiledPattern is a parsed URL route pattern (spec §4.1, §6.2):
// "/literal/:name/literal/:*rest".
type compiledPattern struct {
	segments []patternSegment
}

func compilePattern(pattern string) compiledPattern {
	trimmed := strings.Trim(pattern, "/")
	var raw []string
	if trimmed != "" {
		raw = strings.Split(trimmed, "/")
	}
	segs := make([]patternSegment, 0, len(raw))
	for _, part := range raw {
		switch {
		case strings.HasPrefix(part, ":*"):
			segs = append(segs, patternSegment{kind: segGreedy, name: part[2:]})
		case strings.HasPrefix(part, ":"):
			segs = append(segs, patternSegment{kind: segNamed, name: part[1:]})
		default:
			segs = append(segs, patternSegment{kind: segLiteral, literal: strings.ToLower(part)})
		}
	}
	return compiledPattern{segments: segs}
}

// match attempts to match url against the compiled pattern. On success it
// returns the named/greedy captures and true. Matching is case-insensitive
// for literal segments (spec §4.1).
func (p compiledPattern) match(url string) (map[string]string, bool) {
	trimmed := strings.Trim(url, "/")
	var urlSegs []string
	if trimmed != "" {
		urlSegs = strings.Split(trimmed, "/")
	}

	captures := make(map[string]string)
	ui := 0
	for si, seg := range p.segments {
		switch seg.kind {
		case segGreedy:
			// Greedy must be the last pattern segment; it consumes every
			// remaining URL segment, joined back with "/".
			if si != len(p.segments)-1 {
				return nil, false
			}
			captures[seg.name] = strings.Join(urlSegs[ui:], "/")
			return captures, true
		default:
			if ui >= len(urlSegs) {
				return nil, false
			}
			if seg.kind == segLiteral {
				if strings.ToLower(urlSegs[ui]) != seg.literal {
					return nil, false
				}
			} else {
				captures[seg.name] = urlSegs[ui]
			}
			ui++
		}
	}

	// No trailing greedy segment: the URL must be fully consumed.
	if ui != len(urlSegs) {
		return nil, false
	}
	return captures, true
}
