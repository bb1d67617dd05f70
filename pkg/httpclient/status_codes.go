package httpclient

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// span is an inclusive run of status codes.
type span struct{ lo, hi int }

// StatusCodeSet is an immutable set of HTTP status codes, parsed from a list
// such as "429,500,502-504". Overlapping and adjacent entries are merged so
// the set has one canonical form.
type StatusCodeSet struct {
	spans []span
}

// ParseStatusCodes parses a comma separated list of codes and inclusive
// ranges. An empty list yields a nil set, which contains nothing.
func ParseStatusCodes(s string) (*StatusCodeSet, error) {
	var spans []span
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		sp, err := parseSpan(field)
		if err != nil {
			return nil, err
		}
		spans = append(spans, sp)
	}
	if len(spans) == 0 {
		return nil, nil
	}
	return &StatusCodeSet{spans: merge(spans)}, nil
}

// MustParseStatusCodes is ParseStatusCodes for package-level constants.
func MustParseStatusCodes(s string) *StatusCodeSet {
	set, err := ParseStatusCodes(s)
	if err != nil {
		panic(err)
	}
	return set
}

func parseSpan(field string) (span, error) {
	loStr, hiStr, isRange := strings.Cut(field, "-")
	lo, err := strconv.Atoi(strings.TrimSpace(loStr))
	if err != nil {
		return span{}, fmt.Errorf("invalid status code %q", field)
	}
	hi := lo
	if isRange {
		if hi, err = strconv.Atoi(strings.TrimSpace(hiStr)); err != nil {
			return span{}, fmt.Errorf("invalid status code %q", field)
		}
	}
	if lo > hi {
		return span{}, fmt.Errorf("invalid range %q: min > max", field)
	}
	if lo < 100 || hi > 599 {
		return span{}, fmt.Errorf("invalid status code %q: must be 100-599", field)
	}
	return span{lo: lo, hi: hi}, nil
}

func merge(spans []span) []span {
	slices.SortFunc(spans, func(a, b span) int { return a.lo - b.lo })
	out := spans[:1]
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp.lo <= last.hi+1 {
			last.hi = max(last.hi, sp.hi)
			continue
		}
		out = append(out, sp)
	}
	return out
}

// Contains reports whether code is in the set. A nil set contains nothing.
func (s *StatusCodeSet) Contains(code int) bool {
	if s == nil {
		return false
	}
	_, found := slices.BinarySearchFunc(s.spans, code, func(sp span, c int) int {
		switch {
		case sp.hi < c:
			return -1
		case sp.lo > c:
			return 1
		}
		return 0
	})
	return found
}

// IsEmpty reports whether the set contains no codes.
func (s *StatusCodeSet) IsEmpty() bool {
	return s == nil || len(s.spans) == 0
}

// String renders the canonical form, e.g. "500,502-504".
func (s *StatusCodeSet) String() string {
	if s.IsEmpty() {
		return ""
	}
	parts := make([]string, len(s.spans))
	for i, sp := range s.spans {
		if sp.lo == sp.hi {
			parts[i] = strconv.Itoa(sp.lo)
		} else {
			parts[i] = fmt.Sprintf("%d-%d", sp.lo, sp.hi)
		}
	}
	return strings.Join(parts, ",")
}
