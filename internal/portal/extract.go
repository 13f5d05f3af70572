package portal

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/ayzhao/gradesync/internal/model"
)

// Selectors for the report page. The markup is not a stable contract, so
// every row is parsed defensively and a malformed row is skipped without
// aborting the rest.
const (
	courseRowSelector     = ".green_border_message div table tr"
	schoolHeadingSelector = ".red_border_message h2"
	blockPrefix           = "Block: "
	roomPrefix            = "rm. "
	droppedMarker         = "Dropped on"
	headerSegment         = "Course Name"
	minSegmentsPerRow     = 4
)

// dateLayouts the portal has been seen emitting.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ExtractCourses parses report markup into course records. Rows that cannot
// be parsed into a complete record are dropped; extraction never fails as a
// whole.
func ExtractCourses(html string) []model.Course {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	// Some report layouts carry the school only as a page heading rather
	// than per row.
	fallbackSchool := strings.TrimSpace(doc.Find(schoolHeadingSelector).First().Text())

	var courses []model.Course
	doc.Find(courseRowSelector).Each(func(_ int, row *goquery.Selection) {
		if c, ok := extractRow(row, fallbackSchool); ok {
			courses = append(courses, c)
		}
	})
	return courses
}

// extractRow turns one table row into a course. It is a pipeline of total
// parse steps; the first missing required field discards the row.
func extractRow(row *goquery.Selection, fallbackSchool string) (model.Course, bool) {
	segments := splitSegments(row.Text())
	if len(segments) < minSegmentsPerRow || strings.Contains(segments[1], headerSegment) {
		return model.Course{}, false
	}

	code, school, name := parseCourseInfo(segments[0])
	if school == "" {
		school = fallbackSchool
	}

	block, ok := parseBlock(segments[1])
	if !ok {
		return model.Course{}, false
	}
	room, ok := parseRoom(segments[1])
	if !ok {
		return model.Course{}, false
	}

	start, ok := parseDate(strings.TrimSpace(strings.SplitN(segments[2], "~", 2)[0]))
	if !ok {
		return model.Course{}, false
	}
	end, dropped, ok := parseEndTime(segments[3])
	if !ok {
		return model.Course{}, false
	}

	var mark model.Mark
	if len(segments) > 4 {
		mark = ParseMark(segments[4])
	}

	if code == "" || school == "" {
		return model.Course{}, false
	}

	c := model.Course{
		Code:  code,
		Name:  name,
		Block: block,
		Room:  room,
		Times: model.TimeWindow{
			StartTime:   start,
			EndTime:     end,
			DroppedTime: dropped,
		},
		Mark:             mark,
		SchoolIdentifier: school,
	}
	if href, exists := row.Find("a").First().Attr("href"); exists && href != "" {
		c.Link = &href
	}
	return c, true
}

// splitSegments flattens row text into non-empty trimmed lines.
func splitSegments(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseCourseInfo splits "<school info> - <code> : <name>" (both school and
// name optional). The code is the right-anchored " - " token; anything left
// of it, rejoined, is the school identifier.
func parseCourseInfo(segment string) (code, school string, name *string) {
	head, rawName, hasName := strings.Cut(segment, " : ")
	if hasName {
		if n := strings.TrimSpace(rawName); n != "" {
			name = &n
		}
	}

	head = strings.TrimSpace(strings.Replace(head, ":", "", 1))
	parts := strings.Split(head, " - ")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) > 1 {
		return parts[len(parts)-1], strings.Join(parts[:len(parts)-1], " - "), name
	}
	return head, "", name
}

// parseBlock extracts the numeric block from "Block: <x> - rm. <y>".
// Non-numeric blocks (e.g. "LUNCH") and block 0 are treated as missing.
func parseBlock(segment string) (int, bool) {
	raw := strings.TrimSpace(strings.TrimPrefix(segment, blockPrefix))
	raw = strings.TrimSpace(strings.SplitN(raw, " - ", 2)[0])

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// parseRoom extracts the room label following "rm. ".
func parseRoom(segment string) (string, bool) {
	_, room, found := strings.Cut(segment, roomPrefix)
	if !found || strings.TrimSpace(room) == "" {
		return "", false
	}
	return strings.TrimSpace(room), true
}

// parseEndTime parses "<end>" or "<end> Dropped on <when>". A bad drop
// timestamp leaves DroppedTime unset without invalidating the row; a bad end
// time invalidates it.
func parseEndTime(segment string) (end time.Time, dropped *time.Time, ok bool) {
	rawEnd, rawDropped, _ := strings.Cut(segment, droppedMarker)
	rawDropped = strings.TrimSpace(rawDropped)

	end, ok = parseDate(strings.TrimSpace(rawEnd))
	if !ok {
		return time.Time{}, nil, false
	}
	if rawDropped != "" {
		if d, dok := parseDate(rawDropped); dok {
			dropped = &d
		}
	}
	return end, dropped, true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// markPatterns in scan order; only the first match per row is honored.
var markPatterns = []struct {
	key       string
	isFinal   bool
	isMidterm bool
}{
	{key: "FINALMARK:", isFinal: true},
	{key: "MIDTERMMARK:", isMidterm: true},
	{key: "currentmark="},
}

// ParseMark parses a mark segment such as "FINAL MARK: 88.5 %" after
// whitespace removal. An unrecognized segment yields a nil mark with both
// flags false.
func ParseMark(raw string) model.Mark {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	for _, p := range markPatterns {
		_, rest, found := strings.Cut(clean, p.key)
		if !found {
			continue
		}
		numPart := strings.SplitN(rest, "%", 2)[0]
		v, err := strconv.ParseFloat(numPart, 64)
		if err != nil {
			continue
		}
		return model.Mark{OverallMark: &v, IsFinal: p.isFinal, IsMidterm: p.isMidterm}
	}
	return model.Mark{}
}
