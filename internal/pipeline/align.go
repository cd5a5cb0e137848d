package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Labels assigned by alignment when no single diarized speaker fits.
const (
	SpeakerMultiple = "Multiple speakers"
	SpeakerUnknown  = "UNKNOWN"
)

// overlapThreshold is how long (seconds) two speakers must talk at once inside
// a segment before it is labeled SpeakerMultiple.
const overlapThreshold = 0.5

type speakerSpan struct {
	speaker    string
	start, end float64
}

func intersection(aStart, aEnd, bStart, bEnd float64) float64 {
	start := max(aStart, bStart)
	end := min(aEnd, bEnd)
	if start < end {
		return end - start
	}
	return 0
}

func speakersInRange(start, end float64, turns []SpeakerTurn) []speakerSpan {
	var out []speakerSpan
	for _, t := range turns {
		if intersection(start, end, t.Start, t.End) > 0 {
			out = append(out, speakerSpan{
				speaker: t.Speaker,
				start:   max(start, t.Start),
				end:     min(end, t.End),
			})
		}
	}
	return out
}

func overlapping(spans []speakerSpan) bool {
	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			if intersection(spans[i].start, spans[i].end, spans[j].start, spans[j].end) > overlapThreshold {
				return true
			}
		}
	}
	return false
}

// DistinctSpeakers returns the speaker labels present in turns, in order of
// first appearance. Empty labels and the alignment placeholders are ignored.
func DistinctSpeakers(turns []SpeakerTurn) []string {
	seen := make(map[string]bool, len(turns))
	var out []string
	for _, t := range turns {
		sp := strings.TrimSpace(t.Speaker)
		if sp == "" || sp == SpeakerUnknown || sp == SpeakerMultiple || seen[sp] {
			continue
		}
		seen[sp] = true
		out = append(out, sp)
	}
	return out
}

// Align assigns speakers to transcript segments by time intersection.
// A segment spanning several sequential speakers is split, with its words
// distributed in proportion to each speaker's share of the segment. When
// only one speaker label is observed, every segment gets that label.
func Align(segments []Segment, d Diarization) []Segment {
	out := make([]Segment, 0, len(segments))

	if labels := DistinctSpeakers(d.Turns); len(labels) == 1 {
		for _, seg := range segments {
			seg.Speaker = labels[0]
			out = append(out, seg)
		}
		return out
	}

	for _, seg := range segments {
		spans := speakersInRange(seg.Start, seg.End, d.Turns)
		switch {
		case len(spans) == 0:
			seg.Speaker = SpeakerUnknown
			out = append(out, seg)
		case len(spans) == 1:
			seg.Speaker = spans[0].speaker
			out = append(out, seg)
		case overlapping(spans):
			seg.Speaker = SpeakerMultiple
			out = append(out, seg)
		default:
			out = append(out, splitSegment(seg, spans)...)
		}
	}
	return out
}

func splitSegment(seg Segment, spans []speakerSpan) []Segment {
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	words := strings.Fields(seg.Text)
	total := seg.Duration()
	idx := 0

	var out []Segment
	for i, sp := range spans {
		var part []string
		if i == len(spans)-1 {
			part = words[idx:]
		} else {
			share := 0.0
			if total > 0 {
				share = (sp.end - sp.start) / total
			}
			n := max(1, int(float64(len(words))*share))
			end := min(idx+n, len(words))
			part = words[idx:end]
			idx = end
		}
		if len(part) == 0 {
			continue
		}
		out = append(out, Segment{
			Start:   sp.start,
			End:     sp.end,
			Speaker: sp.speaker,
			Text:    strings.Join(part, " "),
		})
	}
	return out
}

// FormatTimestamp renders seconds as MM:SS.d, e.g. 83.4 -> "01:23.4".
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	minutes := int(seconds / 60)
	secs := seconds - float64(minutes*60)
	return fmt.Sprintf("%02d:%04.1f", minutes, secs)
}
