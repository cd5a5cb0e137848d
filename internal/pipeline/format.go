package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// minLabeledSegment drops sub-half-second fragments from labeled output.
const minLabeledSegment = 0.5

const speakerUnavailableNote = "(Speaker detection unavailable)"

// SpeakerLabel turns a raw diarization id into a display label:
// SPEAKER_00 -> "Speaker 1", UNKNOWN -> "Unknown speaker".
func SpeakerLabel(speaker string) string {
	switch {
	case speaker == SpeakerMultiple:
		return SpeakerMultiple
	case speaker == SpeakerUnknown || speaker == "":
		return "Unknown speaker"
	case strings.HasPrefix(speaker, "SPEAKER_"):
		n, err := strconv.Atoi(strings.TrimPrefix(speaker, "SPEAKER_"))
		if err != nil {
			return speaker
		}
		return fmt.Sprintf("Speaker %d", n+1)
	default:
		return speaker
	}
}

// FormatLabeled renders aligned segments as Markdown grouped under speaker
// headings.
func FormatLabeled(segments []Segment, speakerCount int, duration float64, created time.Time) string {
	var b strings.Builder
	total := int(duration)
	b.WriteString("# Transcript\n\n")
	fmt.Fprintf(&b, "**Speakers:** %d detected\n", speakerCount)
	fmt.Fprintf(&b, "**Duration:** %d:%02d\n", total/60, total%60)
	fmt.Fprintf(&b, "**Created:** %s\n", created.Format("2006-01-02"))
	b.WriteString("\n---\n\n")

	current := ""
	for _, seg := range segments {
		if seg.Duration() < minLabeledSegment {
			continue
		}
		label := SpeakerLabel(seg.Speaker)
		if label != current {
			if current != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "### %s\n", label)
			current = label
		}
		fmt.Fprintf(&b, "[%s - %s]\n", FormatTimestamp(seg.Start), FormatTimestamp(seg.End))
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatPlain renders segments as timestamped lines without speakers. When
// speakerUnavailable is set the output says that labels are missing.
func FormatPlain(segments []Segment, speakerUnavailable bool) string {
	var b strings.Builder
	b.WriteString("# Transcript\n\n")
	if speakerUnavailable {
		b.WriteString(speakerUnavailableNote)
		b.WriteString("\n\n")
	}
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s - %s] %s\n", FormatTimestamp(seg.Start), FormatTimestamp(seg.End), text)
	}
	return b.String()
}
