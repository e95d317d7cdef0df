package stages

import (
	"fmt"
	"strings"
	"time"

	"github.com/clearpath-media/cp-whisperx/internal/collab"
)

// srtTimestamp renders seconds as the SubRip HH:MM:SS,mmm form.
func srtTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// renderSRT builds a SubRip document from segments. Speakers, when present,
// prefix the cue text.
func renderSRT(segments []collab.Segment) string {
	var b strings.Builder
	cue := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if seg.Speaker != "" {
			text = seg.Speaker + ": " + text
		}
		cue++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", cue, srtTimestamp(seg.Start), srtTimestamp(seg.End), text)
	}
	return b.String()
}

// renderPlainText joins segment texts into a line-per-segment document.
func renderPlainText(segments []collab.Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}
