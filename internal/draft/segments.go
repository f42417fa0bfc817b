package draft

import "strings"

// span ties a range of rendered text to the raw range it came from. Copied
// spans map byte for byte; rendered marks map as a whole.
type span struct {
	start, end       int
	rawStart, rawEnd int
	copied           bool
}

// textWriter builds rendered text in a single left-to-right pass over the raw
// source, recording where every piece came from.
type textWriter struct {
	raw   string
	pos   int
	b     strings.Builder
	spans []span
}

// copyTo copies raw text up to rawEnd.
func (w *textWriter) copyTo(rawEnd int) {
	if rawEnd <= w.pos {
		return
	}
	start := w.b.Len()
	w.b.WriteString(w.raw[w.pos:rawEnd])
	w.spans = append(w.spans, span{start: start, end: w.b.Len(), rawStart: w.pos, rawEnd: rawEnd, copied: true})
	w.pos = rawEnd
}

// emit writes text in place of the raw range ending at rawEnd.
func (w *textWriter) emit(text string, rawEnd int) {
	start := w.b.Len()
	w.b.WriteString(text)
	w.spans = append(w.spans, span{start: start, end: w.b.Len(), rawStart: w.pos, rawEnd: rawEnd})
	w.pos = rawEnd
}

func (w *textWriter) String() string {
	return w.b.String()
}

// rawOffset maps a rendered offset to the raw offset an insertion there
// belongs at. Offsets inside a rendered mark map past its raw marker.
func rawOffset(spans []span, offset int) (int, bool) {
	for _, sp := range spans {
		if sp.copied && offset >= sp.start && offset <= sp.end {
			return sp.rawStart + offset - sp.start, true
		}
	}
	for _, sp := range spans {
		if !sp.copied && offset > sp.start && offset <= sp.end {
			return sp.rawEnd, true
		}
	}
	return 0, false
}
