// Package parser segments a streaming LLM response into typed regions:
// thinking, display answer, voice answer, document metadata, and session end.
//
// The generator may answer in two shapes. A formatted response wraps spoken
// content in <sectionA> and display content in <sectionB>; an unformatted
// response is free text. Either shape may carry a <thinking> prefix, a
// trailing "[meta:docs] {...}" JSON payload, and a "{#NXENDX#}" session-end
// sentinel. The parser routes each region to its sink without ever leaking
// markup or metadata into voice output, surviving arbitrary chunk boundaries
// by buffering from an opening "[" until its matching "]".
//
// The parser is single-threaded: one caller feeds chunks via [Parser.Feed]
// and closes the stream with [Parser.Finalize].
package parser

import "strings"

// Literal markers recognized in the response stream.
const (
	thinkingOpen     = "<thinking>"
	thinkingClose    = "</thinking>"
	sectionAOpen     = "<sectionA>"
	sectionAClose    = "</sectionA>"
	sectionBOpen     = "<sectionB>"
	sectionBClose    = "</sectionB>"
	metaDocsMarker   = "[meta:docs]"
	sessionEndMarker = "{#NXENDX#}"

	// sectionPartial guards against classifying a response as unformatted
	// while a section tag is still streaming in.
	sectionPartial = "<section"

	// detectThreshold is how many characters must accumulate before an
	// untagged response is classified as a plain answer.
	detectThreshold = 20
)

// State identifies where in the response the parser currently is.
type State int

// Parser states.
const (
	StateUnknown State = iota
	StateSectionA
	StateSectionB
	StateThinking
	StateAnswer
	StateMetadata
	StateCompleted
	StateSessionEnd
)

// String implements fmt.Stringer for logging.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateSectionA:
		return "section_a"
	case StateSectionB:
		return "section_b"
	case StateThinking:
		return "thinking"
	case StateAnswer:
		return "answer"
	case StateMetadata:
		return "metadata"
	case StateCompleted:
		return "completed"
	case StateSessionEnd:
		return "session_end"
	default:
		return "invalid"
	}
}

// Sinks receives the parsed regions. Nil functions are replaced by no-ops.
type Sinks struct {
	// Thinking receives the reasoning prefix, once, tags stripped.
	Thinking func(content string)

	// Answer receives display-answer text chunks.
	Answer func(content string)

	// Voice receives spoken-answer text (Section A content), metadata split off.
	Voice func(content string)

	// Metadata receives the raw trailing metadata buffer on finalize; callers
	// join it against knowledge-search results themselves.
	Metadata func(raw string)

	// SessionEnd fires when the session-end sentinel is observed.
	SessionEnd func()
}

// Parser is the token-level state machine. Not safe for concurrent use.
type Parser struct {
	sinks Sinks

	full  string
	state State

	// base marks where the not-yet-classified region of full begins. It
	// advances past an emitted thinking block so classification restarts
	// on the residue.
	base int

	thinkingProcessed bool
	pendingBracket    string
	formatted         bool
	metadata          string
	finalized         bool
}

// New creates a Parser routing regions into sinks.
func New(sinks Sinks) *Parser {
	if sinks.Thinking == nil {
		sinks.Thinking = func(string) {}
	}
	if sinks.Answer == nil {
		sinks.Answer = func(string) {}
	}
	if sinks.Voice == nil {
		sinks.Voice = func(string) {}
	}
	if sinks.Metadata == nil {
		sinks.Metadata = func(string) {}
	}
	if sinks.SessionEnd == nil {
		sinks.SessionEnd = func() {}
	}
	return &Parser{sinks: sinks}
}

// State returns the current parser state.
func (p *Parser) State() State { return p.state }

// Formatted reports whether the response was classified as a formatted
// (sectioned) response. Callers use this to decide whether display-answer
// chunks should also be voiced.
func (p *Parser) Formatted() bool { return p.formatted }

// Feed processes the next chunk of the streaming response. When a handler
// transitions state, the accumulated content is immediately re-examined under
// the new state, so a single chunk may traverse several states.
func (p *Parser) Feed(chunk string) {
	p.full += chunk

	for {
		before := p.state
		switch p.state {
		case StateUnknown:
			p.detectResponseType()
		case StateSectionA:
			p.handleSectionA()
		case StateSectionB:
			p.handleSectionB()
		case StateThinking:
			p.handleThinking()
		case StateAnswer:
			p.handleAnswer(chunk)
		case StateMetadata:
			p.metadata += chunk
		case StateCompleted:
			p.handleCompleted(chunk)
		case StateSessionEnd:
			// Everything after the sentinel is discarded.
		}
		if p.state == before {
			return
		}
		// The chunk has been consumed into full or a buffer; the new
		// state's handler must not see it again.
		chunk = ""
	}
}

// Finalize flushes any held bracket buffer, classifies any leftover
// unclassified text, and emits collected metadata. Call once after the last
// Feed; further calls are no-ops.
func (p *Parser) Finalize() {
	if p.finalized {
		return
	}
	p.finalized = true

	if p.state == StateUnknown {
		p.flushUnclassified()
	}

	if strings.TrimSpace(p.pendingBracket) != "" {
		held := p.pendingBracket
		p.pendingBracket = ""
		if strings.Contains(held, sessionEndMarker) {
			p.handleSessionEnd(held)
		} else {
			p.sinks.Answer(strings.TrimSpace(held))
		}
	}
	if meta := strings.TrimSpace(p.metadata); meta != "" {
		p.sinks.Metadata(meta)
	}
}

// flushUnclassified routes text that never crossed the detection threshold,
// so very short responses are not silently dropped at stream end.
func (p *Parser) flushUnclassified() {
	rest := p.full[p.base:]
	switch {
	case strings.Contains(rest, sessionEndMarker):
		p.handleSessionEnd(rest)
	case strings.Contains(rest, metaDocsMarker):
		p.splitAnswerAndMetadata(rest)
	default:
		if trimmed := strings.TrimSpace(rest); trimmed != "" {
			p.sinks.Answer(trimmed)
		}
	}
}

// detectResponseType classifies the unconsumed region once enough content
// arrived. An outer <thinking> that precedes any section tag is processed
// first; classification then restarts on the residue.
func (p *Parser) detectResponseType() {
	rest := p.full[p.base:]

	sectionIdx := strings.Index(rest, sectionAOpen)
	thinkingIdx := -1
	if !p.thinkingProcessed {
		thinkingIdx = strings.Index(rest, thinkingOpen)
	}

	switch {
	case thinkingIdx >= 0 && (sectionIdx < 0 || thinkingIdx < sectionIdx):
		p.state = StateThinking
	case sectionIdx >= 0:
		p.formatted = true
		p.state = StateSectionA
	case len(rest) >= detectThreshold:
		// A section tag may still be streaming in.
		if strings.Contains(rest, sectionPartial) {
			return
		}
		p.state = StateAnswer
		if strings.Contains(rest, metaDocsMarker) {
			p.splitAnswerAndMetadata(rest)
		} else {
			// Route through the bracket-aware path so a trailing partial
			// "[" is held rather than emitted.
			p.handleAnswer(rest)
		}
	}
}

// handleSectionA waits for <sectionB>, then extracts and routes the spoken
// Section A content: inner thinking to the thinking sink, metadata split off
// and retained, the rest to the voice sink.
func (p *Parser) handleSectionA() {
	sectionBStart := strings.Index(p.full, sectionBOpen)
	if sectionBStart < 0 {
		return // still collecting Section A
	}

	start := strings.Index(p.full, sectionAOpen) + len(sectionAOpen)
	content := strings.TrimSpace(p.full[start:sectionBStart])
	content = strings.TrimSpace(strings.TrimSuffix(content, sectionAClose))

	if strings.Contains(content, thinkingOpen) && strings.Contains(content, thinkingClose) {
		p.sinks.Thinking(extractThinking(content))
		content = strings.TrimSpace(content[strings.Index(content, thinkingClose)+len(thinkingClose):])
	}

	if idx := strings.Index(content, metaDocsMarker); idx >= 0 {
		if voice := strings.TrimSpace(content[:idx]); voice != "" {
			p.sinks.Voice(voice)
		}
		p.metadata = content[idx:]
	} else if content != "" {
		p.sinks.Voice(content)
	}

	p.state = StateSectionB
}

// handleSectionB routes display content. A closed section goes out whole;
// an open section is scanned for inner metadata or the session-end sentinel.
func (p *Parser) handleSectionB() {
	if strings.Contains(p.full, sectionBClose) {
		if content := p.sectionBContent(); content != "" {
			p.sinks.Answer(content)
		}
		p.handlePostSectionB()
		return
	}

	sectionBStart := strings.Index(p.full, sectionBOpen)
	if sectionBStart < 0 {
		return
	}
	inner := p.full[sectionBStart:]
	switch {
	case strings.Contains(inner, metaDocsMarker):
		p.handleSectionBMetadata()
	case strings.Contains(inner, sessionEndMarker):
		p.handleSectionBSessionEnd()
	}
}

// handleThinking waits for the closing tag, emits the thinking region once,
// then restarts classification on whatever follows.
func (p *Parser) handleThinking() {
	if p.thinkingProcessed {
		return
	}
	rest := p.full[p.base:]
	if !strings.Contains(rest, thinkingClose) {
		return
	}

	p.sinks.Thinking(extractThinking(rest))
	p.thinkingProcessed = true
	p.base += strings.Index(rest, thinkingClose) + len(thinkingClose)
	p.state = StateUnknown
}

// handleAnswer processes free-text answer chunks with bracket buffering:
// nothing between an unmatched "[" and its "]" is ever emitted downstream.
func (p *Parser) handleAnswer(chunk string) {
	if chunk == "" && p.pendingBracket == "" {
		return
	}

	content := p.pendingBracket + chunk
	p.pendingBracket = ""

	if strings.Contains(content, sessionEndMarker) {
		p.handleSessionEnd(content)
		return
	}

	bracket := strings.Index(content, "[")
	if bracket < 0 {
		p.emitAnswerHolding(content)
		return
	}

	if bracket > 0 {
		p.emitAnswer(content[:bracket])
	}
	rest := content[bracket:]
	end := strings.Index(rest, "]")
	if end < 0 {
		// Incomplete bracket: hold until more arrives.
		p.pendingBracket = rest
		return
	}

	complete := rest[:end+1]
	remaining := rest[end+1:]
	if strings.HasPrefix(complete, metaDocsMarker) {
		p.metadata = complete + remaining
		p.state = StateMetadata
		return
	}
	p.emitAnswer(complete)
	if remaining != "" {
		p.emitAnswerHolding(remaining)
	}
}

// emitAnswerHolding emits content but holds back any trailing text that could
// be the beginning of the session-end sentinel, so the sentinel is never
// leaked when it straddles a chunk boundary.
func (p *Parser) emitAnswerHolding(content string) {
	cut := len(content)
	for i := max(len(content)-len(sessionEndMarker)+1, 0); i < len(content); i++ {
		if strings.HasPrefix(sessionEndMarker, content[i:]) {
			cut = i
			break
		}
	}
	p.pendingBracket = content[cut:]
	p.emitAnswer(content[:cut])
}

// handleCompleted watches for trailing metadata or the session-end sentinel
// after all sections closed.
func (p *Parser) handleCompleted(chunk string) {
	switch {
	case strings.Contains(chunk, metaDocsMarker):
		p.metadata = p.full[strings.Index(p.full, metaDocsMarker):]
		p.state = StateMetadata
	case strings.Contains(chunk, sessionEndMarker):
		p.sinks.SessionEnd()
		p.state = StateSessionEnd
	}
}

// sectionBContent returns the display text between the Section B tags.
func (p *Parser) sectionBContent() string {
	start := strings.Index(p.full, sectionBOpen) + len(sectionBOpen)
	end := strings.Index(p.full, sectionBClose)
	if end < start {
		return ""
	}
	return strings.TrimSpace(p.full[start:end])
}

// handlePostSectionB routes whatever follows </sectionB>.
func (p *Parser) handlePostSectionB() {
	rest := strings.TrimSpace(p.full[strings.Index(p.full, sectionBClose)+len(sectionBClose):])
	switch {
	case strings.Contains(rest, metaDocsMarker):
		p.metadata = rest[strings.Index(rest, metaDocsMarker):]
		p.state = StateMetadata
	case strings.Contains(rest, sessionEndMarker):
		p.sinks.SessionEnd()
		p.state = StateSessionEnd
	default:
		p.state = StateCompleted
	}
}

// handleSectionBMetadata splits an open Section B at its inner metadata
// marker: text before it is display answer, the marker onward is metadata.
func (p *Parser) handleSectionBMetadata() {
	start := strings.Index(p.full, sectionBOpen) + len(sectionBOpen)
	inner := p.full[start:]
	idx := strings.Index(inner, metaDocsMarker)
	if idx < 0 {
		return
	}
	if content := strings.TrimSpace(inner[:idx]); content != "" {
		p.sinks.Answer(content)
	}
	p.metadata = p.full[start+idx:]
	p.state = StateMetadata
}

// handleSectionBSessionEnd splits an open Section B at the session-end
// sentinel and terminates the session.
func (p *Parser) handleSectionBSessionEnd() {
	start := strings.Index(p.full, sectionBOpen) + len(sectionBOpen)
	inner := p.full[start:]
	idx := strings.Index(inner, sessionEndMarker)
	if idx < 0 {
		return
	}
	if content := strings.TrimSpace(inner[:idx]); content != "" {
		p.sinks.Answer(content)
	}
	p.sinks.SessionEnd()
	p.state = StateSessionEnd
}

// splitAnswerAndMetadata splits text at the first metadata marker: the prefix
// is display answer, the marker onward is retained as metadata.
func (p *Parser) splitAnswerAndMetadata(text string) {
	idx := strings.Index(text, metaDocsMarker)
	if before := strings.TrimSpace(text[:idx]); before != "" {
		p.sinks.Answer(before)
	}
	p.metadata = text[idx:]
	p.state = StateMetadata
}

// handleSessionEnd emits everything before the sentinel (including any held
// bracket buffer) as answer, then terminates the session.
func (p *Parser) handleSessionEnd(text string) {
	idx := strings.Index(text, sessionEndMarker)
	before := p.pendingBracket + text[:idx]
	p.pendingBracket = ""
	if trimmed := strings.TrimSpace(before); trimmed != "" {
		p.sinks.Answer(trimmed)
	}
	p.sinks.SessionEnd()
	p.state = StateSessionEnd
}

// emitAnswer forwards non-blank answer text verbatim.
func (p *Parser) emitAnswer(content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	p.sinks.Answer(content)
}

// extractThinking returns the text between the thinking tags.
func extractThinking(text string) string {
	start := strings.Index(text, thinkingOpen) + len(thinkingOpen)
	end := strings.Index(text, thinkingClose)
	if end < start {
		return ""
	}
	return text[start:end]
}
