package uci

import "strings"

type TokenKind int

const (
	EndOfStream TokenKind = iota
	Unmatched
	EmptyLine
	LineFeed
	HandshakeOk
	ReadyOk
	IdName
	IdAuthor
	OptionDecl
	BestMoveNoPonder
	BestMoveWithPonder
	BestMove
)

var tokenKindNames = [...]string{
	EndOfStream:        "end_of_stream",
	Unmatched:          "unmatched",
	EmptyLine:          "empty_line",
	LineFeed:           "line_feed",
	HandshakeOk:        "uciok",
	ReadyOk:            "readyok",
	IdName:             "id_name",
	IdAuthor:           "id_author",
	OptionDecl:         "option",
	BestMoveNoPonder:   "bestmove_no_ponder",
	BestMoveWithPonder: "bestmove_ponder",
	BestMove:           "bestmove",
}

func (k TokenKind) String() string {
	if k < 0 || int(k) >= len(tokenKindNames) {
		return "unknown"
	}
	return tokenKindNames[k]
}

// Token is one classified line of engine output. Groups holds the captured
// fields of the matching rule; a nil Groups on OptionDecl or a best-move kind
// means the line started like that response but did not follow its grammar.
type Token struct {
	Kind   TokenKind
	Text   string
	Groups []string
}

const (
	respHandshakeOk = "uciok"
	respReadyOk     = "readyok"
	prefixIDName    = "id name"
	prefixIDAuthor  = "id author"
	keywordOption   = "option"
	keywordBestMove = "bestmove"
	keywordPonder   = "ponder"
	noMove          = "(none)"
)

type rule func(line string, fields []string) (Token, bool)

// classifyRules is evaluated in order; the first rule that claims a line wins.
var classifyRules = []rule{
	exactRule(respHandshakeOk, HandshakeOk),
	exactRule(respReadyOk, ReadyOk),
	prefixRule(prefixIDName, IdName),
	prefixRule(prefixIDAuthor, IdAuthor),
	optionRule,
	bestMoveRule,
}

// Classify maps one physical line (terminator already removed) to a token.
func Classify(line string) Token {
	if line == "" {
		return Token{Kind: LineFeed}
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Token{Kind: EmptyLine, Text: line}
	}
	fields := strings.Fields(trimmed)
	for _, r := range classifyRules {
		if tok, ok := r(trimmed, fields); ok {
			return tok
		}
	}
	return Token{Kind: Unmatched, Text: trimmed}
}

func exactRule(want string, kind TokenKind) rule {
	return func(line string, _ []string) (Token, bool) {
		if line != want {
			return Token{}, false
		}
		return Token{Kind: kind, Text: line}, true
	}
}

func prefixRule(prefix string, kind TokenKind) rule {
	return func(line string, _ []string) (Token, bool) {
		if line != prefix && !strings.HasPrefix(line, prefix+" ") {
			return Token{}, false
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, prefix))
		return Token{Kind: kind, Text: payload, Groups: []string{payload}}, true
	}
}

// optionRule matches `option name <N> type <T> ...`. N may span several words.
func optionRule(line string, fields []string) (Token, bool) {
	if fields[0] != keywordOption {
		return Token{}, false
	}
	tok := Token{Kind: OptionDecl, Text: line}
	if len(fields) < 5 || fields[1] != "name" {
		return tok, true
	}
	typeIdx := -1
	for i := 3; i < len(fields)-1; i++ {
		if fields[i] == "type" {
			typeIdx = i
			break
		}
	}
	if typeIdx == -1 {
		return tok, true
	}
	tok.Groups = []string{strings.Join(fields[2:typeIdx], " "), fields[typeIdx+1]}
	return tok, true
}

// bestMoveRule covers `bestmove <M>`, `bestmove <M> ponder <P>` and a ponder
// keyword without a usable target.
func bestMoveRule(line string, fields []string) (Token, bool) {
	if fields[0] != keywordBestMove {
		return Token{}, false
	}
	if len(fields) < 2 {
		return Token{Kind: BestMove, Text: line}, true
	}
	move := fields[1]
	if len(fields) >= 3 && fields[2] == keywordPonder {
		if len(fields) < 4 || fields[3] == noMove {
			return Token{Kind: BestMoveNoPonder, Text: move, Groups: []string{move}}, true
		}
		return Token{Kind: BestMoveWithPonder, Text: move, Groups: []string{move, fields[3]}}, true
	}
	return Token{Kind: BestMove, Text: move, Groups: []string{move}}, true
}
