package provision

import (
	"errors"
	"fmt"
	"strings"
)

// CheckSchemaSource validates a DDL batch without talking to a server: the
// source must be non-empty and every quoted region must be closed. This
// catches truncated or mangled schema files before anything is dropped.
func CheckSchemaSource(src string) error {
	if strings.TrimSpace(src) == "" {
		return errors.New("schema source is empty")
	}

	var (
		inSingle  bool
		inDouble  bool
		dollarTag string
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case dollarTag != "":
			if c == '$' && strings.HasPrefix(src[i:], dollarTag) {
				i += len(dollarTag) - 1
				dollarTag = ""
			}
		case inSingle:
			if c == '\'' {
				// Doubled quote is an escaped quote inside the literal.
				if i+1 < len(src) && src[i+1] == '\'' {
					i++
					continue
				}
				inSingle = false
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			}
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			// Line comment runs to end of line.
			if nl := strings.IndexByte(src[i:], '\n'); nl >= 0 {
				i += nl
			} else {
				i = len(src)
			}
		case c == '\'':
			inSingle = true
		case c == '"':
			inDouble = true
		case c == '$':
			if tag, ok := dollarQuoteTag(src[i:]); ok {
				dollarTag = tag
				i += len(tag) - 1
			}
		}
	}

	switch {
	case inSingle:
		return errors.New("unterminated single-quoted literal")
	case inDouble:
		return errors.New("unterminated double-quoted identifier")
	case dollarTag != "":
		return fmt.Errorf("unterminated dollar-quoted block %s", dollarTag)
	}
	return nil
}

// dollarQuoteTag reports whether s starts a dollar-quote opener like $$ or
// $body$ and returns the full tag including both dollar signs.
func dollarQuoteTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return s[:i+1], true
		}
		if !isTagChar(c) {
			return "", false
		}
	}
	return "", false
}

func isTagChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
