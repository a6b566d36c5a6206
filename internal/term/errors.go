package term

import (
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ErrAlreadyExists is returned by Create when the session name is already live.
var ErrAlreadyExists = errors.New("term: session already exists")

// ErrNoSuchSession is returned by any operation targeting an unknown session.
var ErrNoSuchSession = errors.New("term: no such session")

func zapStr(key, val string) zap.Field { return zap.String(key, val) }

// joinTrimRight joins pane lines with newlines, normalizing trailing blank
// lines away (the same normalization the status inference engine applies
	// before diffing two captures).
func joinTrimRight(lines []string) string {
	for len(lines) > 0 {
		last:= strings.TrimRight(lines[len(lines)-1], " \t")
		if last != "" {
			break
		}
		lines = lines[:len(lines)-1]
	}
	out:= make([]string, len(lines))
	for i, l:= range lines {
		out[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(out, "\n")
}
