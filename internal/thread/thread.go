// Package thread derives a stable conversation identity from a message's
// Message-ID, In-Reply-To and References headers.
package thread

import (
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Message carries the threading headers of one email.
type Message struct {
	MessageID  string
	InReplyTo  string
	References []string
}

var (
	separators = regexp.MustCompile(`[\s,]+`)
	// pads brackets so ids written back to back still split
	bracketPad = strings.NewReplacer("<", " <", ">", "> ")
)

// NormalizeID trims the id and strips surrounding angle brackets, however
// many layers there are.
func NormalizeID(id string) string {
	return strings.Trim(id, "<> \t\r\n")
}

// Variants returns the bare and bracket-wrapped forms of id. Stored thread ids
// may be in either form.
func Variants(id string) []string {
	bare := NormalizeID(id)
	if bare == "" {
		return nil
	}
	return []string{bare, "<" + bare + ">"}
}

// NormalizeReferences turns a References value into an ordered list of
// bracket-stripped ids. Accepted shapes are a header string, a string slice, a
// generic slice and a string set; set keys are sorted since sets carry no order.
// Empty entries and repeats are dropped.
func NormalizeReferences(v interface{}) []string {
	var raw []string
	switch refs := v.(type) {
	case nil:
		return nil
	case string:
		raw = splitHeader(refs)
	case []string:
		for _, r := range refs {
			raw = append(raw, splitHeader(r)...)
		}
	case []interface{}:
		for _, r := range refs {
			if s, ok := r.(string); ok {
				raw = append(raw, splitHeader(s)...)
			}
		}
	case map[string]struct{}:
		raw = sortedKeys(refs)
	case map[string]bool:
		for k, ok := range refs {
			if ok {
				raw = append(raw, k)
			}
		}
		sort.Strings(raw)
	default:
		logrus.WithField("type", fmt.Sprintf("%T", v)).Warn("Unsupported references shape, ignoring")
		return nil
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		id := NormalizeID(r)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func splitHeader(s string) []string {
	return separators.Split(strings.TrimSpace(bracketPad.Replace(s)), -1)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve returns the thread id of a message: the oldest reference, else the
// direct parent, else the message's own id. A message with none of these gets
// a synthesized id.
func Resolve(m Message) string {
	if refs := NormalizeReferences(m.References); len(refs) > 0 {
		return refs[0]
	}
	if parent := NormalizeID(m.InReplyTo); parent != "" {
		return parent
	}
	if own := NormalizeID(m.MessageID); own != "" {
		return own
	}

	id := fallbackID(time.Now())
	logrus.WithField("thread_id", id).Warn("Message carries no threading headers, synthesized thread id")
	return id
}

func fallbackID(now time.Time) string {
	return "thread-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.FormatUint(rand.Uint64(), 36)
}
