// Package notify describes which lifecycle events the virtualization engine
// reports to the provider, and for which part of the namespace.
package notify

import (
	"path"
	"strings"
)

// Event is a bitmask of lifecycle events.
type Event uint32

const (
	// None requests no notifications.
	None Event = 0
	// FileOpened is reported after an entry has been opened.
	FileOpened Event = 0x2
	// PreDelete is reported before an entry is deleted; the receiver may veto it.
	PreDelete Event = 0x4
	// PreRename is reported before an entry is renamed; the receiver may veto it.
	PreRename Event = 0x8
)

var eventNames = []struct {
	event Event
	name  string
}{
	{FileOpened, "FILE_OPENED"},
	{PreRename, "PRE_RENAME"},
	{PreDelete, "PRE_DELETE"},
}

// Has reports whether every bit of other is set in e.
func (e Event) Has(other Event) bool {
	return other != None && e&other == other
}

func (e Event) String() string {
	if e == None {
		return "NONE"
	}
	var names []string
	for _, en := range eventNames {
		if e.Has(en.event) {
			names = append(names, en.name)
		}
	}
	return strings.Join(names, "|")
}

// Rule subscribes to a set of events under a root-relative scope.
// An empty Root covers the whole virtualization root.
type Rule struct {
	Root   string
	Events Event
}

// Covers reports whether relPath lies inside the rule's scope.
func (r Rule) Covers(relPath string) bool {
	scope := normalize(r.Root)
	if scope == "" {
		return true
	}
	p := normalize(relPath)
	return p == scope || strings.HasPrefix(p, scope+"/")
}

// StartOptions is everything the engine needs at start beyond the root path.
// Fields not listed keep the engine defaults.
type StartOptions struct {
	Rules []Rule
}

// Clone returns a copy that shares no memory with o.
func (o StartOptions) Clone() StartOptions {
	rules := make([]Rule, len(o.Rules))
	copy(rules, o.Rules)
	return StartOptions{Rules: rules}
}

// Wants reports whether event should be delivered for relPath. The first
// rule covering the path decides.
func (o StartOptions) Wants(relPath string, event Event) bool {
	for _, r := range o.Rules {
		if r.Covers(relPath) {
			return r.Events.Has(event)
		}
	}
	return false
}

// Build returns the bootstrap's notification policy: file opens, pending
// renames and pending deletes anywhere under the root.
func Build() StartOptions {
	return StartOptions{
		Rules: []Rule{{
			Root:   "",
			Events: FileOpened | PreRename | PreDelete,
		}},
	}
}

func normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}
