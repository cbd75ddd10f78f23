package automation

import (
	"fmt"
	"strings"
)

// Kind is a closed set of automations.
type Kind int

const (
	KindUnknown Kind = iota
	KindInitiation
	KindN1Prepare
	KindN1Deliver
)

// AutomatedTasksCategory is the normalised name of the category that
// marks a task as ours.
const AutomatedTasksCategory = "automatedtasks"

var kindNames = map[Kind]string{
	KindInitiation: "initiation",
	KindN1Prepare:  "n1_prepare",
	KindN1Deliver:  "n1_deliver",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Bootstrap reports whether k is the automation that fires before the
// automated tasks category exists.
func (k Kind) Bootstrap() bool {
	return k == KindInitiation
}

// ParseKind accepts the String form in any case or punctuation.
func ParseKind(s string) (Kind, error) {
	want := Normalize(s)
	for k, name := range kindNames {
		if Normalize(name) == want {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown automation %q", s)
}

// Kinds lists every routable automation.
func Kinds() []Kind {
	return []Kind{KindInitiation, KindN1Prepare, KindN1Deliver}
}

type routeKey struct {
	event string
	task  string
}

var routes = map[routeKey]Kind{
	{event: "taskcreated", task: "automationinitiation"}:     KindInitiation,
	{event: "taskcreated", task: "n1rentincrease"}:           KindN1Prepare,
	{event: "taskupdated", task: "n1rentincreaseapproved"}:   KindN1Deliver,
	{event: "taskcompleted", task: "n1rentincreaseapproved"}: KindN1Deliver,
}

// Lookup finds the automation for an event type and task name.
func Lookup(eventType, taskName string) (Kind, bool) {
	k, ok := routes[routeKey{event: Normalize(eventType), task: Normalize(taskName)}]
	return k, ok
}

// Normalize lowercases s and drops everything but ASCII letters and digits.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
