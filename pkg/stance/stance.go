// Package stance holds the closed catalog of stance tools and the variants
// that select which of them a session exposes.
package stance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wilhg/summon/pkg/tool"
)

// Kind identifies one tool in the catalog.
type Kind int

const (
	Summon Kind = iota
	AlterState
	Ritual
)

// All lists every kind in catalog order.
var All = []Kind{Summon, AlterState, Ritual}

func (k Kind) String() string {
	switch k {
	case Summon:
		return "summon"
	case AlterState:
		return "alter_state"
	case Ritual:
		return "ritual"
	default:
		return "stance(" + strconv.Itoa(int(k)) + ")"
	}
}

// Definition returns the tool definition for k. It panics on a kind outside
// the catalog.
func (k Kind) Definition() tool.Definition {
	switch k {
	case Summon:
		return tool.Definition{
			Name:        "summon",
			Description: summonDescription,
			Fields: []tool.Field{
				{Name: "who", Type: tool.String, Required: true, Description: whoDescription},
				{Name: "where", Type: tool.String, Required: true, Description: whereDescription},
				{Name: "doing", Type: tool.String, Required: true, Description: doingDescription},
			},
			Handler: summon,
		}
	case AlterState:
		return tool.Definition{
			Name:        "alter_state",
			Description: alterStateDescription,
			Fields: []tool.Field{
				{Name: "state", Type: tool.String, Required: true, Description: stateDescription},
				{Name: "anchor", Type: tool.String, Description: anchorDescription},
			},
			Handler: alterState,
		}
	case Ritual:
		return tool.Definition{
			Name:        "ritual",
			Description: ritualDescription,
			Fields: []tool.Field{
				{Name: "threshold", Type: tool.String, Required: true, Description: thresholdDescription},
				{Name: "sequence", Type: tool.StringArray, Required: true, Description: sequenceDescription},
				{Name: "invocation", Type: tool.String, Required: true, Description: invocationDescription},
			},
			Handler: ritual,
		}
	default:
		panic(fmt.Sprintf("stance: unknown kind %d", int(k)))
	}
}

func summon(_ context.Context, in tool.Input) tool.Result {
	return tool.Text("You are " + in.String("who") + " at " + in.String("where") + " doing " + in.String("doing"))
}

func alterState(_ context.Context, in tool.Input) tool.Result {
	out := "Your state shifts: you are now " + in.String("state")
	if in.Has("anchor") {
		out += ", held by " + in.String("anchor")
	}
	return tool.Text(out)
}

func ritual(_ context.Context, in tool.Input) tool.Result {
	var b strings.Builder
	b.WriteString("You cross the threshold of ")
	b.WriteString(in.String("threshold"))
	b.WriteString(".\n\n")
	if steps := in.Strings("sequence"); len(steps) > 0 {
		for i, step := range steps {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString(". ")
			b.WriteString(step)
		}
		b.WriteString("\n\n")
	}
	b.WriteByte('"')
	b.WriteString(in.String("invocation"))
	b.WriteByte('"')
	return tool.Text(b.String())
}
