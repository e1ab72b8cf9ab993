package relay

// Tone colours a structured reply.
type Tone int

const (
	ToneInfo Tone = iota
	ToneSuccess
	ToneWarning
	ToneError
)

// ActionStyle hints how an action should be rendered.
type ActionStyle int

const (
	ActionDefault ActionStyle = iota
	ActionPrimary
	ActionDanger
)

// Action ids understood by the pipeline.
const (
	ActionUnlinkConfirm = "unlink:confirm"
	ActionUnlinkCancel  = "unlink:cancel"
)

// Action is a button attached to a reply. URL actions open a link. Other
// actions carry ID back: as the button custom id on Discord, as the text of a
// message action on LINE.
type Action struct {
	ID    string
	Label string
	URL   string
	Style ActionStyle
}

// Field is a labelled value in a reply.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Reply is a platform-neutral command response. Adapters render it as
// embeds and buttons, templates, or plain text.
type Reply struct {
	Title     string
	Body      string
	Fields    []Field
	Actions   []Action
	Tone      Tone
	Ephemeral bool
}

// Text flattens the reply for surfaces without rich layouts.
func (r Reply) Text() string {
	var out string
	if r.Title != "" {
		out = r.Title
	}
	if r.Body != "" {
		if out != "" {
			out += "\n"
		}
		out += r.Body
	}
	for _, f := range r.Fields {
		if out != "" {
			out += "\n"
		}
		out += f.Name + ": " + f.Value
	}
	for _, a := range r.Actions {
		if a.URL == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += a.Label + ": " + a.URL
	}
	return out
}
