package sink

import (
	"fmt"
	"strings"

	"github.com/m3rciful/formbot/form/record"
	"github.com/m3rciful/formbot/form/script"
	"github.com/m3rciful/formbot/form/session"
)

// Render formats r for the notification chat in the record's language.
// Answers follow the script order; attachment answers are shown as a marker
// because the files are forwarded separately.
func Render(catalog *script.Catalog, r record.Record) string {
	t := catalog.Texts(r.Language)

	var b strings.Builder
	b.WriteString(t.NewApplication)
	b.WriteString(":\n\n")

	seen := make(map[string]bool, len(r.Answers))
	write := func(a session.Answer) {
		value := a.Value
		if a.Kind.IsAttachment() {
			value = t.AttachmentSent
		}
		fmt.Fprintf(&b, "%s: %s\n", catalog.Label(r.Language, a.Step), value)
	}

	for _, step := range catalog.For(r.Language) {
		for _, a := range r.Answers {
			if a.Step == step.Name {
				write(a)
				seen[a.Step] = true
				break
			}
		}
	}
	// Answers of steps the current script no longer has.
	for _, a := range r.Answers {
		if !seen[a.Step] {
			write(a)
		}
	}

	if n := len(r.Attachments); n > 0 {
		fmt.Fprintf(&b, "%s: %d\n", t.Attachments, n)
	}
	fmt.Fprintf(&b, "\n#%s", r.ID)
	return b.String()
}
