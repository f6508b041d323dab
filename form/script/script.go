// Package script holds the ordered, language-parameterized question list of
// the application form together with its localized service texts.
package script

import (
	"errors"
	"fmt"

	"github.com/m3rciful/formbot/form/lang"
)

// Step names. Answers are keyed by these, never by position.
const (
	StepName    = "name"
	StepAddress = "address"
	StepPhone   = "phone"
	StepArea    = "area"
	StepComment = "comment"
	StepPhoto   = "photo"
)

// DefaultMinPhoneDigits is used when Options.MinPhoneDigits is not set.
const DefaultMinPhoneDigits = 7

// ErrUnsupportedKind is returned by Step.Check when the step does not accept
// the input kind.
var ErrUnsupportedKind = errors.New("script: unsupported input kind")

// ErrInvalid is returned by Step.Check when the validator rejects the value.
var ErrInvalid = errors.New("script: invalid value")

// Step is one question of the form.
type Step struct {
	Name    string
	Prompt  string
	Accepts []InputKind
	// Validate is applied to text values only. Nil accepts everything.
	Validate Validator
	// Invalid is the notice sent when Validate rejects the value.
	Invalid string
	// Attachment marks the designated attachment step. Attachments sent while
	// another step is active are stored without advancing.
	Attachment bool
	// RequestContact asks the adapter to offer a share-contact button.
	RequestContact bool
}

// AcceptsKind reports whether k is among the step's accepted kinds.
func (s Step) AcceptsKind(k InputKind) bool {
	for _, a := range s.Accepts {
		if a == k {
			return true
		}
	}
	return false
}

// Check validates one inbound value against the step.
func (s Step) Check(kind InputKind, value string) error {
	if !s.AcceptsKind(kind) {
		return ErrUnsupportedKind
	}
	if kind == KindText && s.Validate != nil && !s.Validate(value) {
		return ErrInvalid
	}
	return nil
}

// Options configure the catalog.
type Options struct {
	// PhotoStep appends the optional photo step as the last question.
	PhotoStep       bool
	MinPhoneDigits  int
	DefaultLanguage lang.Language
}

// Catalog is the read-only set of scripts, one per supported language.
type Catalog struct {
	def     lang.Language
	scripts map[lang.Language][]Step
	texts   map[lang.Language]Texts
}

// New builds the catalog. An unsupported default language falls back to ru.
func New(opts Options) *Catalog {
	if opts.MinPhoneDigits <= 0 {
		opts.MinPhoneDigits = DefaultMinPhoneDigits
	}
	def := lang.Resolve(opts.DefaultLanguage, lang.RU)

	c := &Catalog{
		def:     def,
		scripts: make(map[lang.Language][]Step, len(lang.Supported)),
		texts:   make(map[lang.Language]Texts, len(lang.Supported)),
	}
	for _, l := range lang.Supported {
		t := textCatalog[l]
		t.InvalidPhone = fmt.Sprintf(t.InvalidPhone, opts.MinPhoneDigits)
		c.texts[l] = t
		c.scripts[l] = build(promptCatalog[l], t, opts)
	}
	return c
}

func build(p prompts, t Texts, opts Options) []Step {
	steps := []Step{
		{Name: StepName, Prompt: p.name, Accepts: []InputKind{KindText}},
		{Name: StepAddress, Prompt: p.address, Accepts: []InputKind{KindText, KindLocation}},
		{
			Name:           StepPhone,
			Prompt:         p.phone,
			Accepts:        []InputKind{KindText, KindContact},
			Validate:       MinDigits(opts.MinPhoneDigits),
			Invalid:        t.InvalidPhone,
			RequestContact: true,
		},
		{
			Name:     StepArea,
			Prompt:   p.area,
			Accepts:  []InputKind{KindText},
			Validate: PositiveNumber,
			Invalid:  t.InvalidArea,
		},
		{Name: StepComment, Prompt: p.comment, Accepts: []InputKind{KindText}},
	}
	if opts.PhotoStep {
		steps = append(steps, Step{
			Name:       StepPhoto,
			Prompt:     p.photo,
			Accepts:    []InputKind{KindText, KindPhoto, KindDocument},
			Attachment: true,
		})
	}
	return steps
}

// Default returns the language used when no supported one was resolved.
func (c *Catalog) Default() lang.Language { return c.def }

// Resolve maps l onto a supported language.
func (c *Catalog) Resolve(l lang.Language) lang.Language { return lang.Resolve(l, c.def) }

// For returns the steps of language l. The slice must not be modified.
func (c *Catalog) For(l lang.Language) []Step {
	return c.scripts[c.Resolve(l)]
}

// Texts returns the service messages of language l.
func (c *Catalog) Texts(l lang.Language) Texts {
	return c.texts[c.Resolve(l)]
}

// HasAttachmentStep reports whether the script of l designates an
// attachment step.
func (c *Catalog) HasAttachmentStep(l lang.Language) bool {
	for _, s := range c.For(l) {
		if s.Attachment {
			return true
		}
	}
	return false
}

// Label returns the localized caption of a step, or its name.
func (c *Catalog) Label(l lang.Language, step string) string {
	if label, ok := c.Texts(l).Labels[step]; ok {
		return label
	}
	return step
}
