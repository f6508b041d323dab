package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/core/telegram/commands"
)

// Registry holds the bot commands and callback handlers.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

// RegisterCommand adds cmd under name, which must start with a slash.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	var err error
	switch {
	case cmd.Handler == nil || cmd.Description == "":
		err = fmt.Errorf("command %q: handler and description are required", name)
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		err = fmt.Errorf("command %q: name must start with a slash", name)
	}
	if err == nil {
		r.mu.Lock()
		if _, exists := r.commands[name]; exists {
			err = fmt.Errorf("command %q: already registered", name)
		} else {
			r.commands[name] = cmd
		}
		r.mu.Unlock()
	}
	if err != nil {
		logger.Warn(context.Background(), "tg.wire", "register.command",
			slog.String("status", "skip"),
			slog.String("command", name),
			slog.String("err", err.Error()),
		)
	}
	return err
}

// LookupCommand resolves name, with or without the slash, against command
// names and their aliases. It returns the canonical name.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if alias == name || "/"+alias == name {
				return key, cmd, true
			}
		}
	}
	return "", commands.Command{}, false
}

// Commands returns a copy of the registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.commands)
}

// Menu lists the public commands as shown to users of languageCode. An
// empty code gives the default menu.
func (r *Registry) Menu(languageCode string) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for name, cmd := range r.commands {
		if cmd.Listed() {
			list = append(list, tele.Command{Text: name, Description: cmd.DescriptionFor(languageCode)})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// MenuLanguages returns every language code with a localized description.
func (r *Registry) MenuLanguages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]struct{})
	for _, cmd := range r.commands {
		if !cmd.Listed() {
			continue
		}
		for code := range cmd.Localized {
			set[code] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// RegisterCallback maps a callback unique key to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return errors.New("invalid callback registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok && h != nil
}

// CallbackKeys returns the registered callback keys, sorted.
func (r *Registry) CallbackKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.callbacks))
}

// SetCallbackNotFound replaces the answer to unknown callbacks.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// CommandMenuSetter is the part of tele.Bot that publishes command menus.
type CommandMenuSetter interface {
	SetCommands(opts ...interface{}) error
}

// PublishCommands sets the default command menu and one menu per localized
// language.
func PublishCommands(bot CommandMenuSetter, reg *Registry) error {
	errs := []error{bot.SetCommands(reg.Menu(""))}
	for _, code := range reg.MenuLanguages() {
		if err := bot.SetCommands(reg.Menu(code), code); err != nil {
			errs = append(errs, fmt.Errorf("menu %s: %w", code, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error(context.Background(), "tg.wire", "register.commands",
			slog.String("status", "error"),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}
