package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/formbot/core/telegram"
	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/machine"
	"github.com/m3rciful/formbot/form/record"
	"github.com/m3rciful/formbot/form/script"
	"github.com/m3rciful/formbot/form/session"
	"github.com/m3rciful/formbot/form/sink"
)

type sent struct {
	text   string
	markup *tele.ReplyMarkup
}

type harness struct {
	h       *Handlers
	catalog *script.Catalog
	log     record.Log

	mu       sync.Mutex
	out      []sent
	notified []sink.Notification
}

func newHarness(t *testing.T, prompt bool) *harness {
	t.Helper()
	hs := &harness{
		catalog: script.New(script.Options{}),
		log:     record.NewMemoryLog(),
	}
	notifier := sink.NotifierFunc(func(_ context.Context, n sink.Notification) error {
		hs.mu.Lock()
		defer hs.mu.Unlock()
		hs.notified = append(hs.notified, n)
		return nil
	})
	sessions := session.NewManager(session.NewMemoryStore())
	m := machine.New(sessions, hs.catalog, sink.New(hs.log, notifier, hs.catalog), machine.Options{PromptLanguage: prompt})
	hs.h = New(m, hs.catalog, func(ctx context.Context) (Snapshot, error) {
		n, err := sessions.Count(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		recs, err := hs.log.List(ctx, 0)
		return Snapshot{Sessions: n, Records: len(recs)}, err
	})
	hs.h.send = func(_ tele.Context, what any, opts ...any) error {
		s := sent{text: what.(string)}
		for _, o := range opts {
			if mk, ok := o.(*tele.ReplyMarkup); ok {
				s.markup = mk
			}
		}
		hs.mu.Lock()
		hs.out = append(hs.out, s)
		hs.mu.Unlock()
		return nil
	}
	return hs
}

func (hs *harness) take() []sent {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	out := hs.out
	hs.out = nil
	return out
}

func chatMessage(m *tele.Message) tele.Context {
	m.Chat = &tele.Chat{ID: 42, Type: tele.ChatPrivate}
	if m.Sender == nil {
		m.Sender = &tele.User{ID: 7}
	}
	return tele.NewContext(nil, tele.Update{ID: 1, Message: m})
}

func TestFullFormOverTelegram(t *testing.T) {
	hs := newHarness(t, false)
	steps := hs.catalog.For(lang.UZ)

	require.NoError(t, hs.h.Start(chatMessage(&tele.Message{Text: "/start uz", Payload: "uz"})))
	out := hs.take()
	require.Len(t, out, 1)
	assert.Equal(t, steps[0].Prompt, out[0].text)

	require.NoError(t, hs.h.HandleMessage(chatMessage(&tele.Message{Text: "Ali"})))
	require.NoError(t, hs.h.HandleMessage(chatMessage(&tele.Message{Location: &tele.Location{Lat: 41.5, Lng: 69.25}})))
	out = hs.take()
	require.Len(t, out, 2)
	assert.Equal(t, steps[2].Prompt, out[1].text)
	require.NotNil(t, out[1].markup)
	assert.NotEmpty(t, out[1].markup.ReplyKeyboard, "phone step offers the contact button")

	require.NoError(t, hs.h.HandleMessage(chatMessage(&tele.Message{Contact: &tele.Contact{PhoneNumber: "+998901234567"}})))
	require.NoError(t, hs.h.HandleMessage(chatMessage(&tele.Message{Text: "120"})))
	require.NoError(t, hs.h.HandleMessage(chatMessage(&tele.Message{Text: "tez"})))
	out = hs.take()
	require.Len(t, out, 3)
	assert.Equal(t, hs.catalog.Texts(lang.UZ).Done, out[2].text)
	assert.True(t, out[2].markup.RemoveKeyboard)

	recs, err := hs.log.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "42", recs[0].ConversationID)
	assert.Equal(t, lang.UZ, recs[0].Language)
	addr, _ := recs[0].Answer(script.StepAddress)
	assert.Equal(t, "41.500000,69.250000", addr)
	require.Len(t, hs.notified, 1)
	assert.Equal(t, recs[0].ID, hs.notified[0].RecordID)
}

func TestLanguageButton(t *testing.T) {
	hs := newHarness(t, true)

	require.NoError(t, hs.h.Start(chatMessage(&tele.Message{Text: "/start"})))
	out := hs.take()
	require.Len(t, out, 1)
	assert.Equal(t, script.ChooseLanguageText, out[0].text)
	require.NotNil(t, out[0].markup)
	assert.Len(t, out[0].markup.InlineKeyboard, 1)

	cb := tele.NewContext(nil, tele.Update{ID: 2, Callback: &tele.Callback{
		ID:      "cb1",
		Data:    "\flang|uz",
		Sender:  &tele.User{ID: 7},
		Message: &tele.Message{ID: 10, Chat: &tele.Chat{ID: 42, Type: tele.ChatPrivate}},
	}})
	require.NoError(t, hs.h.Language(cb))
	out = hs.take()
	require.Len(t, out, 1)
	assert.Equal(t, hs.catalog.For(lang.UZ)[0].Prompt, out[0].text)
}

func TestCancelAndNoSession(t *testing.T) {
	hs := newHarness(t, false)

	require.NoError(t, hs.h.HandleMessage(chatMessage(&tele.Message{Text: "hello"})))
	out := hs.take()
	require.Len(t, out, 1)
	assert.Equal(t, script.NoSessionText, out[0].text)

	require.NoError(t, hs.h.Start(chatMessage(&tele.Message{Text: "/start ru", Payload: "ru"})))
	hs.take()
	require.NoError(t, hs.h.Cancel(chatMessage(&tele.Message{Text: "/cancel"})))
	out = hs.take()
	require.Len(t, out, 1)
	assert.Equal(t, hs.catalog.Texts(lang.RU).Cancelled, out[0].text)

	require.NoError(t, hs.h.HandleMessage(chatMessage(&tele.Message{Text: "Иван"})))
	out = hs.take()
	require.Len(t, out, 1)
	assert.Equal(t, script.NoSessionText, out[0].text)
}

func TestStats(t *testing.T) {
	hs := newHarness(t, false)

	require.NoError(t, hs.h.Start(chatMessage(&tele.Message{Text: "/start"})))
	hs.take()
	require.NoError(t, hs.h.Stats(chatMessage(&tele.Message{Text: "/stats"})))
	out := hs.take()
	require.Len(t, out, 1)
	assert.Equal(t, "Sessions in progress: 1\nApplications: 0", out[0].text)

	hs.h.stats = func(context.Context) (Snapshot, error) { return Snapshot{}, errors.New("down") }
	require.NoError(t, hs.h.Stats(chatMessage(&tele.Message{Text: "/stats"})))
	assert.Equal(t, "stats unavailable", hs.take()[0].text)
}

func TestHelpLanguage(t *testing.T) {
	hs := newHarness(t, false)
	require.NoError(t, hs.h.Help(chatMessage(&tele.Message{Text: "/help", Sender: &tele.User{ID: 7, LanguageCode: "uz"}})))
	out := hs.take()
	require.Len(t, out, 1)
	assert.Equal(t, hs.catalog.Texts(lang.UZ).Help, out[0].text)
}

func TestRegister(t *testing.T) {
	hs := newHarness(t, false)
	reg := tg.NewRegistry()
	require.NoError(t, hs.h.Register(reg))

	for _, name := range []string{"/start", "/cancel", "/help", "/stats"} {
		_, _, ok := reg.LookupCommand(name)
		assert.True(t, ok, name)
	}
	key, _, ok := reg.LookupCommand("/stop")
	require.True(t, ok)
	assert.Equal(t, "/cancel", key)
	_, ok = reg.GetCallback(LanguageCallback)
	assert.True(t, ok)
	assert.True(t, reg.Commands()["/stats"].AdminOnly)
	assert.Equal(t, []string{"ru", "uz"}, reg.MenuLanguages())
	assert.Equal(t, "Yordam", reg.Commands()["/help"].DescriptionFor("uz"))
	assert.Error(t, hs.h.Register(reg), "second registration collides")
}
