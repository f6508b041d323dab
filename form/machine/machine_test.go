package machine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/machine"
	"github.com/m3rciful/formbot/form/record"
	"github.com/m3rciful/formbot/form/script"
	"github.com/m3rciful/formbot/form/session"
	"github.com/m3rciful/formbot/form/sink"
)

const chat = "1001"

// flakyLog wraps the memory log with a switchable append failure.
type flakyLog struct {
	record.Log
	fail atomic.Bool
}

func (f *flakyLog) Append(ctx context.Context, r record.Record) error {
	if f.fail.Load() {
		return errors.New("log unavailable")
	}
	return f.Log.Append(ctx, r)
}

// brokenStore fails every write.
type brokenStore struct{ session.Store }

func (brokenStore) Put(context.Context, *session.Session) error {
	return errors.New("store unavailable")
}

type env struct {
	machine  *machine.Machine
	sessions *session.Manager
	store    session.Store
	log      *flakyLog
	catalog  *script.Catalog

	mu          sync.Mutex
	notified    []sink.Notification
	notifyErr   error
	clockOffset time.Duration
}

type envOptions struct {
	script script.Options
	prompt bool
	ttl    time.Duration
	store  session.Store
}

func newEnv(t *testing.T, opts envOptions) *env {
	t.Helper()
	e := &env{
		store:   opts.store,
		log:     &flakyLog{Log: record.NewMemoryLog()},
		catalog: script.New(opts.script),
	}
	if e.store == nil {
		e.store = session.NewMemoryStore()
	}
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	clock := func() time.Time {
		e.mu.Lock()
		off := e.clockOffset
		e.mu.Unlock()
		// Monotonic so every started session gets a distinct record id.
		return base.Add(off + time.Duration(tick.Add(1)))
	}
	e.sessions = session.NewManager(e.store, session.WithTTL(opts.ttl), session.WithClock(clock))

	notifier := sink.NotifierFunc(func(_ context.Context, n sink.Notification) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.notifyErr != nil {
			return e.notifyErr
		}
		e.notified = append(e.notified, n)
		return nil
	})
	s := sink.New(e.log, notifier, e.catalog)
	e.machine = machine.New(e.sessions, e.catalog, s, machine.Options{PromptLanguage: opts.prompt})
	return e
}

func (e *env) advanceClock(d time.Duration) {
	e.mu.Lock()
	e.clockOffset += d
	e.mu.Unlock()
}

func text(v string) machine.Inbound {
	return machine.Inbound{ConversationID: chat, Kind: script.KindText, Text: v}
}

func photo(fileID string) machine.Inbound {
	return machine.Inbound{ConversationID: chat, Kind: script.KindPhoto, AttachmentID: fileID}
}

func (e *env) start(t *testing.T, hint machine.Hint) machine.Result {
	t.Helper()
	res, err := e.machine.Start(context.Background(), chat, hint)
	require.NoError(t, err)
	return res
}

func (e *env) send(t *testing.T, in machine.Inbound) machine.Result {
	t.Helper()
	res, err := e.machine.Handle(context.Background(), in)
	require.NoError(t, err)
	e.assertInvariant(t)
	return res
}

// assertInvariant checks len(answers) == step for the stored session.
func (e *env) assertInvariant(t *testing.T) {
	t.Helper()
	s, err := e.store.Get(context.Background(), chat)
	if errors.Is(err, session.ErrNotFound) {
		return
	}
	require.NoError(t, err)
	assert.Len(t, s.Answers, s.Step)
	assert.LessOrEqual(t, s.Step, len(e.catalog.For(s.Language)))
}

func (e *env) session(t *testing.T) *session.Session {
	t.Helper()
	s, err := e.store.Get(context.Background(), chat)
	require.NoError(t, err)
	return s
}

func (e *env) records(t *testing.T) []record.Record {
	t.Helper()
	rs, err := e.log.List(context.Background(), 0)
	require.NoError(t, err)
	return rs
}

func values(r record.Record) []string {
	out := make([]string, len(r.Answers))
	for i, a := range r.Answers {
		out[i] = a.Value
	}
	return out
}

func TestRussianScenario(t *testing.T) {
	e := newEnv(t, envOptions{})
	res := e.start(t, machine.Hint{Arg: "ru"})
	require.Len(t, res.Replies, 1)
	assert.Equal(t, e.catalog.For(lang.RU)[0].Prompt, res.Replies[0].Text)

	answers := []string{"Иван", "Ташкент, ул. Мира 5", "+998901234567", "120", "без комментариев"}
	for i, a := range answers[:4] {
		res = e.send(t, text(a))
		assert.Equal(t, machine.OutcomeAccepted, res.Outcome)
		assert.Equal(t, i+1, res.Step)
		assert.Equal(t, e.catalog.For(lang.RU)[i+1].Prompt, res.Replies[0].Text)
	}
	res = e.send(t, text(answers[4]))
	assert.Equal(t, machine.OutcomeCompleted, res.Outcome)
	require.Len(t, res.Replies, 1)
	assert.Equal(t, e.catalog.Texts(lang.RU).Done, res.Replies[0].Text)

	rs := e.records(t)
	require.Len(t, rs, 1)
	assert.Equal(t, answers, values(rs[0]))
	assert.Equal(t, lang.RU, rs[0].Language)
	assert.Equal(t, res.RecordID, rs[0].ID)

	_, err := e.store.Get(context.Background(), chat)
	assert.ErrorIs(t, err, session.ErrNotFound)

	require.Len(t, e.notified, 1)
	assert.Contains(t, e.notified[0].Text, "Иван")
}

func TestUnsupportedHintUsesDefault(t *testing.T) {
	for _, prompt := range []bool{false, true} {
		e := newEnv(t, envOptions{script: script.Options{DefaultLanguage: lang.UZ}, prompt: prompt})
		res := e.start(t, machine.Hint{Arg: "fr"})

		s := e.session(t)
		assert.Equal(t, lang.UZ, s.Language)
		assert.False(t, s.AwaitingLanguage)
		assert.Equal(t, e.catalog.For(lang.UZ)[0].Prompt, res.Replies[0].Text)
	}
}

func TestUnsupportedArgumentOverridesLocale(t *testing.T) {
	for _, prompt := range []bool{false, true} {
		e := newEnv(t, envOptions{script: script.Options{DefaultLanguage: lang.RU}, prompt: prompt})
		res := e.start(t, machine.Hint{Arg: "fr", Locale: "uz"})

		s := e.session(t)
		assert.Equal(t, lang.RU, s.Language)
		assert.False(t, s.AwaitingLanguage)
		assert.Equal(t, e.catalog.For(lang.RU)[0].Prompt, res.Replies[0].Text)
	}
}

func TestLocaleHint(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.start(t, machine.Hint{Locale: "uz-UZ"})
	assert.Equal(t, lang.UZ, e.session(t).Language)
}

func TestCompleteSequenceInUzbek(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.start(t, machine.Hint{Arg: "uz"})

	answers := []string{"Aziz", "Samarqand", "+998 90 111 22 33", "85,5", "Fasad"}
	var res machine.Result
	for _, a := range answers {
		res = e.send(t, text(a))
	}
	assert.Equal(t, machine.OutcomeCompleted, res.Outcome)
	assert.Equal(t, e.catalog.Texts(lang.UZ).Done, res.Replies[0].Text)

	rs := e.records(t)
	require.Len(t, rs, 1)
	assert.Equal(t, answers, values(rs[0]))
	assert.Equal(t, lang.UZ, rs[0].Language)
	steps := e.catalog.For(lang.UZ)
	for i, a := range rs[0].Answers {
		assert.Equal(t, steps[i].Name, a.Step)
	}
}

func TestRedeliveryDoesNotDoubleAppend(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.start(t, machine.Hint{Arg: "ru"})

	e.send(t, text("Иван"))
	e.send(t, text("Ташкент"))
	e.send(t, text("+998901234567"))
	// The duplicate is now judged by the area step.
	res := e.send(t, text("+998901234567"))
	assert.Equal(t, machine.OutcomeAccepted, res.Outcome)

	s := e.session(t)
	assert.Equal(t, 4, s.Step)
	names := map[string]int{}
	for _, a := range s.Answers {
		names[a.Step]++
	}
	for step, n := range names {
		assert.Equal(t, 1, n, step)
	}

	// A duplicate that fails the next step's rule is rejected outright.
	e2 := newEnv(t, envOptions{})
	e2.start(t, machine.Hint{Arg: "ru"})
	e2.send(t, text("Иван"))
	e2.send(t, text("Ташкент"))
	res = e2.send(t, text("Ташкент"))
	assert.Equal(t, machine.OutcomeRejected, res.Outcome)
	s = e2.session(t)
	assert.Equal(t, 2, s.Step)
	assert.Equal(t, "Ташкент", s.Answers[1].Value)
}

func TestNotifierFailureStillLogsAndAcknowledges(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.notifyErr = errors.New("chat not found")
	e.start(t, machine.Hint{Arg: "ru"})

	var res machine.Result
	for _, a := range []string{"Иван", "Ташкент", "+998901234567", "120", "-"} {
		res = e.send(t, text(a))
	}
	assert.Equal(t, machine.OutcomeCompleted, res.Outcome)
	assert.Equal(t, e.catalog.Texts(lang.RU).Done, res.Replies[0].Text)
	assert.Len(t, e.records(t), 1)
	_, err := e.store.Get(context.Background(), chat)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRejectedKindKeepsStep(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.start(t, machine.Hint{Arg: "ru"})
	steps := e.catalog.For(lang.RU)
	texts := e.catalog.Texts(lang.RU)

	for i, in := range []machine.Inbound{
		photo("AgAD"),
		{ConversationID: chat, Kind: script.KindOther},
		{ConversationID: chat, Kind: script.KindContact, Text: "+998901234567"},
		text("   "),
	} {
		res := e.send(t, in)
		assert.Equal(t, machine.OutcomeRejected, res.Outcome, i)
		require.Len(t, res.Replies, 2)
		assert.Equal(t, texts.WrongKind, res.Replies[0].Text)
		assert.Equal(t, steps[0].Prompt, res.Replies[1].Text)
		assert.Equal(t, 0, e.session(t).Step)
	}
	assert.Empty(t, e.session(t).Attachments, "no attachment step, nothing stored")
}

func TestValidatorRejection(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.start(t, machine.Hint{Arg: "ru"})
	e.send(t, text("Иван"))
	e.send(t, text("Ташкент"))

	res := e.send(t, text("позвоните мне"))
	assert.Equal(t, machine.OutcomeRejected, res.Outcome)
	assert.Equal(t, e.catalog.For(lang.RU)[2].Invalid, res.Replies[0].Text)
	assert.Equal(t, machine.KeyboardContact, res.Replies[1].Keyboard)
	assert.Equal(t, 2, e.session(t).Step)

	res = e.send(t, machine.Inbound{ConversationID: chat, Kind: script.KindContact, Text: "+998901234567"})
	assert.Equal(t, machine.OutcomeAccepted, res.Outcome)
	assert.Equal(t, "+998901234567", e.session(t).Answers[2].Value)

	res = e.send(t, text("много"))
	assert.Equal(t, machine.OutcomeRejected, res.Outcome)
	assert.Equal(t, e.catalog.Texts(lang.RU).InvalidArea, res.Replies[0].Text)
}

func TestLocationAcceptedForAddress(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.start(t, machine.Hint{Arg: "ru"})
	e.send(t, text("Иван"))
	res := e.send(t, machine.Inbound{ConversationID: chat, Kind: script.KindLocation, Text: "41.311081,69.240562"})
	assert.Equal(t, machine.OutcomeAccepted, res.Outcome)
	a := e.session(t).Answers[1]
	assert.Equal(t, script.KindLocation, a.Kind)
	assert.Equal(t, "41.311081,69.240562", a.Value)
}

func TestNoSession(t *testing.T) {
	e := newEnv(t, envOptions{})
	res := e.send(t, text("привет"))
	assert.Equal(t, machine.OutcomeNoSession, res.Outcome)
	assert.Equal(t, script.NoSessionText, res.Replies[0].Text)

	ids, err := e.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMidFormAttachment(t *testing.T) {
	e := newEnv(t, envOptions{script: script.Options{PhotoStep: true}})
	e.start(t, machine.Hint{Arg: "ru"})
	e.send(t, text("Иван"))

	res := e.send(t, photo("AgAD-early"))
	assert.Equal(t, machine.OutcomeAttachmentStored, res.Outcome)
	require.Len(t, res.Replies, 2)
	assert.Equal(t, e.catalog.Texts(lang.RU).AttachmentSaved, res.Replies[0].Text)
	assert.Equal(t, e.catalog.For(lang.RU)[1].Prompt, res.Replies[1].Text)
	s := e.session(t)
	assert.Equal(t, 1, s.Step)
	assert.Equal(t, []session.Attachment{{Kind: script.KindPhoto, FileID: "AgAD-early"}}, s.Attachments)

	for _, a := range []string{"Ташкент", "+998901234567", "120", "без комментариев"} {
		e.send(t, text(a))
	}
	res = e.send(t, photo("AgAD-final"))
	assert.Equal(t, machine.OutcomeCompleted, res.Outcome)

	rs := e.records(t)
	require.Len(t, rs, 1)
	assert.Len(t, rs[0].Answers, 6)
	assert.Equal(t, []session.Attachment{
		{Kind: script.KindPhoto, FileID: "AgAD-early"},
		{Kind: script.KindPhoto, FileID: "AgAD-final"},
	}, rs[0].Attachments)
	require.Len(t, e.notified, 1)
	assert.Len(t, e.notified[0].Attachments, 2)
}

func TestFinalAttachmentStepAcceptsText(t *testing.T) {
	e := newEnv(t, envOptions{script: script.Options{PhotoStep: true}})
	e.start(t, machine.Hint{Arg: "uz"})
	var res machine.Result
	for _, a := range []string{"Aziz", "Buxoro", "+998901234567", "200", "yo'q", "yo‘q"} {
		res = e.send(t, text(a))
	}
	assert.Equal(t, machine.OutcomeCompleted, res.Outcome)
	rs := e.records(t)
	require.Len(t, rs, 1)
	assert.Empty(t, rs[0].Attachments)
}

func TestSubmitFailureKeepsSessionAndRetries(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.start(t, machine.Hint{Arg: "ru"})
	e.log.fail.Store(true)

	var res machine.Result
	for _, a := range []string{"Иван", "Ташкент", "+998901234567", "120", "ок"} {
		res = e.send(t, text(a))
	}
	assert.Equal(t, machine.OutcomeSubmitFailed, res.Outcome)
	assert.Equal(t, e.catalog.Texts(lang.RU).Failure, res.Replies[0].Text)
	failedID := res.RecordID

	s := e.session(t)
	assert.Equal(t, 5, s.Step, "answers are kept for the retry")
	assert.Empty(t, e.records(t))

	e.log.fail.Store(false)
	res = e.send(t, text("anything"))
	assert.Equal(t, machine.OutcomeCompleted, res.Outcome)
	assert.Equal(t, failedID, res.RecordID, "retry reuses the record id")

	rs := e.records(t)
	require.Len(t, rs, 1)
	assert.Equal(t, []string{"Иван", "Ташкент", "+998901234567", "120", "ок"}, values(rs[0]))
	_, err := e.store.Get(context.Background(), chat)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestLanguagePrompt(t *testing.T) {
	e := newEnv(t, envOptions{prompt: true})
	res := e.start(t, machine.Hint{Locale: "en"})
	require.Len(t, res.Replies, 1)
	assert.Equal(t, machine.KeyboardLanguage, res.Replies[0].Keyboard)
	assert.True(t, e.session(t).AwaitingLanguage)

	res = e.send(t, text("fr"))
	assert.Equal(t, machine.OutcomeRejected, res.Outcome)
	assert.Equal(t, machine.KeyboardLanguage, res.Replies[0].Keyboard)

	res = e.send(t, photo("x"))
	assert.Equal(t, machine.OutcomeRejected, res.Outcome)

	res = e.send(t, text("🇺🇿 O'zbekcha"))
	assert.Equal(t, machine.OutcomeLanguageSet, res.Outcome)
	assert.Equal(t, e.catalog.For(lang.UZ)[0].Prompt, res.Replies[0].Text)
	s := e.session(t)
	assert.Equal(t, lang.UZ, s.Language)
	assert.False(t, s.AwaitingLanguage)
	assert.Equal(t, 0, s.Step)
}

func TestStartResets(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.start(t, machine.Hint{Arg: "ru"})
	e.send(t, text("Иван"))
	e.send(t, text("Ташкент"))

	e.start(t, machine.Hint{Arg: "uz"})
	s := e.session(t)
	assert.Equal(t, 0, s.Step)
	assert.Empty(t, s.Answers)
	assert.Equal(t, lang.UZ, s.Language)
}

func TestAbandon(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.start(t, machine.Hint{Arg: "ru"})
	e.send(t, text("Иван"))

	res, err := e.machine.Abandon(context.Background(), chat)
	require.NoError(t, err)
	assert.Equal(t, machine.OutcomeCancelled, res.Outcome)
	assert.Equal(t, e.catalog.Texts(lang.RU).Cancelled, res.Replies[0].Text)
	assert.Empty(t, e.records(t))

	res, err = e.machine.Abandon(context.Background(), chat)
	require.NoError(t, err)
	assert.Equal(t, machine.OutcomeNoSession, res.Outcome)
}

func TestExpiredSessionDiscarded(t *testing.T) {
	e := newEnv(t, envOptions{ttl: time.Hour})
	e.start(t, machine.Hint{Arg: "ru"})
	e.send(t, text("Иван"))

	e.advanceClock(2 * time.Hour)
	res := e.send(t, text("Ташкент"))
	assert.Equal(t, machine.OutcomeNoSession, res.Outcome)
	assert.Empty(t, e.records(t), "partial answers never become a record")
	_, err := e.store.Get(context.Background(), chat)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSweep(t *testing.T) {
	e := newEnv(t, envOptions{ttl: time.Hour})
	e.start(t, machine.Hint{Arg: "ru"})
	e.advanceClock(2 * time.Hour)

	n, err := e.machine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, e.records(t))
}

func TestStoreFailureSurfaces(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.start(t, machine.Hint{Arg: "uz"})

	broken := newEnv(t, envOptions{store: brokenStore{Store: e.store}})
	res, err := broken.machine.Handle(context.Background(), text("Aziz"))
	require.Error(t, err)
	assert.Equal(t, machine.OutcomeError, res.Outcome)
	assert.Equal(t, e.catalog.Texts(lang.UZ).Failure, res.Replies[0].Text)
	assert.Equal(t, 0, e.session(t).Step)
}

func TestConcurrentMessagesSerialized(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.start(t, machine.Hint{Arg: "ru"})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.machine.Handle(context.Background(), text("Ташкент 5"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s := e.session(t)
	assert.Equal(t, 2, s.Step, "name and address accepted, phone rejected")
	assert.Len(t, s.Answers, 2)
}
