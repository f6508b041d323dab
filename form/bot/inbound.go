package bot

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/form/machine"
	"github.com/m3rciful/formbot/form/script"
)

// ConversationID keys sessions by chat so a group and a private chat with
// the same user are separate forms.
func ConversationID(c tele.Context) string {
	if chat := c.Chat(); chat != nil {
		return strconv.FormatInt(chat.ID, 10)
	}
	if u := c.Sender(); u != nil {
		return strconv.FormatInt(u.ID, 10)
	}
	return ""
}

// Locale is the sender's platform language, if any.
func Locale(c tele.Context) string {
	if u := c.Sender(); u != nil {
		return u.LanguageCode
	}
	return ""
}

// Inbound converts a Telegram message into a machine input.
func Inbound(c tele.Context) machine.Inbound {
	in := machine.Inbound{
		ConversationID: ConversationID(c),
		Kind:           script.KindOther,
		Locale:         Locale(c),
	}
	m := c.Message()
	if m == nil {
		return in
	}
	switch {
	case m.Photo != nil:
		in.Kind = script.KindPhoto
		in.AttachmentID = m.Photo.FileID
		in.Text = m.Caption
	case m.Document != nil:
		// Only images sent as files count; other documents are not photos.
		if !strings.HasPrefix(strings.ToLower(m.Document.MIME), "image/") {
			return in
		}
		in.Kind = script.KindDocument
		in.AttachmentID = m.Document.FileID
		in.Text = m.Caption
	case m.Contact != nil:
		in.Kind = script.KindContact
		in.Text = m.Contact.PhoneNumber
	case m.Location != nil:
		in.Kind = script.KindLocation
		in.Text = formatLocation(m.Location)
	case m.Text != "":
		in.Kind = script.KindText
		in.Text = m.Text
	}
	return in
}

func formatLocation(l *tele.Location) string {
	return strconv.FormatFloat(float64(l.Lat), 'f', 6, 32) + "," +
		strconv.FormatFloat(float64(l.Lng), 'f', 6, 32)
}
