package script

// InputKind classifies an inbound message by its payload.
type InputKind string

const (
	KindText     InputKind = "text"
	KindPhoto    InputKind = "photo"
	// KindDocument is an image sent as a file.
	KindDocument InputKind = "document"
	KindContact  InputKind = "contact"
	KindLocation InputKind = "location"
	// KindOther covers stickers, voice notes, videos and anything else the
	// form never accepts.
	KindOther InputKind = "other"
)

// IsAttachment reports whether the kind carries a platform file reference.
func (k InputKind) IsAttachment() bool {
	return k == KindPhoto || k == KindDocument
}
