package script

import "github.com/m3rciful/formbot/form/lang"

// Texts holds the localized service messages of one language.
type Texts struct {
	WrongKind       string
	InvalidPhone    string
	InvalidArea     string
	AttachmentSaved string
	Done            string
	Failure         string
	Cancelled       string
	Help            string
	ContactButton   string

	// Notification rendering.
	NewApplication string
	Attachments    string
	AttachmentSent string
	Labels         map[string]string
}

// NoSessionText is sent when a message arrives without an active session.
// The language is unknown at that point, so it is bilingual.
const NoSessionText = "Напишите /start чтобы начать снова.\nQaytadan boshlash uchun /start ni yuboring."

// ChooseLanguageText asks the user to pick a language.
const ChooseLanguageText = "🌐 Выберите язык / Tilni tanlang:"

// LanguageLabels are the button captions of the language keyboard.
var LanguageLabels = map[lang.Language]string{
	lang.RU: "🇷🇺 Русский",
	lang.UZ: "🇺🇿 O'zbekcha",
}

type prompts struct {
	name, address, phone, area, comment, photo string
}

var promptCatalog = map[lang.Language]prompts{
	lang.RU: {
		name:    "👋 Здравствуйте! Введите, пожалуйста, ваше имя:",
		address: "📍 Укажите адрес объекта:",
		phone:   "📞 Укажите ваш номер телефона или нажмите кнопку ниже:",
		area:    "📐 Укажите квадратуру объекта:",
		comment: "💬 Оставьте комментарий (например, вид фасадных работ):",
		photo:   "📷 Отправьте фото объекта или напишите «нет»:",
	},
	lang.UZ: {
		name:    "👋 Assalomu alaykum! Iltimos, ismingizni kiriting:",
		address: "📍 Ob’ekt manzilini kiriting:",
		phone:   "📞 Telefon raqamingizni kiriting yoki quyidagi tugmani bosing:",
		area:    "📐 Ob’ekt kvadraturasini kiriting:",
		comment: "💬 Izoh qoldiring (masalan, fasad ishlari turi):",
		photo:   "📷 Ob’ekt rasmini yuboring yoki «yo‘q» deb yozing:",
	},
}

var textCatalog = map[lang.Language]Texts{
	lang.RU: {
		WrongKind:       "⚠️ Этот тип сообщения здесь не подходит. Пожалуйста, ответьте на вопрос.",
		InvalidPhone:    "⚠️ Номер телефона выглядит неверно. Укажите не менее %d цифр.",
		InvalidArea:     "⚠️ Укажите квадратуру числом, например 120.",
		AttachmentSaved: "📎 Файл сохранён и будет приложен к заявке.",
		Done:            "✅ Спасибо! Ваша заявка принята. Мы скоро свяжемся с вами!",
		Failure:         "❌ Не удалось сохранить заявку. Отправьте любое сообщение, чтобы попробовать ещё раз.",
		Cancelled:       "Заявка отменена. Напишите /start чтобы начать заново.",
		Help:            "Я помогу оформить заявку на фасадные работы.\n/start — начать\n/cancel — отменить",
		ContactButton:   "📱 Отправить мой номер",
		NewApplication:  "📩 Новая заявка",
		Attachments:     "📎 Вложения",
		AttachmentSent:  "приложено",
		Labels: map[string]string{
			StepName:    "👤 Имя",
			StepAddress: "📍 Адрес",
			StepPhone:   "📞 Телефон",
			StepArea:    "📐 Квадратура",
			StepComment: "💬 Комментарий",
			StepPhoto:   "📷 Фото",
		},
	},
	lang.UZ: {
		WrongKind:       "⚠️ Bu turdagi xabar bu yerda mos emas. Iltimos, savolga javob bering.",
		InvalidPhone:    "⚠️ Telefon raqami noto‘g‘ri ko‘rinadi. Kamida %d ta raqam kiriting.",
		InvalidArea:     "⚠️ Kvadraturani son bilan kiriting, masalan 120.",
		AttachmentSaved: "📎 Fayl saqlandi va so‘rovga biriktiriladi.",
		Done:            "✅ Rahmat! So‘rovingiz qabul qilindi. Tez orada siz bilan bog‘lanamiz!",
		Failure:         "❌ So‘rovni saqlab bo‘lmadi. Qayta urinish uchun istalgan xabarni yuboring.",
		Cancelled:       "So‘rov bekor qilindi. Qaytadan boshlash uchun /start ni yuboring.",
		Help:            "Men fasad ishlari uchun so‘rov qoldirishga yordam beraman.\n/start — boshlash\n/cancel — bekor qilish",
		ContactButton:   "📱 Raqamimni yuborish",
		NewApplication:  "📩 Yangi so‘rov",
		Attachments:     "📎 Ilovalar",
		AttachmentSent:  "biriktirilgan",
		Labels: map[string]string{
			StepName:    "👤 Ism",
			StepAddress: "📍 Manzil",
			StepPhone:   "📞 Telefon",
			StepArea:    "📐 Kvadratura",
			StepComment: "💬 Izoh",
			StepPhoto:   "📷 Rasm",
		},
	},
}
