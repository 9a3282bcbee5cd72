package domain

// Category enumerates the fixed set of question topics. The same values feed
// both the keyboard builder and the callback validator; matching is
// exact-string, no fuzzy matching or localization.
type Category string

const (
	CategoryKashrut Category = "Кашрут"
	CategoryShabbat Category = "Шаббат"
	CategoryFamily  Category = "Семья"
	CategoryStudy   Category = "Учёба"
	CategoryOther   Category = "Другое"
)

// AnonymousName is the rendered display name for users who skipped the name
// step.
const AnonymousName = "Анонимно"

// Categories returns the closed category set in presentation order.
func Categories() []Category {
	return []Category{
		CategoryKashrut,
		CategoryShabbat,
		CategoryFamily,
		CategoryStudy,
		CategoryOther,
	}
}

// ParseCategory validates raw input against the closed set.
func ParseCategory(raw string) (Category, bool) {
	for _, c := range Categories() {
		if string(c) == raw {
			return c, true
		}
	}
	return "", false
}
