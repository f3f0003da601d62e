package validate

import "fmt"

// Text field length limits shared by the chapter config loader and the checkout form.
const (
	MaxChapterTitleLength  = 200
	MaxChapterTargetLength = 2048
	MaxItemIDLength        = 100
	MaxOrderNameLength     = 200
	MaxOrderAddressLength  = 1000
)

func checkLen(value string, max int, field string) string {
	if len(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func checkRequired(value string, max int, field string) string {
	if value == "" {
		return fmt.Sprintf("%s is required", field)
	}
	return checkLen(value, max, field)
}

func ChapterTitle(s string) string  { return checkLen(s, MaxChapterTitleLength, "chapter title") }
func ChapterTarget(s string) string { return checkLen(s, MaxChapterTargetLength, "chapter target") }
func ItemID(s string) string        { return checkLen(s, MaxItemIDLength, "item id") }
func OrderName(s string) string     { return checkRequired(s, MaxOrderNameLength, "name") }
func OrderAddress(s string) string  { return checkRequired(s, MaxOrderAddressLength, "address") }

// FieldLimits returns field names mapped to max lengths, served at /api/limits.
func FieldLimits() map[string]int {
	return map[string]int{
		"chapterTitle":  MaxChapterTitleLength,
		"chapterTarget": MaxChapterTargetLength,
		"itemId":        MaxItemIDLength,
		"orderName":     MaxOrderNameLength,
		"orderAddress":  MaxOrderAddressLength,
	}
}
