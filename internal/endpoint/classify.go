package endpoint

import "strings"

// CategoryOther is assigned when no keyword matches
const CategoryOther = "other"

type categoryRule struct {
	category string
	keywords []string
}

// Order matters: the first rule with a matching keyword wins.
var categoryRules = []categoryRule{
	{"social-media", []string{"tiktok", "instagram", "youtube", "facebook", "twitter", "xiaohongshu"}},
	{"tools", []string{"tool", "convert", "qr", "screenshot", "download"}},
	{"ai", []string{"ai", "generate", "ideogram", "image", "bot"}},
	{"search", []string{"search", "find", "lookup", "query"}},
	{"image", []string{"image", "photo", "picture", "removebg", "ocr"}},
	{"entertainment", []string{"anime", "mal", "anilist", "manga", "music"}},
	{"news", []string{"news", "kompas", "article"}},
}

// Classify picks a category for an endpoint from its path, name and description
func Classify(path, name, description string) string {
	text := strings.ToLower(path + " " + name + " " + description)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.category
			}
		}
	}
	return CategoryOther
}

// CategoryOrDefault returns the descriptor category, classifying it when empty
func (d Descriptor) CategoryOrDefault() string {
	if strings.TrimSpace(d.Category) != "" {
		return d.Category
	}
	return Classify(d.Path, d.Name, d.Description)
}
