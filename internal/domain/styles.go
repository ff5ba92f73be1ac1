package domain

import "strings"

// StyleOption is one entry of the style vocabulary offered to the form.
type StyleOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Styles is the fixed style vocabulary, in display order.
var Styles = []StyleOption{
	{ID: "editorial", Name: "Editorial", Description: "Clean, professional look suitable for publications"},
	{ID: "streetwear", Name: "Streetwear", Description: "Urban, casual style with bold elements"},
	{ID: "vintage", Name: "Vintage", Description: "Classic, retro aesthetic with nostalgic elements"},
	{ID: "minimalist", Name: "Minimalist", Description: "Simple, clean design with essential elements only"},
	{ID: "futuristic", Name: "Futuristic", Description: "Forward-looking style with innovative elements"},
}

// DefaultStyle returns the style a fresh form starts with.
func DefaultStyle() StyleOption {
	return Styles[0]
}

// StyleByID looks up a style by identifier, ignoring case and surrounding space.
func StyleByID(id string) (StyleOption, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, s := range Styles {
		if s.ID == id {
			return s, true
		}
	}
	return StyleOption{}, false
}
