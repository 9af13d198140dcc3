package domain

import (
	"strings"
	"time"
)

const (
	descriptionLimit  = 1010
	descriptionKeep   = 1007
	descriptionSuffix = "..."
)

// WebhookPayload is the JSON body posted to the notification endpoint.
type WebhookPayload struct {
	Embeds []Embed `json:"embeds"`
}

// Embed is a single rich notification card.
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	URL         string       `json:"url"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp"`
	Image       *EmbedImage  `json:"image,omitempty"`
	Author      EmbedAuthor  `json:"author"`
	Fields      []EmbedField `json:"fields"`
}

// EmbedImage points at a rendered map.
type EmbedImage struct {
	URL string `json:"url"`
}

// EmbedAuthor identifies the issuing authority.
type EmbedAuthor struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// EmbedField is a named block of text.
type EmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PayloadOptions carries the deployment-specific parts of a payload.
type PayloadOptions struct {
	// ImageBaseURL is prefixed to the rendered file name.
	ImageBaseURL string
	// NoInstructionColor, when non-nil, replaces the resolved color for
	// alerts that carry no instruction text.
	NoInstructionColor *int
}

// BuildPayload formats one alert as a single-embed webhook payload. image is
// the rendered file name and may be empty when no map was produced.
func BuildPayload(alert Alert, image string, color int, opts PayloadOptions) WebhookPayload {
	if alert.Instruction == "" && opts.NoInstructionColor != nil {
		color = *opts.NoInstructionColor
	}

	embed := Embed{
		Title:       Title(alert),
		Description: "## " + alert.Headline,
		URL:         alert.ID,
		Color:       color,
		Timestamp:   alert.Effective.Format(time.RFC3339),
		Author: EmbedAuthor{
			Name: "National Weather Service",
			URL:  "https://www.spc.noaa.gov",
		},
		Fields: []EmbedField{
			{Name: "Affected Counties", Value: alert.AreaDesc},
			{Name: "More Information", Value: "```\n" + TruncateDescription(alert.Description) + "\n```"},
		},
	}
	if image != "" {
		embed.Image = &EmbedImage{URL: strings.TrimRight(opts.ImageBaseURL, "/") + "/" + image}
	}
	return WebhookPayload{Embeds: []Embed{embed}}
}

// Title is the uppercased event name, marked when the message is an update.
func Title(alert Alert) string {
	title := strings.ToUpper(alert.Event)
	if strings.EqualFold(alert.MessageType, "update") {
		title += " (UPDATE)"
	}
	return title
}

// TruncateDescription shortens descriptions longer than 1010 characters to
// 1007, drops one more character if the cut ends on a space or backslash,
// and appends an ellipsis. Lengths are counted in characters, not bytes.
func TruncateDescription(desc string) string {
	runes := []rune(desc)
	if len(runes) <= descriptionLimit {
		return desc
	}
	kept := runes[:descriptionKeep]
	if last := kept[len(kept)-1]; last == ' ' || last == '\\' {
		kept = kept[:len(kept)-1]
	}
	return string(kept) + descriptionSuffix
}
