// Package notify renders and delivers listing notifications to a
// markup-sensitive channel. Delivery is best-effort: rate limits are
// retried with the server-provided wait, everything else is logged and
// dropped.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/flathunters/flatwatch/internal/model"
)

// Notifier delivers rendered messages to the configured channel.
type Notifier interface {
	// NotifyListing renders and sends the standard listing message.
	NotifyListing(ctx context.Context, l model.Listing) error

	// Send delivers an already-escaped message verbatim.
	Send(ctx context.Context, text string) error
}

// markdownV2Reserved is Telegram's MarkdownV2 reserved character set.
const markdownV2Reserved = "_*[]()~`>#+-=|{}.!"

// EscapeMarkdownV2 escapes every reserved MarkdownV2 character so user
// content cannot break the message markup.
func EscapeMarkdownV2(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markdownV2Reserved, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// FormatListing renders the notification message for a listing. The
// address links to a maps search so the recipient can check the
// location in one tap.
func FormatListing(l model.Listing) string {
	var details string
	if l.URL() != model.NA {
		details = EscapeMarkdownV2(l.Identifier)
	} else {
		details = fmt.Sprintf("Link not found, ID: %s", EscapeMarkdownV2(l.Identifier))
	}

	mapsURL := "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(l.Address)
	addressLine := fmt.Sprintf("[%s](%s)", EscapeMarkdownV2(l.Address), EscapeMarkdownV2(mapsURL))

	return fmt.Sprintf(
		"🏠 *New Listing*\n\n"+
			"📍 *Address:* %s\n"+
			"🏙️ *Borough:* %s\n"+
			"📐 *Size:* %s m²\n"+
			"💶 *Cold Rent:* %s €\n"+
			"💰 *Total Rent:* %s €\n"+
			"🚪 *Rooms:* %s\n\n"+
			"🔗 Details: %s",
		addressLine,
		EscapeMarkdownV2(l.Borough),
		EscapeMarkdownV2(l.SQM),
		EscapeMarkdownV2(l.PriceCold),
		EscapeMarkdownV2(l.PriceTotal),
		EscapeMarkdownV2(l.Rooms),
		details,
	)
}

// FormatApplication renders the follow-up message sent after a
// successful auto-application.
func FormatApplication(l model.Listing, applicant map[string]string, keys []string) string {
	var sb strings.Builder
	sb.WriteString("✅ *Application Submitted*\n\n")
	sb.WriteString(fmt.Sprintf("📍 %s\n", EscapeMarkdownV2(l.Address)))
	if l.URL() != model.NA {
		sb.WriteString(fmt.Sprintf("🔗 %s\n", EscapeMarkdownV2(l.URL())))
	}
	if len(applicant) > 0 {
		sb.WriteString("\n*Submitted data:*\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("• %s: %s\n", EscapeMarkdownV2(k), EscapeMarkdownV2(applicant[k])))
		}
	}
	return sb.String()
}
