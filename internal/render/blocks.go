package render

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/courtside/mailer/internal/domain"
	"github.com/courtside/mailer/internal/pkg/logger"
)

var log = logger.Named("render")

// RenderBlocks renders every block in order and concatenates the fragments.
func RenderBlocks(blocks domain.Blocks, vars Vars) string {
	var b strings.Builder
	for _, block := range blocks {
		b.WriteString(RenderBlock(block, vars))
	}
	return b.String()
}

// RenderBlock renders a single content block to an HTML fragment. Conditional
// blocks whose content resolves empty yield "".
func RenderBlock(block domain.Block, vars Vars) string {
	switch b := block.(type) {
	case domain.Heading:
		return renderHeading(b, vars)
	case domain.Paragraph:
		return renderParagraph(b, vars)
	case domain.Card:
		return renderCard(b, vars)
	case domain.UserCard:
		return renderUserCard(b, vars)
	case domain.Button:
		return renderButton(b, vars)
	case domain.Divider:
		return fmt.Sprintf(`<hr style="border:none;border-top:1px solid %s;margin:24px 0;">`, colorBorder)
	case domain.Note:
		return renderNote(b, vars)
	case domain.Footnote:
		return renderFootnote(b, vars)
	case domain.ConversationList:
		return renderConversationList(b, vars)
	case domain.UnsupportedBlock:
		return ""
	default:
		log.Error("unhandled block type", "type", fmt.Sprintf("%T", block))
		return ""
	}
}

func renderHeading(b domain.Heading, vars Vars) string {
	return fmt.Sprintf(`<h1 style="margin:0 0 16px;font-size:24px;line-height:32px;font-weight:700;color:%s;">%s</h1>`,
		colorText, escapeText(b.Text, vars))
}

func renderParagraph(b domain.Paragraph, vars Vars) string {
	var text string
	if b.HTML {
		text = InterpolateEscaped(b.Text, vars)
	} else {
		text = withLineBreaks(escapeText(b.Text, vars))
	}
	if b.Conditional && isBlank(text) {
		return ""
	}
	return fmt.Sprintf(`<p style="margin:0 0 16px;font-size:16px;line-height:24px;color:%s;">%s</p>`, colorText, text)
}

func renderCard(b domain.Card, vars Vars) string {
	title := escapeText(b.Title, vars)
	body := withLineBreaks(escapeText(b.Body, vars))

	var rows strings.Builder
	for _, f := range b.Fields {
		value := escapeText(f.Value, vars)
		if isBlank(value) {
			continue
		}
		fmt.Fprintf(&rows, `<tr><td style="padding:4px 12px 4px 0;font-size:13px;color:%s;white-space:nowrap;vertical-align:top;">%s</td>`,
			colorMuted, escapeText(f.Label, vars))
		fmt.Fprintf(&rows, `<td style="padding:4px 0;font-size:14px;color:%s;">%s</td></tr>`, colorText, value)
	}

	if b.Conditional && isBlank(title) && isBlank(body) && rows.Len() == 0 {
		return ""
	}

	var out strings.Builder
	fmt.Fprintf(&out, `<table role="presentation" width="100%%" cellpadding="0" cellspacing="0" style="background:%s;border:1px solid %s;border-radius:12px;margin:0 0 16px;"><tr><td style="padding:20px;">`,
		colorSurface, colorBorder)
	if !isBlank(title) {
		fmt.Fprintf(&out, `<p style="margin:0 0 8px;font-size:17px;font-weight:700;color:%s;">%s</p>`, colorText, title)
	}
	if !isBlank(body) {
		fmt.Fprintf(&out, `<p style="margin:0 0 8px;font-size:15px;line-height:22px;color:%s;">%s</p>`, colorText, body)
	}
	if rows.Len() > 0 {
		out.WriteString(`<table role="presentation" cellpadding="0" cellspacing="0">`)
		out.WriteString(rows.String())
		out.WriteString(`</table>`)
	}
	out.WriteString(`</td></tr></table>`)
	return out.String()
}

func renderUserCard(b domain.UserCard, vars Vars) string {
	name := Interpolate(b.Name, vars)
	subtitle := escapeText(b.Subtitle, vars)
	profile := safeHref(Interpolate(b.ProfileURL, vars))
	var avatarURL string
	if b.AvatarURLVar != "" {
		avatarURL = safeHref(vars[b.AvatarURLVar])
	}

	displayName := html.EscapeString(name)
	if profile != "" {
		displayName = fmt.Sprintf(`<a href="%s" style="color:%s;text-decoration:none;">%s</a>`, html.EscapeString(profile), colorText, displayName)
	}

	var out strings.Builder
	fmt.Fprintf(&out, `<table role="presentation" width="100%%" cellpadding="0" cellspacing="0" style="border:1px solid %s;border-radius:12px;margin:0 0 16px;"><tr>`, colorBorder)
	fmt.Fprintf(&out, `<td width="%d" style="padding:16px 0 16px 16px;vertical-align:middle;">%s</td>`, avatarSizePx+16, avatar(name, avatarURL, avatarSizePx))
	out.WriteString(`<td style="padding:16px;vertical-align:middle;">`)
	fmt.Fprintf(&out, `<p style="margin:0;font-size:16px;font-weight:700;color:%s;">%s</p>`, colorText, displayName)
	if !isBlank(subtitle) {
		fmt.Fprintf(&out, `<p style="margin:2px 0 0;font-size:14px;color:%s;">%s</p>`, colorMuted, subtitle)
	}
	out.WriteString(`</td></tr></table>`)
	return out.String()
}

// avatar draws an image when src is set, otherwise a coloured circle with
// the name's initials.
func avatar(name, src string, size int) string {
	if src != "" {
		return fmt.Sprintf(`<img src="%s" width="%d" height="%d" alt="%s" style="display:block;border-radius:50%%;object-fit:cover;">`,
			html.EscapeString(src), size, size, html.EscapeString(name))
	}
	return fmt.Sprintf(`<div style="width:%dpx;height:%dpx;border-radius:50%%;background:%s;color:#ffffff;font-size:%dpx;font-weight:700;line-height:%dpx;text-align:center;">%s</div>`,
		size, size, AvatarColor(name), size*3/8, size, html.EscapeString(Initials(name)))
}

func renderButton(b domain.Button, vars Vars) string {
	href := safeHref(Interpolate(b.URL, vars))
	if href == "" {
		return ""
	}
	label := escapeText(b.Label, vars)
	return fmt.Sprintf(`<table role="presentation" cellpadding="0" cellspacing="0" style="margin:8px 0 24px;"><tr><td style="border-radius:8px;background:%s;">`+
		`<a href="%s" style="display:inline-block;padding:12px 24px;font-size:16px;font-weight:600;color:#ffffff;text-decoration:none;border-radius:8px;">%s</a>`+
		`</td></tr></table>`, colorPrimary, html.EscapeString(href), label)
}

func renderNote(b domain.Note, vars Vars) string {
	text := withLineBreaks(escapeText(b.Text, vars))
	if b.Conditional && isBlank(text) {
		return ""
	}
	return fmt.Sprintf(`<div style="background:#fff7ed;border-left:4px solid %s;border-radius:4px;padding:12px 16px;margin:0 0 16px;font-size:14px;line-height:21px;color:#7c2d12;">%s</div>`,
		colorAccent, text)
}

func renderFootnote(b domain.Footnote, vars Vars) string {
	text := escapeText(b.Text, vars)
	if isBlank(text) {
		return ""
	}
	return fmt.Sprintf(`<p style="margin:16px 0 0;font-size:12px;line-height:18px;color:%s;">%s</p>`, colorMuted, text)
}

func renderConversationList(b domain.ConversationList, vars Vars) string {
	raw := strings.TrimSpace(vars[b.Variable])
	if raw == "" {
		return ""
	}

	var convs []domain.ConversationSummary
	if err := json.Unmarshal([]byte(raw), &convs); err != nil {
		log.Warn("conversation list variable is not a JSON array", "variable", b.Variable, "err", err)
		return ""
	}
	if len(convs) == 0 {
		return ""
	}

	var out strings.Builder
	fmt.Fprintf(&out, `<table role="presentation" width="100%%" cellpadding="0" cellspacing="0" style="border:1px solid %s;border-radius:12px;margin:0 0 16px;">`, colorBorder)
	for i, c := range convs {
		link := conversationLink(b.LinkURL, c.ConversationID, vars)
		border := ""
		if i > 0 {
			border = "border-top:1px solid " + colorBorder + ";"
		}
		fmt.Fprintf(&out, `<tr><td width="%d" style="padding:12px 0 12px 16px;%s">%s</td>`,
			smallAvatarSize+16, border, avatar(c.SenderName, safeHref(c.SenderAvatarURL), smallAvatarSize))
		fmt.Fprintf(&out, `<td style="padding:12px 16px;%s">`, border)
		fmt.Fprintf(&out, `<a href="%s" style="color:%s;font-weight:600;text-decoration:none;">%s</a>`,
			html.EscapeString(link), colorText, html.EscapeString(c.SenderName))
		fmt.Fprintf(&out, `<p style="margin:2px 0 0;font-size:13px;color:%s;">%s</p>`, colorMuted, messageCount(c.MessageCount))
		out.WriteString(`</td></tr>`)
	}
	out.WriteString(`</table>`)
	return out.String()
}

func conversationLink(pattern, conversationID string, vars Vars) string {
	if pattern != "" {
		return safeHref(Interpolate(pattern, vars.With("conversation_id", conversationID)))
	}
	return strings.TrimRight(vars[VarSiteURL], "/") + "/messages/" + url.PathEscape(conversationID)
}

func messageCount(n int) string {
	if n == 1 {
		return "1 new message"
	}
	return fmt.Sprintf("%d new messages", n)
}

// safeHref drops links with script-capable schemes.
func safeHref(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	for _, scheme := range []string{"javascript:", "vbscript:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}
	return raw
}

func withLineBreaks(s string) string {
	return strings.ReplaceAll(s, "\n", "<br>")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
