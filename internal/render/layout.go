package render

import (
	"fmt"
	"html"
	"strings"
)

const (
	brandName       = "Courtside"
	colorPrimary    = "#1d4ed8"
	colorAccent     = "#f97316"
	colorText       = "#0f172a"
	colorMuted      = "#64748b"
	colorBorder     = "#e2e8f0"
	colorSurface    = "#f8fafc"
	headerGradient  = "linear-gradient(135deg, " + colorPrimary + " 0%, " + colorAccent + " 100%)"
	fontStack       = "-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif"
	containerWidth  = 600
	avatarSizePx    = 48
	smallAvatarSize = 36
)

// wrapLayout places the rendered blocks inside the branded shell: gradient
// header, white content card and a footer with the notification settings
// link.
func wrapLayout(subject, body string, vars Vars) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	fmt.Fprintf(&b, `<title>%s</title></head>`, html.EscapeString(subject))
	fmt.Fprintf(&b, `<body style="margin:0;padding:0;background:%s;font-family:%s;color:%s;">`, colorSurface, fontStack, colorText)
	fmt.Fprintf(&b, `<table role="presentation" width="100%%" cellpadding="0" cellspacing="0" style="background:%s;"><tr><td align="center" style="padding:24px 12px;">`, colorSurface)
	fmt.Fprintf(&b, `<table role="presentation" width="%d" cellpadding="0" cellspacing="0" style="max-width:%dpx;width:100%%;">`, containerWidth, containerWidth)

	fmt.Fprintf(&b, `<tr><td style="background:%s;background-image:%s;border-radius:16px 16px 0 0;padding:28px 32px;">`, colorPrimary, headerGradient)
	fmt.Fprintf(&b, `<a href="%s" style="color:#ffffff;font-size:22px;font-weight:800;letter-spacing:0.5px;text-decoration:none;">%s</a>`,
		html.EscapeString(vars[VarSiteURL]), brandName)
	b.WriteString(`</td></tr>`)

	fmt.Fprintf(&b, `<tr><td style="background:#ffffff;border:1px solid %s;border-top:none;border-radius:0 0 16px 16px;padding:32px;font-size:16px;line-height:24px;">`, colorBorder)
	b.WriteString(body)
	b.WriteString(`</td></tr>`)

	fmt.Fprintf(&b, `<tr><td style="padding:20px 32px;font-size:12px;line-height:18px;color:%s;text-align:center;">`, colorMuted)
	fmt.Fprintf(&b, `&copy; %s %s &middot; `, html.EscapeString(vars[VarCurrentYear]), brandName)
	fmt.Fprintf(&b, `<a href="%s" style="color:%s;">Manage email notifications</a>`, html.EscapeString(vars[VarUnsubscribeURL]), colorMuted)
	b.WriteString(`</td></tr>`)

	b.WriteString(`</table></td></tr></table></body></html>`)
	return b.String()
}
