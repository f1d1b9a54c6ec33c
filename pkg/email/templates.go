package email

import (
	"fmt"
	"html"
	"time"
)

// SignInAlertTemplate generates HTML for the new sign-in notification
func SignInAlertTemplate(name string, info SignInInfo) string {
	device := info.UserAgent
	if device == "" {
		device = "unknown device"
	}
	ip := info.IPAddress
	if ip == "" {
		ip = "unknown"
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>New sign-in</title>
</head>
<body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background-color: #f4f4f4;">
    <table role="presentation" style="width: 100%%; border-collapse: collapse;">
        <tr>
            <td align="center" style="padding: 40px 0;">
                <table role="presentation" style="width: 600px; border-collapse: collapse; background-color: #ffffff; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1);">
                    <!-- Header -->
                    <tr>
                        <td style="padding: 40px 30px; text-align: center; background-color: #1E3A8A; border-radius: 8px 8px 0 0;">
                            <h1 style="margin: 0; color: #ffffff; font-size: 28px;">New sign-in</h1>
                        </td>
                    </tr>
                    <!-- Content -->
                    <tr>
                        <td style="padding: 40px 30px;">
                            <p style="margin: 0 0 20px; font-size: 16px; line-height: 24px; color: #333333;">
                                Hi %s,
                            </p>
                            <p style="margin: 0 0 20px; font-size: 16px; line-height: 24px; color: #333333;">
                                Your Career Services CRM account was used to sign in.
                            </p>
                            <table role="presentation" style="margin: 0 0 20px; font-size: 14px; line-height: 22px; color: #333333;">
                                <tr><td style="padding-right: 16px; color: #666666;">When</td><td>%s</td></tr>
                                <tr><td style="padding-right: 16px; color: #666666;">IP address</td><td>%s</td></tr>
                                <tr><td style="padding-right: 16px; color: #666666;">Device</td><td>%s</td></tr>
                            </table>
                            <p style="margin: 20px 0 0; font-size: 14px; line-height: 20px; color: #666666;">
                                If this wasn't you, contact your CRM administrator right away.
                            </p>
                        </td>
                    </tr>
                    <!-- Footer -->
                    <tr>
                        <td style="padding: 30px; text-align: center; background-color: #f8f8f8; border-radius: 0 0 8px 8px;">
                            <p style="margin: 0; font-size: 12px; line-height: 18px; color: #999999;">
                                Career Services CRM
                            </p>
                        </td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>
`, html.EscapeString(name), info.At.UTC().Format(time.RFC1123), html.EscapeString(ip), html.EscapeString(device))
}
