package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

var consultationTmpl = template.Must(template.New("consultation").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #e0e0e0; border-radius: 5px;">
  <h2 style="color: #333366;">{{.Heading}}</h2>
  <p>Dear {{.Name}},</p>
  <p>{{.Lead}}</p>
  <div style="background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px;">
    <h3 style="margin-top: 0; color: #333366;">{{.DetailsTitle}}</h3>
    <p><strong>Date:</strong> {{.Date}}</p>
    <p><strong>Time:</strong> {{.Time}}</p>
    <p><strong>Service:</strong> {{.Service}}</p>
    {{- if .MeetingLink}}
    <div style="margin-top: 15px; padding: 10px; background-color: #e6f3ff; border-radius: 5px;">
      <p style="margin: 0;"><strong>{{.LinkLabel}}</strong></p>
      <a href="{{.MeetingLink}}" style="color: #0066cc; text-decoration: none; word-break: break-all;">{{.MeetingLink}}</a>
    </div>
    {{- end}}
  </div>
  {{- if .Footnote}}
  <p>{{.Footnote}}</p>
  {{- end}}
  <div style="text-align: center; margin: 25px 0;">
    <a href="{{.RescheduleURL}}" style="background-color: #4CAF50; color: white; padding: 12px 25px; text-decoration: none; border-radius: 5px; display: inline-block; font-weight: bold;">{{.ButtonLabel}}</a>
  </div>
  <p>If you need to cancel your consultation, please contact us at least 24 hours before the scheduled time.</p>
  <p>For any queries, feel free to reach out to our support team.</p>
  <p>Best regards,<br>Ineffa Team</p>
</div>`))

var internalTmpl = template.Must(template.New("internal").Parse(`<div style="font-family: Arial, sans-serif;">
  <h3>{{.Title}}</h3>
  <p><strong>Client:</strong> {{.Name}}</p>
  <p><strong>Email:</strong> {{.Email}}</p>
  <p><strong>{{.DatePrefix}}Date:</strong> {{.Date}}</p>
  <p><strong>{{.DatePrefix}}Time:</strong> {{.Time}}</p>
  <p><strong>Service:</strong> {{.Service}}</p>
</div>`))

var otpTmpl = template.Must(template.New("otp").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #e0e0e0; border-radius: 5px;">
  <h2 style="color: #333366;">Ineffa Authentication</h2>
  <p>Hello,</p>
  <p>Your One-Time Password (OTP) for login is:</p>
  <div style="background-color: #f5f5f5; padding: 10px; text-align: center; font-size: 24px; font-weight: bold; letter-spacing: 5px; margin: 20px 0;">{{.Code}}</div>
  <p>This OTP is valid for {{.Minutes}} minutes.</p>
  <p>If you didn't request this OTP, please ignore this email.</p>
  <p>Regards,<br>Ineffa Team</p>
</div>`))

type consultationView struct {
	Heading       string
	Name          string
	Lead          string
	DetailsTitle  string
	Date          string
	Time          string
	Service       string
	MeetingLink   string
	LinkLabel     string
	Footnote      string
	RescheduleURL string
	ButtonLabel   string
}

type internalView struct {
	Title      string
	Name       string
	Email      string
	DatePrefix string
	Date       string
	Time       string
	Service    string
}

type otpView struct {
	Code    string
	Minutes int
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// plainText is the text/plain alternative for a consultation email.
func plainText(v consultationView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nDear %s,\n\n%s\n\n", v.Heading, v.Name, v.Lead)
	fmt.Fprintf(&b, "Date: %s\nTime: %s\nService: %s\n", v.Date, v.Time, v.Service)
	if v.MeetingLink != "" {
		fmt.Fprintf(&b, "Meeting link: %s\n", v.MeetingLink)
	}
	fmt.Fprintf(&b, "\n%s: %s\n\nBest regards,\nIneffa Team\n", v.ButtonLabel, v.RescheduleURL)
	return b.String()
}
