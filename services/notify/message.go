// Package notify sends customer emails.
package notify

import (
	"bytes"
	htmltemplate "html/template"
	"net/mail"
	texttemplate "text/template"

	"github.com/upb/imu-filing/models"
)

// Message is one email
type Message struct {
	To          []mail.Address
	Subject     string
	TextContent string
	HTMLContent string
}

// HasRecipients reports whether the message has anyone to go to
func (m *Message) HasRecipients() bool {
	return len(m.To) > 0
}

type confirmationData struct {
	Name         string
	SubmissionID string
	Total        string
	Currency     string
	Owners       int
	Properties   int
	Retrieval    bool
}

var (
	confirmationText = texttemplate.Must(texttemplate.New("confirmation.txt").Parse(
		`Dear {{.Name}},

we have received your payment of {{.Total}} {{.Currency}} for the IMU filing {{.SubmissionID}}.

Owners: {{.Owners}}
Properties: {{.Properties}}
{{- if .Retrieval}}
Document retrieval: requested{{end}}

Our team will now prepare your filing and contact you if anything is missing.
`))

	confirmationHTML = htmltemplate.Must(htmltemplate.New("confirmation.html").Parse(
		`<p>Dear {{.Name}},</p>
<p>we have received your payment of <strong>{{.Total}} {{.Currency}}</strong> for the IMU filing <code>{{.SubmissionID}}</code>.</p>
<ul>
<li>Owners: {{.Owners}}</li>
<li>Properties: {{.Properties}}</li>
{{- if .Retrieval}}
<li>Document retrieval: requested</li>{{end}}
</ul>
<p>Our team will now prepare your filing and contact you if anything is missing.</p>
`))
)

// PaymentConfirmation builds the email sent to the contact once a submission is paid
func PaymentConfirmation(sub *models.Submission) (*Message, error) {
	data := confirmationData{
		Name:         sub.Contact.Name,
		SubmissionID: sub.ID.String(),
		Total:        sub.Pricing.Total.StringFixed(2),
		Currency:     sub.Pricing.Currency,
		Owners:       len(sub.Owners),
		Properties:   len(sub.Properties),
		Retrieval:    sub.HasDocumentRetrieval,
	}
	if data.Owners == 0 {
		data.Owners = sub.Pricing.OwnersCount
	}
	if data.Properties == 0 {
		data.Properties = sub.Pricing.PropertiesCount
	}

	var text, html bytes.Buffer
	if err := confirmationText.Execute(&text, data); err != nil {
		return nil, err
	}
	if err := confirmationHTML.Execute(&html, data); err != nil {
		return nil, err
	}

	return &Message{
		To:          []mail.Address{{Name: sub.Contact.Name, Address: sub.Contact.Email}},
		Subject:     "Payment received",
		TextContent: text.String(),
		HTMLContent: html.String(),
	}, nil
}
