package mail

import (
	"fmt"

	"github.com/DanielKrause/ShopWerk/app/models"
)

// BuildCheckoutConfirmation renders the checkout email-confirmation mail.
func BuildCheckoutConfirmation(link string) (subject, body string) {
	subject = "Bitte bestätige deine E-Mail-Adresse"
	body = fmt.Sprintf(`<p>Hallo,</p>
<p>bitte bestätige deine E-Mail-Adresse, um mit deiner Bestellung fortzufahren:</p>
<p><a href="%s">E-Mail bestätigen</a></p>
<p>Der Link ist eine Stunde gültig. Falls du keine Bestellung gestartet hast, kannst du diese Mail ignorieren.</p>`, link)
	return subject, body
}

// BuildOrderReceipt renders the receipt mail for an order.
func BuildOrderReceipt(order *models.Order, items []models.OrderItem, resultLink string) (subject, body string) {
	subject = fmt.Sprintf("Deine Bestellung %s", order.OrderNumber)

	rows := ""
	for _, item := range items {
		rows += fmt.Sprintf("<tr><td>%s</td><td>%d</td><td>%s</td></tr>",
			item.Name, item.Quantity, FormatCents(item.SubtotalCents(), order.Currency))
	}

	body = fmt.Sprintf(`<p>Hallo,</p>
<p>vielen Dank für deine Bestellung <strong>%s</strong>.</p>
<table border="0" cellpadding="4">
<tr><th align="left">Artikel</th><th align="left">Menge</th><th align="left">Summe</th></tr>
%s
<tr><td colspan="2"><strong>Gesamt</strong></td><td><strong>%s</strong></td></tr>
</table>
<p>Den aktuellen Zahlungsstatus findest du hier: <a href="%s">Bestellstatus ansehen</a></p>`,
		order.OrderNumber, rows, FormatCents(order.TotalCents, order.Currency), resultLink)
	return subject, body
}

// BuildAccountActivation renders the signup confirmation mail.
func BuildAccountActivation(link string) (subject, body string) {
	subject = "Aktiviere dein Konto"
	body = fmt.Sprintf(`<p>Willkommen!</p>
<p>Klicke auf den folgenden Link, um dein Konto zu aktivieren:</p>
<p><a href="%s">Konto aktivieren</a></p>`, link)
	return subject, body
}

// BuildEmailChangeConfirmation renders the account email-change mail.
func BuildEmailChangeConfirmation(link string) (subject, body string) {
	subject = "Bestätige deine neue E-Mail-Adresse"
	body = fmt.Sprintf(`<p>Hallo,</p>
<p>bitte bestätige deine neue E-Mail-Adresse:</p>
<p><a href="%s">Neue Adresse bestätigen</a></p>`, link)
	return subject, body
}

// FormatCents renders a minor-unit amount for mails and views.
func FormatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	symbol := currency
	switch currency {
	case "eur":
		symbol = "€"
	case "usd":
		symbol = "$"
	}
	return fmt.Sprintf("%s%d,%02d %s", sign, cents/100, cents%100, symbol)
}
