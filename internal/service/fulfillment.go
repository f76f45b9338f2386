package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/iliyamo/festival-registration/internal/mailer"
	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/queue"
)

// Fulfiller sends the confirmation email for a paid registration.  It
// implements queue.Handler.
type Fulfiller struct {
	store  RegistrationStore
	claims Claims
	mail   mailer.Mailer
	prices model.PriceList
}

// NewFulfiller wires the fulfillment workflow.
func NewFulfiller(store RegistrationStore, claims Claims, mail mailer.Mailer, prices model.PriceList) *Fulfiller {
	if store == nil || claims == nil || mail == nil {
		panic("nil dependency")
	}
	return &Fulfiller{store: store, claims: claims, mail: mail, prices: prices}
}

// HandleRegistrationPaid claims the registration and sends the email once.
// Later deliveries for the same registration are acknowledged without
// sending.  A failure releases the claim so another delivery can retry.
func (f *Fulfiller) HandleRegistrationPaid(ctx context.Context, ev queue.RegistrationPaidEvent) error {
	claimed, err := f.claims.Claim(ctx, ev.RegistrationID, ev.Source)
	if err != nil {
		return fmt.Errorf("claim registration %d: %w", ev.RegistrationID, err)
	}
	if !claimed {
		log.Printf("fulfillment: registration %d already fulfilled, skipping (%s)", ev.RegistrationID, ev.Source)
		return nil
	}

	if err := f.send(ctx, ev); err != nil {
		if rerr := f.claims.Release(ctx, ev.RegistrationID); rerr != nil {
			log.Printf("fulfillment: release claim %d failed: %v", ev.RegistrationID, rerr)
		}
		return err
	}
	return nil
}

func (f *Fulfiller) send(ctx context.Context, ev queue.RegistrationPaidEvent) error {
	reg, err := f.store.GetRegistration(ctx, ev.RegistrationID)
	if err != nil {
		return fmt.Errorf("load registration %d: %w", ev.RegistrationID, err)
	}
	if strings.TrimSpace(reg.Email) == "" {
		log.Printf("fulfillment: registration %d has no email, nothing to send", reg.ID)
		return nil
	}
	msg := ConfirmationMessage(reg, f.prices)
	if err := f.mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("send confirmation %d: %w", reg.ID, err)
	}
	log.Printf("fulfillment: confirmation sent for registration %d (%s)", reg.ID, ev.Source)
	return nil
}

// ConfirmationMessage renders the Italian confirmation email.
func ConfirmationMessage(reg model.Registration, prices model.PriceList) mailer.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Ciao %s,\n\n", strings.TrimSpace(reg.FirstName))
	b.WriteString("la tua iscrizione è confermata.\n\n")
	fmt.Fprintf(&b, "Codice di registrazione: %s\n", reg.Code)
	fmt.Fprintf(&b, "Selezione: %s\n", model.Describe(reg))
	if reg.ShirtSize != "" {
		fmt.Fprintf(&b, "Taglia maglietta: %s\n", reg.ShirtSize)
	}
	if amount, err := prices.TotalFor(reg); err == nil {
		fmt.Fprintf(&b, "Importo: %s\n", model.FormatAmount(amount))
	}
	b.WriteString("\nPresenta il codice al ritiro del pettorale.\n\nA presto!\n")
	return mailer.Message{
		To:      reg.Email,
		Subject: "Iscrizione confermata - " + reg.Code,
		Body:    b.String(),
	}
}
