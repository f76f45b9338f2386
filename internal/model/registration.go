package model

import (
	"strings"
	"time"
)

// RaceType identifies one of the two festival categories.  Each category
// has a fixed base price held in the PriceList.
type RaceType string

const (
	RaceCycling RaceType = "ciclistica" // bike route
	RaceRunning RaceType = "running"    // running route
)

// Valid reports whether r is one of the known categories.
func (r RaceType) Valid() bool {
	return r == RaceCycling || r == RaceRunning
}

// Label returns the human readable category name used in payment
// descriptions and in the waiver.
func (r RaceType) Label() string {
	switch r {
	case RaceCycling:
		return "Ciclistica"
	case RaceRunning:
		return "Running"
	}
	return string(r)
}

// ShirtSize is the participant's t-shirt size.
type ShirtSize string

// ShirtSizes lists every accepted size in display order.
var ShirtSizes = []ShirtSize{"XS", "S", "M", "L", "XL", "XXL"}

// Valid reports whether s is one of ShirtSizes.
func (s ShirtSize) Valid() bool {
	for _, v := range ShirtSizes {
		if v == s {
			return true
		}
	}
	return false
}

// PaymentStatus is the payment state stored on the CMS record.  The only
// legal transition is PaymentPending -> PaymentCompleted.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "in_attesa"
	PaymentCompleted PaymentStatus = "completato"
)

// UnknownIP is recorded in the consent log when the client address could
// not be determined.
const UnknownIP = "unknown"

// ConsentLog captures the moment the participant accepted the waiver.
//
// Fields:
//
//	Timestamp – when the acceptance was submitted (UTC).
//	IP        – originating public address, or UnknownIP.
//	UserAgent – browser user-agent string.
type ConsentLog struct {
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
}

// Guardian holds the optional parent/guardian details for minors.  It is
// embedded in Registration so that its fields are flattened into the CMS
// payload.
type Guardian struct {
	GuardianFirstName  string `json:"nome_genitore,omitempty"`
	GuardianLastName   string `json:"cognome_genitore,omitempty"`
	GuardianBirthPlace string `json:"luogo_nascita_genitore,omitempty"`
	GuardianBirthDate  Date   `json:"data_nascita_genitore,omitempty"`
	GuardianResidence  string `json:"residenza_genitore,omitempty"`
}

// HasGuardian reports whether any guardian field is filled.
func (g Guardian) HasGuardian() bool {
	return strings.TrimSpace(g.GuardianFirstName+g.GuardianLastName+g.GuardianBirthPlace+
		string(g.GuardianBirthDate)+g.GuardianResidence) != ""
}

// Registration is the central entity: everything the participant enters
// in the wizard plus the server assigned identifier and payment state.
// The JSON names are the attribute names of the CMS collection.
type Registration struct {
	ID   uint64 `json:"id,omitempty"`        // assigned by the CMS on create
	Code string `json:"codiceRegistrazione"` // client generated, immutable

	FirstName  string `json:"nome"`
	LastName   string `json:"cognome"`
	BirthPlace string `json:"luogo_nascita"`
	BirthDate  Date   `json:"data_nascita"`

	City         string `json:"residenza"`
	Street       string `json:"indirizzo"`
	StreetNumber string `json:"numero_civico"`
	PostalCode   string `json:"cap"`
	Email        string `json:"email"`

	DocumentType   string `json:"tipo_documento"`
	DocumentNumber string `json:"numero_documento"`
	DocumentCity   string `json:"comune_rilascio"`
	DocumentDate   Date   `json:"data_rilascio"`

	Guardian

	RaceType  RaceType  `json:"tipo_gara"`
	ShirtSize ShirtSize `json:"taglia_maglietta"`
	MealAddOn bool      `json:"pasta_party"`
	MealCount int       `json:"conteggio_pastaparty"`

	WaiverAccepted bool        `json:"accettazione_liberatoria"`
	Consent        *ConsentLog `json:"log_firma,omitempty"`

	PaymentStatus PaymentStatus `json:"stato_pagamento,omitempty"`
	PaymentRef    string        `json:"id_pagamento,omitempty"`
	WaiverFileID  *uint64       `json:"liberatoria,omitempty"`
}

// Billable reports whether the selection fields needed for pricing are set.
func (r Registration) Billable() bool {
	return r.RaceType.Valid() && r.ShirtSize.Valid()
}

// FullName returns "Nome Cognome" trimmed.
func (r Registration) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// NormalizeMeal clamps the meal headcount to the add-on state: zero when
// the add-on is disabled, at least one when it is enabled.  Values above
// MaxMealCount are left untouched so that validation can reject them.
func (r *Registration) NormalizeMeal() {
	if !r.MealAddOn {
		r.MealCount = 0
		return
	}
	if r.MealCount < 1 {
		r.MealCount = 1
	}
}

// Trim removes surrounding whitespace from every free-text field.
func (r *Registration) Trim() {
	for _, p := range []*string{
		&r.FirstName, &r.LastName, &r.BirthPlace, &r.City, &r.Street, &r.StreetNumber,
		&r.PostalCode, &r.Email, &r.DocumentType, &r.DocumentNumber, &r.DocumentCity,
		&r.GuardianFirstName, &r.GuardianLastName, &r.GuardianBirthPlace, &r.GuardianResidence,
	} {
		*p = strings.TrimSpace(*p)
	}
	r.Email = strings.ToLower(r.Email)
	r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
}
