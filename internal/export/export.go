// Package export flattens registrations into tabular rows for the admin
// CSV download and the Sheets sync.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/iliyamo/festival-registration/internal/model"
)

// Header is the column order of Row.
var Header = []string{
	"id", "codiceRegistrazione", "nome", "cognome", "data_nascita", "email",
	"residenza", "tipo_gara", "taglia_maglietta", "pasta_party", "conteggio_pastaparty",
	"stato_pagamento", "id_pagamento", "genitore", "firma_timestamp", "firma_ip",
}

// Row returns the cells for r in Header order.
func Row(r model.Registration) []string {
	meal := "no"
	if r.MealAddOn {
		meal = "si"
	}
	guardian := ""
	if r.HasGuardian() {
		guardian = r.GuardianFirstName + " " + r.GuardianLastName
	}
	signedAt, ip := "", ""
	if r.Consent != nil {
		signedAt = r.Consent.Timestamp.UTC().Format("2006-01-02T15:04:05Z")
		ip = r.Consent.IP
	}
	return []string{
		strconv.FormatUint(r.ID, 10), r.Code, r.FirstName, r.LastName,
		r.BirthDate.Localized(""), r.Email, r.City, string(r.RaceType), string(r.ShirtSize),
		meal, strconv.Itoa(r.MealCount), string(r.PaymentStatus), r.PaymentRef,
		guardian, signedAt, ip,
	}
}

// Rows maps Row over regs.
func Rows(regs []model.Registration) [][]string {
	out := make([][]string, 0, len(regs))
	for _, r := range regs {
		out = append(out, Row(r))
	}
	return out
}

// WriteCSV writes Header and one line per registration.
func WriteCSV(w io.Writer, regs []model.Registration) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	if err := cw.WriteAll(Rows(regs)); err != nil {
		return err
	}
	return cw.Error()
}
