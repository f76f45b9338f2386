package model

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
)

// ValidationErrors maps a CMS field name to a user facing message.  It is
// returned by the Validate helpers and rendered inline by the client.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns v as an error, or nil when empty.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v[field] = "campo obbligatorio"
	}
}

// ValidatePersonal checks the fields collected on the "Dati Personali"
// step: identity, residence, contact, identity document and selection.
func ValidatePersonal(r Registration) ValidationErrors {
	errs := ValidationErrors{}
	errs.required("nome", r.FirstName)
	errs.required("cognome", r.LastName)
	errs.required("luogo_nascita", r.BirthPlace)
	errs.required("residenza", r.City)
	errs.required("indirizzo", r.Street)
	errs.required("numero_civico", r.StreetNumber)
	errs.required("cap", r.PostalCode)
	errs.required("email", r.Email)
	errs.required("tipo_documento", r.DocumentType)
	errs.required("numero_documento", r.DocumentNumber)
	errs.required("comune_rilascio", r.DocumentCity)

	if !r.BirthDate.Valid() {
		errs["data_nascita"] = "data non valida"
	}
	if !r.DocumentDate.Valid() {
		errs["data_rilascio"] = "data non valida"
	}
	if _, ok := errs["email"]; !ok {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			errs["email"] = "indirizzo email non valido"
		}
	}
	if !r.RaceType.Valid() {
		errs["tipo_gara"] = "seleziona il tipo di gara"
	}
	if !r.ShirtSize.Valid() {
		errs["taglia_maglietta"] = "seleziona una taglia"
	}
	if r.MealAddOn && (r.MealCount < 1 || r.MealCount > MaxMealCount) {
		errs["conteggio_pastaparty"] = fmt.Sprintf("inserisci un numero tra 1 e %d", MaxMealCount)
	}
	if !r.MealAddOn && r.MealCount < 0 {
		errs["conteggio_pastaparty"] = "valore non valido"
	}
	if r.GuardianBirthDate != "" && !r.GuardianBirthDate.Valid() {
		errs["data_nascita_genitore"] = "data non valida"
	}
	return errs
}

// ValidateSubmission checks a registration about to be persisted: the
// personal step, waiver acceptance and the registration code.
func ValidateSubmission(r Registration, validCode func(string) bool) ValidationErrors {
	errs := ValidatePersonal(r)
	if !r.WaiverAccepted {
		errs["accettazione_liberatoria"] = "devi accettare la liberatoria"
	}
	if validCode != nil && !validCode(r.Code) {
		errs["codiceRegistrazione"] = "codice di registrazione non valido"
	}
	return errs
}
