// Package waiver builds the liability waiver ("liberatoria") a participant
// must read before consenting.  Build turns a registration snapshot into a
// layout independent Document; Render lays it out as a PDF.
package waiver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/festival-registration/internal/model"
)

// Placeholder is printed for every missing value so that no line of the
// form is ever dropped.
const Placeholder = "________________"

// Error codes returned to HTTP clients.
const (
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	CodeGenerationFailed     = "GENERATION_FAILED"
)

// ErrMissingRequiredField matches a *FieldError via errors.Is.
var ErrMissingRequiredField = errors.New("waiver: missing required field")

// FieldError names the mandatory field that was empty.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("waiver: missing required field %q", e.Field)
}

// Is lets errors.Is(err, ErrMissingRequiredField) match.
func (e *FieldError) Is(target error) bool { return target == ErrMissingRequiredField }

// Code returns the stable error code for the client.
func (e *FieldError) Code() string { return CodeMissingRequiredField }

// Field is one "label: value" line.
type Field struct {
	Label string
	Value string
}

// Block is a titled group of fields inside a section.
type Block struct {
	Heading string
	Fields  []Field
}

// Section is one of the three parts of the waiver.
type Section struct {
	Key        string // "A", "B" or "C"
	Title      string
	Fields     []Field
	Text       []string
	Blocks     []Block
	Signatures []string
}

// Document is the complete waiver ready for rendering.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return strings.TrimSpace(s)
}

// Build assembles the document for r.  Only the participant's first and
// last name are mandatory; every other missing value becomes Placeholder.
func Build(r model.Registration) (*Document, error) {
	if strings.TrimSpace(r.FirstName) == "" {
		return nil, &FieldError{Field: "nome"}
	}
	if strings.TrimSpace(r.LastName) == "" {
		return nil, &FieldError{Field: "cognome"}
	}

	address := strings.TrimSpace(r.Street + " " + r.StreetNumber)
	race := ""
	if r.RaceType.Valid() {
		race = r.RaceType.Label()
	}

	a := Section{
		Key:   "A",
		Title: "Modulo di iscrizione",
		Fields: []Field{
			{"Nome", orPlaceholder(r.FirstName)},
			{"Cognome", orPlaceholder(r.LastName)},
			{"Luogo di nascita", orPlaceholder(r.BirthPlace)},
			{"Data di nascita", r.BirthDate.Localized(Placeholder)},
			{"Residenza", orPlaceholder(r.City)},
			{"Indirizzo", orPlaceholder(address)},
			{"CAP", orPlaceholder(r.PostalCode)},
			{"Email", orPlaceholder(r.Email)},
			{"Documento", orPlaceholder(r.DocumentType)},
			{"Numero documento", orPlaceholder(r.DocumentNumber)},
			{"Rilasciato a", orPlaceholder(r.DocumentCity)},
			{"Data di rilascio", r.DocumentDate.Localized(Placeholder)},
			{"Percorso", orPlaceholder(race)},
			{"Taglia maglietta", orPlaceholder(string(r.ShirtSize))},
		},
	}

	b := Section{
		Key:   "B",
		Title: "Dichiarazione di esonero di responsabilità",
		Text:  exonerationText,
		Blocks: []Block{{
			Heading: "Dati del genitore o tutore (per partecipanti minorenni)",
			Fields: []Field{
				{"Nome", orPlaceholder(r.GuardianFirstName)},
				{"Cognome", orPlaceholder(r.GuardianLastName)},
				{"Luogo di nascita", orPlaceholder(r.GuardianBirthPlace)},
				{"Data di nascita", r.GuardianBirthDate.Localized(Placeholder)},
				{"Residenza", orPlaceholder(r.GuardianResidence)},
			},
		}},
	}

	c := Section{
		Key:        "C",
		Title:      "Liberatoria finale e consenso al trattamento dei dati",
		Text:       releaseText,
		Signatures: []string{"Firma del partecipante", "Firma del genitore o tutore (se minorenne)"},
	}

	return &Document{
		Title:    "Liberatoria di partecipazione",
		Subtitle: r.FullName(),
		Sections: []Section{a, b, c},
	}, nil
}

var exonerationText = []string{
	"Il sottoscritto dichiara di essere in buone condizioni di salute e di essere idoneo " +
		"all'attività sportiva non agonistica prevista dalla manifestazione.",
	"Dichiara di conoscere il percorso e di accettare i rischi connessi alla partecipazione, " +
		"di rispettare il codice della strada e le indicazioni degli organizzatori.",
	"Esonera l'organizzazione da ogni responsabilità civile e penale per danni a persone o cose " +
		"derivanti dalla propria partecipazione, prima, durante e dopo l'evento.",
}

var releaseText = []string{
	"Con la firma della presente il partecipante conferma di aver letto integralmente le sezioni " +
		"precedenti e solleva definitivamente l'organizzazione da ogni responsabilità.",
	"Ai sensi del Regolamento UE 2016/679 (GDPR) autorizza il trattamento dei dati personali " +
		"forniti ai soli fini della gestione dell'iscrizione e della manifestazione, nonché " +
		"l'utilizzo di fotografie e riprese effettuate durante l'evento.",
}
