// Package roster holds the participant snapshot a batch run works from.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/mail"
	"os"
	"strings"
)

var (
	ErrNameRequired    = errors.New("name is required")
	ErrEmailRequired   = errors.New("email is required")
	ErrEmailInvalid    = errors.New("email is invalid")
	ErrCompanyRequired = errors.New("company_name is required")
)

// Participant is one fill target.
type Participant struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	CompanyName string `json:"company_name"`
}

// Validate checks the fields every fill needs.
func (p Participant) Validate() error {
	if err := ValidateIdentity(p.Name, p.Email); err != nil {
		return err
	}
	if strings.TrimSpace(p.CompanyName) == "" {
		return ErrCompanyRequired
	}
	return nil
}

// ValidateIdentity checks a roster name/email pair.
func ValidateIdentity(name, email string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrEmailInvalid
	}
	return nil
}

// WithCompany returns a copy of ps with CompanyName set where it is empty.
func WithCompany(ps []Participant, company string) []Participant {
	out := make([]Participant, len(ps))
	for i, p := range ps {
		if strings.TrimSpace(p.CompanyName) == "" {
			p.CompanyName = company
		}
		out[i] = p
	}
	return out
}

// Shuffle returns a uniformly shuffled copy of ps.
func Shuffle(ps []Participant) []Participant {
	out := append([]Participant(nil), ps...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// LoadCSV reads a roster file with a name,email header. Rows missing either
// field are skipped.
func LoadCSV(path string) ([]Participant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses roster rows from r.
func ReadCSV(r io.Reader) ([]Participant, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read roster header: %w", err)
	}
	nameCol, emailCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "name":
			nameCol = i
		case "email":
			emailCol = i
		}
	}
	if nameCol < 0 || emailCol < 0 {
		return nil, fmt.Errorf("roster header must contain name and email, got %v", header)
	}

	var out []Participant
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster row: %w", err)
		}
		if nameCol >= len(row) || emailCol >= len(row) {
			continue
		}
		p := Participant{Name: strings.TrimSpace(row[nameCol]), Email: strings.TrimSpace(row[emailCol])}
		if p.Name == "" || p.Email == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
