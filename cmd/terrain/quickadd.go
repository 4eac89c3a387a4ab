package main

import (
	"strings"
	"unicode"

	"github.com/dori/terrain/internal/db"
	"github.com/dori/terrain/internal/model"
)

// parseQuickAdd reads "12 Rue des Lilas, Nantes @tech cp:44000".
// @name assigns a technician and cp: sets the postal code; the rest is
// the address, with the city after the last comma.
func parseQuickAdd(text string) db.NewIntervention {
	var in db.NewIntervention
	var addrParts []string

	for _, word := range strings.Fields(text) {
		switch {
		// Technician (@tech-1)
		case strings.HasPrefix(word, "@") && len(word) > 1:
			in.Assigned = strings.TrimPrefix(word, "@")

		// Postal code (cp:44000)
		case strings.HasPrefix(strings.ToLower(word), "cp:"):
			in.Address.PostalCode = word[len("cp:"):]

		default:
			addrParts = append(addrParts, word)
		}
	}

	in.Address = parseAddress(strings.Join(addrParts, " "), in.Address.PostalCode)
	return in
}

func parseAddress(s, postalCode string) model.Address {
	addr := model.Address{PostalCode: postalCode}

	street := s
	if i := strings.LastIndexByte(s, ','); i >= 0 {
		street = s[:i]
		addr.City = strings.TrimSpace(s[i+1:])
	}
	street = strings.TrimSpace(street)

	// A leading house number such as 12 or 12bis
	if first, rest, ok := strings.Cut(street, " "); ok && first != "" && unicode.IsDigit(rune(first[0])) {
		addr.Number = first
		street = strings.TrimSpace(rest)
	}
	addr.Street = street
	return addr
}
