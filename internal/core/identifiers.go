package core

import (
	"fmt"
	"herdbook/pkg/domain"
	"strings"
	"time"
	"unicode"
)

var registrationPrefixes = map[Role]string{
	domain.RoleFarmer:      "FRM",
	domain.RoleButchery:    "BUT",
	domain.RoleAuthority:   "AUT",
	domain.RoleMarketAgent: "MKT",
}

// registrationNumber numbers users per role: FRM-000001, BUT-000001 and so on.
func registrationNumber(role Role, view RuleView) string {
	prefix := registrationPrefixes[role]
	taken := make(map[string]struct{})
	count := 0
	for _, u := range view.ListUsers() {
		taken[u.RegistrationNumber] = struct{}{}
		if u.Role == role {
			count++
		}
	}
	for seq := count + 1; ; seq++ {
		candidate := fmt.Sprintf("%s-%06d", prefix, seq)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// speciesPrefix returns the first three letters of the species, upper-cased.
func speciesPrefix(species string) string {
	var b strings.Builder
	for _, r := range species {
		if !unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if b.Len() == 3 {
			break
		}
	}
	if b.Len() == 0 {
		return "ANM"
	}
	return b.String()
}

// serialNumber generates COW-2024-00001 style serials, skipping any already taken.
func serialNumber(species string, at time.Time, view RuleView) string {
	prefix := fmt.Sprintf("%s-%d", speciesPrefix(species), at.Year())
	for seq := len(view.ListAnimals()) + 1; ; seq++ {
		candidate := fmt.Sprintf("%s-%05d", prefix, seq)
		if _, exists := view.FindAnimalBySerial(candidate); !exists {
			return candidate
		}
	}
}
