package breeds

import (
	"strings"

	"github.com/franckalain/livestockweight/internal/models"
)

var table = []models.Breed{
	{ID: "angus", Label: "Angus", Species: "cattle"},
	{ID: "hereford", Label: "Hereford", Species: "cattle"},
	{ID: "holstein", Label: "Holstein Friesian", Species: "cattle"},
	{ID: "brahman", Label: "Brahman", Species: "cattle"},
	{ID: "charolais", Label: "Charolais", Species: "cattle"},
	{ID: "limousin", Label: "Limousin", Species: "cattle"},
	{ID: "simmental", Label: "Simmental", Species: "cattle"},
	{ID: "jersey", Label: "Jersey", Species: "cattle"},
	{ID: "nelore", Label: "Nelore", Species: "cattle"},
	{ID: "crossbreed", Label: "Crossbreed", Species: "cattle"},
}

var byID = func() map[string]models.Breed {
	m := make(map[string]models.Breed, len(table))
	for _, b := range table {
		m[b.ID] = b
	}
	return m
}()

// All returns the breed table in display order
func All() []models.Breed {
	out := make([]models.Breed, len(table))
	copy(out, table)
	return out
}

// Lookup finds a breed by id, case-insensitively
func Lookup(id string) (models.Breed, bool) {
	b, ok := byID[strings.ToLower(strings.TrimSpace(id))]
	return b, ok
}
