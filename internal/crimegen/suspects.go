package crimegen

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/EmpoweredVote/crime-analytics/internal/models"
)

const (
	minSuspectAge = 18
	maxSuspectAge = 70
)

// generateSuspects draws n people aged 18 to 70 at now, each with one or two
// distinct tags.
func generateSuspects(n int, batch uuid.UUID, seed int64, now time.Time) ([]models.Suspect, error) {
	faker := gofakeit.New(seed)
	now = now.UTC()
	oldest := now.AddDate(-maxSuspectAge, 0, 0)
	youngest := now.AddDate(-minSuspectAge, 0, 0)

	out := make([]models.Suspect, 0, n)
	for i := 0; i < n; i++ {
		dob := faker.DateRange(oldest, youngest).UTC()

		tags := append([]string(nil), models.SuspectTags...)
		faker.ShuffleStrings(tags)
		tags = tags[:faker.Number(1, 2)]
		raw, err := json.Marshal(map[string][]string{"tags": tags})
		if err != nil {
			return nil, fmt.Errorf("encode suspect tags: %w", err)
		}

		out = append(out, models.Suspect{
			ID:          SuspectID(batch, i),
			Name:        faker.Name(),
			DateOfBirth: time.Date(dob.Year(), dob.Month(), dob.Day(), 0, 0, 0, 0, time.UTC),
			Tags:        raw,
			BatchID:     batch,
		})
	}
	return out, nil
}
