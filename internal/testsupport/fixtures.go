package testsupport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/talentsync/internal/domain/model"
)

// Epoch is a fixed instant for deterministic fixtures.
var Epoch = time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

// Submission returns a complete pending submission for email. Successive
// calls with increasing n sort in creation order.
func Submission(n int, email string) model.Submission {
	age := 20 + n%15
	return model.Submission{
		Email:             email,
		FullName:          fmt.Sprintf("Talent %d", n),
		PhoneNumber:       fmt.Sprintf("+1 555 01%02d", n%100),
		Age:               &age,
		Country:           "US",
		Category:          "model",
		Gender:            "female",
		Instagram:         fmt.Sprintf("@talent%d", n),
		PortfolioURL:      fmt.Sprintf("https://portfolio.example.com/%d", n),
		Measurements:      json.RawMessage(`{"height":172,"bust":84}`),
		TalentDescription: "fixture submission",
		SyncStatus:        model.SyncPending,
		CreatedAt:         Epoch.Add(time.Duration(n) * time.Minute),
	}
}
