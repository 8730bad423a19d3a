package loadgen

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/talentsync/internal/domain/model"
)

var (
	firstNames = []string{"Amara", "Bruno", "Chiara", "Dmitri", "Élodie", "Farid", "Grace", "Hiro", "Ines", "José"}
	lastNames  = []string{"Okafor", "Silva", "Rossi", "Ivanov", "Lefèvre", "Haddad", "Kim", "Tanaka", "García", "Müller"}
	countries  = []string{"NG", "BR", "IT", "UA", "FR", "AE", "KR", "JP", "ES", "DE"}
	categories = []string{"model", "actor", "dancer", "singer", "influencer"}
	genders    = []string{"female", "male", "non_binary"}
)

// Generate builds n pending submissions. Roughly dupRatio of them reuse an
// earlier email with different casing or padding so the reconciler's
// deduplication gets exercised. The result is deterministic for a seed.
func Generate(n int, dupRatio float64, seed int64) []model.Submission {
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Submission, 0, n)
	emails := make([]string, 0, n)

	for i := 0; i < n; i++ {
		email := fmt.Sprintf("talent-%d-%06d@example.com", seed%1000, i)
		if len(emails) > 0 && rng.Float64() < dupRatio {
			email = variant(emails[rng.Intn(len(emails))], rng)
		} else {
			emails = append(emails, email)
		}

		first := firstNames[rng.Intn(len(firstNames))]
		last := lastNames[rng.Intn(len(lastNames))]
		age := 18 + rng.Intn(30)
		sub := model.Submission{
			ID:                uuid.NewString(),
			Email:             email,
			FullName:          first + " " + last,
			PhoneNumber:       fmt.Sprintf("+1555%07d", rng.Intn(10_000_000)),
			Age:               &age,
			Country:           countries[rng.Intn(len(countries))],
			Category:          categories[rng.Intn(len(categories))],
			Gender:            genders[rng.Intn(len(genders))],
			TalentDescription: fmt.Sprintf("%s %s, generated profile %d", first, last, i),
			SyncStatus:        model.SyncPending,
			CreatedAt:         base.Add(time.Duration(i) * time.Second),
		}
		if rng.Intn(2) == 0 {
			sub.Instagram = "@" + strings.ToLower(first) + fmt.Sprint(i)
		}
		if rng.Intn(3) == 0 {
			sub.TikTok = "@" + strings.ToLower(last) + fmt.Sprint(i)
		}
		if rng.Intn(4) == 0 {
			sub.Measurements, _ = json.Marshal(map[string]int{
				"height": 155 + rng.Intn(40),
				"bust":   80 + rng.Intn(20),
				"waist":  60 + rng.Intn(20),
				"hips":   85 + rng.Intn(20),
			})
		}
		out = append(out, sub)
	}
	return out
}

// UniqueEmails counts distinct deduplication keys in subs.
func UniqueEmails(subs []model.Submission) int {
	seen := make(map[string]struct{}, len(subs))
	for _, s := range subs {
		seen[model.NormalizeEmail(s.Email)] = struct{}{}
	}
	return len(seen)
}

func variant(email string, rng *rand.Rand) string {
	switch rng.Intn(3) {
	case 0:
		return strings.ToUpper(email)
	case 1:
		return " " + email + " "
	default:
		local, domain, _ := strings.Cut(email, "@")
		return strings.ToUpper(local[:1]) + local[1:] + "@" + strings.ToUpper(domain)
	}
}
