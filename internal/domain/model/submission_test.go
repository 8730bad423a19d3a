package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/talentsync/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalizeEmail(t *testing.T) {
	Convey("Given emails that differ only in case and padding", t, func() {
		So(model.NormalizeEmail("  Jane.Doe@Example.COM "), ShouldEqual, "jane.doe@example.com")
		So(model.NormalizeEmail("jane.doe@example.com"), ShouldEqual, model.NormalizeEmail("JANE.DOE@EXAMPLE.COM"))
		So(model.NormalizeEmail(""), ShouldEqual, "")
	})

	Convey("Given emails with non-ASCII letters", t, func() {
		Convey("Then distinct addresses keep distinct keys", func() {
			So(model.NormalizeEmail("straße@example.com"), ShouldNotEqual, model.NormalizeEmail("strasse@example.com"))
			So(model.NormalizeEmail("élise@example.com"), ShouldNotEqual, model.NormalizeEmail("Élise@example.com"))
		})

		Convey("Then only the ASCII part is lowered", func() {
			So(model.NormalizeEmail("ÉLISE@Example.com"), ShouldEqual, "Élise@example.com")
		})
	})
}

func TestToTalentApplication(t *testing.T) {
	Convey("Given a pending submission", t, func() {
		age := 24
		now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		sub := model.Submission{
			ID:                "sub-1",
			Email:             " ana@example.com ",
			FullName:          "Ana Luís",
			PhoneNumber:       "+351 900 000 000",
			Age:               &age,
			Country:           "PT",
			Category:          "model",
			Gender:            "female",
			Instagram:         "@ana",
			TikTok:            "",
			Telegram:          "  ",
			PortfolioURL:      "https://ana.example.com",
			Measurements:      json.RawMessage(`{"height":175}`),
			TalentDescription: "runway and print",
			SyncStatus:        model.SyncPending,
		}

		app := sub.ToTalentApplication(now)

		Convey("Then fields are mapped onto the directory entry", func() {
			So(app.ID, ShouldNotBeEmpty)
			So(app.Email, ShouldEqual, "ana@example.com")
			So(app.FullName, ShouldEqual, "Ana Luís")
			So(app.Phone, ShouldEqual, sub.PhoneNumber)
			So(*app.Age, ShouldEqual, 24)
			So(app.Country, ShouldEqual, "PT")
			So(app.CategoryType, ShouldEqual, "model")
			So(app.Gender, ShouldEqual, "female")
			So(app.PortfolioURL, ShouldEqual, sub.PortfolioURL)
			So(app.Notes, ShouldEqual, "runway and print")
			So(string(app.Measurements), ShouldEqual, `{"height":175}`)
			So(app.Status, ShouldEqual, model.ApplicationPending)
			So(app.CreatedAt, ShouldEqual, now)
		})

		Convey("Then blank social handles are left out", func() {
			So(app.SocialMedia, ShouldResemble, map[string]string{"instagram": "@ana"})
		})

		Convey("Then the entry does not alias the submission", func() {
			*app.Age = 99
			app.Measurements[0] = '['
			So(*sub.Age, ShouldEqual, 24)
			So(string(sub.Measurements), ShouldEqual, `{"height":175}`)
		})
	})
}

func TestApplicationFilterNormalize(t *testing.T) {
	Convey("Given paging values out of range", t, func() {
		f := model.ApplicationFilter{Limit: 10_000, Offset: -3}.Normalize()
		So(f.Limit, ShouldEqual, model.MaxListLimit)
		So(f.Offset, ShouldEqual, 0)
		So(model.ApplicationFilter{}.Normalize().Limit, ShouldEqual, model.DefaultListLimit)
	})
}

func TestStatusValidity(t *testing.T) {
	Convey("Given persisted states", t, func() {
		So(model.SyncPending.Valid(), ShouldBeTrue)
		So(model.SyncStatus("error").Valid(), ShouldBeFalse)
		So(model.ApplicationOnHold.Valid(), ShouldBeTrue)
		So(model.ApplicationStatus("archived").Valid(), ShouldBeFalse)
	})
}
