package store

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/michaelmargolis/6DoF-Coaster/ride"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSettings(t *testing.T) {
	Convey("Given an empty settings database", t, func() {
		dir, err := ioutil.TempDir("", "store")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		db, err := Open(filepath.Join(dir, "test.db"))
		So(err, ShouldBeNil)
		defer db.Close()

		Convey("loading returns the defaults", func() {
			s, err := Load(db)
			So(err, ShouldBeNil)
			So(s, ShouldResemble, Defaults())
			So(s.Intensity, ShouldEqual, 10)
		})

		Convey("saved settings are loaded back", func() {
			s := Defaults()
			s.Intensity = 4
			s.ParkPath = "parks/demo.nl2park"
			So(Save(db, &s), ShouldBeNil)
			So(s.Updated.IsZero(), ShouldBeFalse)

			got, err := Load(db)
			So(err, ShouldBeNil)
			So(got.Intensity, ShouldEqual, 4)
			So(got.ParkPath, ShouldEqual, "parks/demo.nl2park")
		})
	})

	Convey("Applying commands", t, func() {
		s := Defaults()

		Convey("intensity is recorded once", func() {
			So(s.Apply(ride.Command{Kind: ride.CmdIntensity, Value: 6}), ShouldBeTrue)
			So(s.Apply(ride.Command{Kind: ride.CmdIntensity, Value: 6}), ShouldBeFalse)
			So(s.Intensity, ShouldEqual, 6)
		})

		Convey("a park load records path and seat", func() {
			cmd, _ := ride.LoadPark("parks/a.nl2park", 2, false)
			So(s.Apply(cmd), ShouldBeTrue)
			So(s.Seat, ShouldEqual, 2)
			So(s.ParkPath, ShouldEqual, "parks/a.nl2park")
		})

		Convey("other commands are ignored", func() {
			So(s.Apply(ride.Command{Kind: ride.CmdDispatch}), ShouldBeFalse)
		})
	})

	Convey("Tuning the decoder", t, func() {
		s := Defaults()

		Convey("unset values keep the stored ones", func() {
			So(s.Tune(0, 0), ShouldBeFalse)
			So(s.Gain, ShouldEqual, 0.6)
			So(s.LiftHeight, ShouldEqual, 32)
		})

		Convey("set values replace the stored ones once", func() {
			So(s.Tune(0.8, 0), ShouldBeTrue)
			So(s.Gain, ShouldEqual, 0.8)
			So(s.LiftHeight, ShouldEqual, 32)
			So(s.Tune(0.8, 45), ShouldBeTrue)
			So(s.LiftHeight, ShouldEqual, 45)
			So(s.Tune(0.8, 45), ShouldBeFalse)
		})
	})
}
