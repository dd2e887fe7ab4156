package nl2

import (
	"context"
	. "github.com/smartystreets/goconvey/convey"
	"testing"
)

func TestPrepareForDispatch(t *testing.T) {
	Convey("Given a train waiting in a manual station", t, func() {
		host, m := newTestMessenger()
		defer m.Close()
		ctx := context.Background()

		host.set(func(h *fakeHost) {
			h.station = ManualMode | TrainInStation | CurrentTrainInStation |
				GatesCanClose | HarnessCanClose | FlyerCarCanLock | PlatformCanLower
		})

		Convey("Each call performs one action in safety order", func() {
			So(m.PrepareForDispatch(ctx), ShouldBeFalse)
			So(host.commands(), ShouldResemble, []MsgType{MsgSetGates})

			So(m.PrepareForDispatch(ctx), ShouldBeFalse)
			So(m.PrepareForDispatch(ctx), ShouldBeFalse)
			So(m.PrepareForDispatch(ctx), ShouldBeFalse)
			So(host.commands(), ShouldResemble, []MsgType{MsgSetGates, MsgSetHarness, MsgSetFlyerCar, MsgSetPlatform})

			So(m.PrepareForDispatch(ctx), ShouldBeTrue)

			Convey("with the closing and lowering modes", func() {
				So(host.sent(MsgSetGates)[0].Data[8], ShouldEqual, 0)
				So(host.sent(MsgSetHarness)[0].Data[8], ShouldEqual, 0)
				So(host.sent(MsgSetFlyerCar)[0].Data[8], ShouldEqual, 0)
				So(host.sent(MsgSetPlatform)[0].Data[8], ShouldEqual, 1)
			})
		})

		Convey("A station that can already dispatch needs nothing", func() {
			host.set(func(h *fakeHost) { h.station = ManualMode | CanDispatch })
			So(m.PrepareForDispatch(ctx), ShouldBeTrue)
			So(host.commands(), ShouldBeEmpty)
		})

		Convey("A stuck station keeps returning false", func() {
			host.set(func(h *fakeHost) { h.station = ManualMode })
			So(m.PrepareForDispatch(ctx), ShouldBeFalse)
			So(host.commands(), ShouldBeEmpty)
		})

		Convey("Manual mode is requested first", func() {
			host.set(func(h *fakeHost) {
				h.station = TrainInStation | CurrentTrainInStation | GatesCanClose
				h.ignoreManual = true
			})
			So(m.PrepareForDispatch(ctx), ShouldBeFalse)
			So(len(host.sent(MsgSetManualMode)), ShouldBeGreaterThan, 0)
			So(host.sent(MsgSetGates), ShouldBeEmpty)
		})
	})
}
