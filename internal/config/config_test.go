package config_test

import (
	"testing"

	config "github.com/angelosachet/AC-websocket-server/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewDefaults(t *testing.T) {
	Convey("Given a default config", t, func() {
		c := config.New()

		Convey("Then the documented defaults hold", func() {
			So(c.LogLevel, ShouldEqual, "info")
			So(c.Addr, ShouldEqual, ":8090")
			So(c.DataDir, ShouldEqual, "./data")
			So(c.DebounceMS, ShouldEqual, 5000)
			So(c.ThrottleMS, ShouldEqual, 5000)
			So(c.MaxSimID, ShouldEqual, 16)
			So(c.DefaultEvent, ShouldEqual, "default")
			So(c.WriteRetryMax, ShouldEqual, 3)
			So(c.WatchEnabled, ShouldBeTrue)
		})
	})
}
