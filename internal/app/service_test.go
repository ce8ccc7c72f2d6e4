package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	app "github.com/angelosachet/AC-websocket-server/internal/app"
	ws "github.com/angelosachet/AC-websocket-server/internal/adapters/ws"
	model "github.com/angelosachet/AC-websocket-server/internal/domain/model"
	"github.com/angelosachet/AC-websocket-server/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func dialWS(srvURL, path string) (*websocket.Conn, error) {
	u := "ws" + strings.TrimPrefix(srvURL, "http") + path
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	return c, err
}

func readJSON(c *websocket.Conn, v any) error {
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := c.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func sendSample(c *websocket.Conn, sample *model.TelemetrySample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(ws.Envelope{Type: ws.MsgSimulatorUpdate, Data: data})
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, raw)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestServiceRelay(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given a started service behind an HTTP server", t, func() {
		dir := t.TempDir()
		svc := app.New(
			app.WithDataDir(dir),
			app.WithDebounce(50*time.Millisecond),
			app.WithThrottleWindow(time.Second),
			app.WithWatchEnabled(false),
			app.WithPingInterval(time.Hour),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		mux := http.NewServeMux()
		svc.RegisterRoutes(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When a producer submits a sample with a consumer attached", func() {
			consumer, err := dialWS(srv.URL, "/consumer")
			So(err, ShouldBeNil)
			defer consumer.Close()
			var ack ws.Ack
			var stats ws.StatsMessage
			So(readJSON(consumer, &ack), ShouldBeNil)
			So(readJSON(consumer, &stats), ShouldBeNil)

			producer, err := dialWS(srv.URL, "/producer")
			So(err, ShouldBeNil)
			defer producer.Close()
			So(readJSON(producer, &ack), ShouldBeNil)

			So(sendSample(producer, &model.TelemetrySample{
				SimID: 1, Event: "Cup A", PilotName: "Ana",
				Car: "M4 GT3", Track: "Monza", SpeedKMH: 231.4, BestLapMS: 90000,
			}), ShouldBeNil)

			Convey("Then the consumer receives the stamped broadcast", func() {
				var frame ws.OutboundSample
				So(readJSON(consumer, &frame), ShouldBeNil)
				So(frame.Type, ShouldEqual, ws.MsgSimulatorUpdate)
				So(frame.Timestamp, ShouldNotBeEmpty)
				So(frame.Data.PilotName, ShouldEqual, "Ana")
				So(frame.Data.SpeedKMH, ShouldEqual, 231.4)
			})

			Convey("And the best record lands on disk after the quiet period", func() {
				path := filepath.Join(dir, "cup-a.json")
				So(waitFor(func() bool {
					_, err := os.Stat(path)
					return err == nil
				}), ShouldBeTrue)

				raw, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				var table model.EventTable
				So(json.Unmarshal(raw, &table), ShouldBeNil)
				So(table.EventName, ShouldEqual, "Cup A")
				So(table.Pilots["Ana"].BestLapTimeMS, ShouldEqual, 90000)
			})
		})

		Convey("When a sample has no best-lap candidate", func() {
			producer, err := dialWS(srv.URL, "/producer")
			So(err, ShouldBeNil)
			defer producer.Close()
			var ack ws.Ack
			So(readJSON(producer, &ack), ShouldBeNil)

			So(sendSample(producer, &model.TelemetrySample{
				SimID: 1, Event: "Cup A", PilotName: "Ana",
				Car: "M4 GT3", Track: "Monza", SpeedKMH: 180,
			}), ShouldBeNil)

			Convey("Then nothing is persisted", func() {
				time.Sleep(150 * time.Millisecond)
				_, err := os.Stat(filepath.Join(dir, "cup-a.json"))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When stats are requested after connections", func() {
			consumer, err := dialWS(srv.URL, "/consumer")
			So(err, ShouldBeNil)
			defer consumer.Close()

			So(waitFor(func() bool {
				s := svc.GetStats()
				c, _ := s["consumers"].(int)
				return c == 1
			}), ShouldBeTrue)

			Convey("Then the snapshot reflects them", func() {
				s := svc.GetStats()
				So(s["started"], ShouldBeTrue)
				So(s["dataDir"], ShouldEqual, dir)
				So(s["consumers"], ShouldEqual, 1)
			})
		})
	})
}

func TestServiceShutdownFlush(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given a service with a long write quiet period", t, func() {
		dir := t.TempDir()
		svc := app.New(
			app.WithDataDir(dir),
			app.WithDebounce(time.Hour),
			app.WithWatchEnabled(false),
			app.WithPingInterval(time.Hour),
		)
		So(svc.Start(ctx), ShouldBeNil)

		mux := http.NewServeMux()
		svc.RegisterRoutes(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		producer, err := dialWS(srv.URL, "/producer")
		So(err, ShouldBeNil)
		defer producer.Close()
		var ack ws.Ack
		So(readJSON(producer, &ack), ShouldBeNil)

		So(sendSample(producer, &model.TelemetrySample{
			SimID: 1, Event: "Cup A", PilotName: "Ana",
			Car: "M4 GT3", Track: "Monza", BestLapMS: 90000,
		}), ShouldBeNil)

		path := filepath.Join(dir, "cup-a.json")
		So(waitFor(func() bool {
			return len(svc.GetStats()["residentEvents"].([]string)) > 0
		}), ShouldBeTrue)
		_, statErr := os.Stat(path)
		So(os.IsNotExist(statErr), ShouldBeTrue)

		Convey("When the service stops", func() {
			svc.Stop(ctx)

			Convey("Then the pending record is flushed before teardown", func() {
				raw, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				var table model.EventTable
				So(json.Unmarshal(raw, &table), ShouldBeNil)
				So(table.Pilots["Ana"].BestLapTimeMS, ShouldEqual, 90000)
			})
		})
	})
}
