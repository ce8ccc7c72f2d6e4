package store_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	store "github.com/angelosachet/AC-websocket-server/internal/adapters/store"
	watch "github.com/angelosachet/AC-websocket-server/internal/adapters/watch"
	model "github.com/angelosachet/AC-websocket-server/internal/domain/model"
	"github.com/angelosachet/AC-websocket-server/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeWatcher feeds synthetic file-change events into the store.
type fakeWatcher struct {
	ev   chan watch.Event
	errs chan error
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{ev: make(chan watch.Event), errs: make(chan error)}
}

func (f *fakeWatcher) Events() <-chan watch.Event { return f.ev }
func (f *fakeWatcher) Errors() <-chan error       { return f.errs }
func (f *fakeWatcher) Close() error               { close(f.ev); return nil }

func sampleTable(event string, pilot string, lap int64) *model.EventTable {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t := model.NewEventTable(event, now)
	t.SetRecord(model.BestRecord{
		PilotName: pilot, BestLapTimeMS: lap,
		Car: "M4 GT3", Track: "Monza", Timestamp: now, SimID: 1,
	}, now)
	return t
}

func waitForFile(path string) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestFileStore(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given a file store over a temp directory", t, func() {
		dir := t.TempDir()

		Convey("When an unknown event is requested", func() {
			s, err := store.NewFileStore(ctx, dir)
			So(err, ShouldBeNil)
			defer s.Close()

			_, ok, err := s.Get(ctx, "never seen")

			Convey("Then absence is reported without error", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a table is put and the quiet period elapses", func() {
			s, err := store.NewFileStore(ctx, dir, store.WithDebounce(20*time.Millisecond))
			So(err, ShouldBeNil)
			defer s.Close()

			s.Put(ctx, "Cup A", sampleTable("Cup A", "Ana", 90000))

			Convey("Then the slugged file appears and round-trips after invalidation", func() {
				path := filepath.Join(dir, "cup-a.json")
				So(waitForFile(path), ShouldBeTrue)

				s.InvalidateAll()
				got, ok, err := s.Get(ctx, "Cup A")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got.EventName, ShouldEqual, "Cup A")
				So(got.Pilots["Ana"].BestLapTimeMS, ShouldEqual, 90000)
				So(got.Pilots["Ana"].Car, ShouldEqual, "M4 GT3")
			})
		})

		Convey("When the same event is updated repeatedly within the quiet period", func() {
			s, err := store.NewFileStore(ctx, dir, store.WithDebounce(150*time.Millisecond))
			So(err, ShouldBeNil)
			defer s.Close()

			path := filepath.Join(dir, "cup-a.json")
			for lap := int64(95000); lap >= 91000; lap -= 1000 {
				s.Put(ctx, "Cup A", sampleTable("Cup A", "Ana", lap))
				time.Sleep(5 * time.Millisecond)
			}

			Convey("Then no write happens before the quiet period", func() {
				_, statErr := os.Stat(path)
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})

			Convey("And the single coalesced write carries the last update", func() {
				So(waitForFile(path), ShouldBeTrue)
				raw, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				var got model.EventTable
				So(json.Unmarshal(raw, &got), ShouldBeNil)
				So(got.Pilots["Ana"].BestLapTimeMS, ShouldEqual, 91000)
			})
		})

		Convey("When updates are pending and Flush is called", func() {
			s, err := store.NewFileStore(ctx, dir, store.WithDebounce(time.Hour))
			So(err, ShouldBeNil)
			defer s.Close()

			s.Put(ctx, "Cup A", sampleTable("Cup A", "Ana", 90000))
			s.Put(ctx, "Cup B", sampleTable("Cup B", "Bea", 92000))

			Convey("Then every resident table is written immediately", func() {
				So(s.Flush(ctx), ShouldBeNil)
				_, errA := os.Stat(filepath.Join(dir, "cup-a.json"))
				_, errB := os.Stat(filepath.Join(dir, "cup-b.json"))
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
			})
		})

		Convey("When Update touches an event never seen before", func() {
			s, err := store.NewFileStore(ctx, dir, store.WithDebounce(time.Hour))
			So(err, ShouldBeNil)
			defer s.Close()

			changed, err := s.Update(ctx, "Cup A", func(table *model.EventTable) bool {
				table.SetRecord(model.BestRecord{PilotName: "Ana", BestLapTimeMS: 90000}, time.Now())
				return true
			})

			Convey("Then a fresh table is created and cached", func() {
				So(err, ShouldBeNil)
				So(changed, ShouldBeTrue)
				got, ok, err := s.Get(ctx, "Cup A")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got.EventName, ShouldEqual, "Cup A")
				So(got.Pilots["Ana"].BestLapTimeMS, ShouldEqual, 90000)
			})
		})

		Convey("When Update declines to change a table", func() {
			s, err := store.NewFileStore(ctx, dir, store.WithDebounce(20*time.Millisecond))
			So(err, ShouldBeNil)
			defer s.Close()

			changed, err := s.Update(ctx, "Cup A", func(*model.EventTable) bool {
				return false
			})

			Convey("Then nothing is cached and nothing is written", func() {
				So(err, ShouldBeNil)
				So(changed, ShouldBeFalse)
				So(s.ResidentEvents(), ShouldBeEmpty)
				time.Sleep(100 * time.Millisecond)
				_, statErr := os.Stat(filepath.Join(dir, "cup-a.json"))
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})

		Convey("When Update finds the event on disk but not in cache", func() {
			s, err := store.NewFileStore(ctx, dir, store.WithDebounce(time.Hour))
			So(err, ShouldBeNil)
			defer s.Close()

			s.Put(ctx, "Cup A", sampleTable("Cup A", "Ana", 90000))
			So(s.Flush(ctx), ShouldBeNil)
			s.InvalidateAll()

			var seen int64
			_, err = s.Update(ctx, "Cup A", func(table *model.EventTable) bool {
				seen = table.Pilots["Ana"].BestLapTimeMS
				return false
			})

			Convey("Then the durable copy is loaded under the same call", func() {
				So(err, ShouldBeNil)
				So(seen, ShouldEqual, 90000)
			})
		})

		Convey("When two goroutines update the same event concurrently", func() {
			s, err := store.NewFileStore(ctx, dir, store.WithDebounce(time.Hour))
			So(err, ShouldBeNil)
			defer s.Close()

			start := make(chan struct{})
			var wg sync.WaitGroup
			for _, pilot := range []string{"Ana", "Bob"} {
				wg.Add(1)
				go func(pilot string) {
					defer wg.Done()
					<-start
					_, _ = s.Update(ctx, "Cup A", func(table *model.EventTable) bool {
						table.SetRecord(model.BestRecord{PilotName: pilot, BestLapTimeMS: 90000}, time.Now())
						return true
					})
				}(pilot)
			}
			close(start)
			wg.Wait()

			Convey("Then both changes survive", func() {
				got, ok, err := s.Get(ctx, "Cup A")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(len(got.Pilots), ShouldEqual, 2)
			})
		})

		Convey("When Invalidate evicts a resident entry", func() {
			s, err := store.NewFileStore(ctx, dir, store.WithDebounce(time.Hour))
			So(err, ShouldBeNil)
			defer s.Close()

			s.Put(ctx, "Cup A", sampleTable("Cup A", "Ana", 90000))
			So(s.Flush(ctx), ShouldBeNil)

			// Disk copy is older than what we now cache.
			s.Put(ctx, "Cup A", sampleTable("Cup A", "Ana", 88000))
			s.Invalidate("Cup A")

			Convey("Then the next Get reloads the durable copy", func() {
				got, ok, err := s.Get(ctx, "Cup A")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got.Pilots["Ana"].BestLapTimeMS, ShouldEqual, 90000)
			})
		})
	})
}

func TestExternalChanges(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given a store with a resident table", t, func() {
		dir := t.TempDir()
		s, err := store.NewFileStore(ctx, dir, store.WithDebounce(time.Hour))
		So(err, ShouldBeNil)
		defer s.Close()

		s.Put(ctx, "Cup A", sampleTable("Cup A", "Ana", 90000))
		path := filepath.Join(dir, "cup-a.json")

		Convey("When the file is modified externally with valid content", func() {
			edited := sampleTable("Cup A", "Ana", 85000)
			raw, merr := json.Marshal(edited)
			So(merr, ShouldBeNil)
			So(os.WriteFile(path, raw, 0o644), ShouldBeNil)

			s.ReconcileExternalChange(ctx, path, watch.Modify)

			Convey("Then the cached entry is replaced wholesale", func() {
				got, ok, err := s.Get(ctx, "Cup A")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got.Pilots["Ana"].BestLapTimeMS, ShouldEqual, 85000)
			})
		})

		Convey("When the external content omits the event name", func() {
			So(os.WriteFile(path, []byte(`{"pilots":{"Bea":{"pilotName":"Bea","bestLapTime":70000}}}`), 0o644), ShouldBeNil)

			s.ReconcileExternalChange(ctx, path, watch.Modify)

			Convey("Then the name derives from the filename", func() {
				got, ok, err := s.Get(ctx, "cup-a")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got.EventName, ShouldEqual, "cup-a")
				So(got.Pilots["Bea"].BestLapTimeMS, ShouldEqual, 70000)
			})
		})

		Convey("When the external content is malformed", func() {
			So(os.WriteFile(path, []byte("{not json"), 0o644), ShouldBeNil)

			s.ReconcileExternalChange(ctx, path, watch.Modify)

			Convey("Then the previous cached value is retained", func() {
				got, ok, err := s.Get(ctx, "Cup A")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got.Pilots["Ana"].BestLapTimeMS, ShouldEqual, 90000)
			})
		})

		Convey("When the file is removed externally", func() {
			s.ReconcileExternalChange(ctx, path, watch.Remove)

			Convey("Then the matching cached entry is evicted", func() {
				_, ok, err := s.Get(ctx, "Cup A")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a non-event file changes", func() {
			s.ReconcileExternalChange(ctx, filepath.Join(dir, "notes.txt"), watch.Modify)

			Convey("Then the cache is untouched", func() {
				got, ok, err := s.Get(ctx, "Cup A")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got.Pilots["Ana"].BestLapTimeMS, ShouldEqual, 90000)
			})
		})

		Convey("When the store's own write bounces back through the watcher", func() {
			So(s.Flush(ctx), ShouldBeNil)

			edited := sampleTable("Cup A", "Ana", 85000)
			raw, merr := json.Marshal(edited)
			So(merr, ShouldBeNil)
			So(os.WriteFile(path, raw, 0o644), ShouldBeNil)

			s.ReconcileExternalChange(ctx, path, watch.Modify)

			Convey("Then the event is suppressed inside the self-write window", func() {
				got, ok, err := s.Get(ctx, "Cup A")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got.Pilots["Ana"].BestLapTimeMS, ShouldEqual, 90000)
			})
		})

		Convey("When an operator edit lands after the self-write window", func() {
			dir2 := t.TempDir()
			s2, err := store.NewFileStore(ctx, dir2,
				store.WithDebounce(time.Hour),
				store.WithSelfWriteWindow(10*time.Millisecond),
			)
			So(err, ShouldBeNil)
			defer s2.Close()

			s2.Put(ctx, "Cup A", sampleTable("Cup A", "Ana", 90000))
			So(s2.Flush(ctx), ShouldBeNil)
			time.Sleep(30 * time.Millisecond)

			path2 := filepath.Join(dir2, "cup-a.json")
			edited := sampleTable("Cup A", "Ana", 85000)
			raw, merr := json.Marshal(edited)
			So(merr, ShouldBeNil)
			So(os.WriteFile(path2, raw, 0o644), ShouldBeNil)

			s2.ReconcileExternalChange(ctx, path2, watch.Modify)

			Convey("Then the edit takes effect", func() {
				got, ok, err := s2.Get(ctx, "Cup A")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got.Pilots["Ana"].BestLapTimeMS, ShouldEqual, 85000)
			})
		})

		Convey("When events arrive through a watcher", func() {
			w := newFakeWatcher()
			watchCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				s.Watch(watchCtx, w)
				close(done)
			}()

			edited := sampleTable("Cup A", "Ana", 84000)
			raw, merr := json.Marshal(edited)
			So(merr, ShouldBeNil)
			So(os.WriteFile(path, raw, 0o644), ShouldBeNil)

			w.ev <- watch.Event{Path: path, Op: watch.Modify}
			cancel()
			<-done

			Convey("Then the change is applied", func() {
				got, ok, err := s.Get(ctx, "Cup A")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got.Pilots["Ana"].BestLapTimeMS, ShouldEqual, 84000)
			})
		})
	})
}
