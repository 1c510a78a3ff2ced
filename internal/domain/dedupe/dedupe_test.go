package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/dedupe"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithCapacity(16))

		Convey("When a guild is seen for the first time", func() {
			seen := d.SeenAndRecord(ctx, "Phoenix Legends")

			Convey("Then it is recorded", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
				So(d.Duplicates(), ShouldEqual, 0)
			})

			Convey("And a second result for the same guild is reported as seen", func() {
				So(d.SeenAndRecord(ctx, "Phoenix Legends"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
				So(d.Duplicates(), ShouldEqual, 1)
			})
		})

		Convey("When guild names differ only in case", func() {
			So(d.SeenAndRecord(ctx, "Iron Wolves"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "iron wolves"), ShouldBeFalse)

			Convey("Then they are distinct keys", func() {
				So(d.Size(), ShouldEqual, 2)
			})
		})

		Convey("When the deduper is reset", func() {
			d.SeenAndRecord(ctx, "A")
			d.SeenAndRecord(ctx, "A")
			d.Reset()

			Convey("Then all state is cleared", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.Duplicates(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "A"), ShouldBeFalse)
			})
		})

		Convey("When many goroutines race on the same keys", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			firsts := 0
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						if !d.SeenAndRecord(ctx, fmt.Sprintf("guild-%d", i)) {
							mu.Lock()
							firsts++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each key is first-seen exactly once", func() {
				So(firsts, ShouldEqual, 50)
				So(d.Size(), ShouldEqual, 50)
				So(d.Duplicates(), ShouldEqual, 350)
			})
		})
	})
}
