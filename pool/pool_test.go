package pool

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/fuchsia74/grok-api/model"
	"github.com/fuchsia74/grok-api/relay/grok"
	"github.com/fuchsia74/grok-api/relay/routing"
)

func newTestManager(rows ...*model.TokenInfo) *Manager {
	m := NewManager()
	m.Adopt(rows...)
	return m
}

func basicToken(id int, token string, status, quota int) *model.TokenInfo {
	return &model.TokenInfo{Id: id, Token: token, Pool: model.PoolBasic, Status: status, Quota: quota}
}

func superToken(id int, token string, status, quota int) *model.TokenInfo {
	return &model.TokenInfo{Id: id, Token: token, Pool: model.PoolSuper, Status: status, Quota: quota}
}

func TestGetToken(t *testing.T) {
	Convey("token selection", t, func() {
		m := newTestManager(
			basicToken(1, "sso-a", model.TokenStatusCooling, 0),
			basicToken(2, "sso-b", model.TokenStatusActive, 80),
			basicToken(3, "sso-c", model.TokenStatusActive, 80),
			basicToken(4, "sso-d", model.TokenStatusExpired, 80),
		)

		Convey("first active token in insertion order wins", func() {
			got := m.GetToken(model.PoolBasic, nil)
			So(got, ShouldNotBeNil)
			So(got.Token, ShouldEqual, "sso-b")
		})

		Convey("excluded tokens are skipped", func() {
			got := m.GetToken(model.PoolBasic, map[string]bool{"sso-b": true})
			So(got, ShouldNotBeNil)
			So(got.Token, ShouldEqual, "sso-c")
		})

		Convey("nil when every active token is excluded", func() {
			got := m.GetToken(model.PoolBasic, map[string]bool{"sso-b": true, "sso-c": true})
			So(got, ShouldBeNil)
		})

		Convey("unknown pool yields nil", func() {
			So(m.GetToken("nope", nil), ShouldBeNil)
		})

		Convey("returned rows are snapshots", func() {
			got := m.GetToken(model.PoolBasic, nil)
			got.Quota = 0
			So(m.Lookup("sso-b").Quota, ShouldEqual, 80)
		})
	})
}

func TestConsume(t *testing.T) {
	Convey("quota accounting", t, func() {
		m := newTestManager(basicToken(1, "sso-a", model.TokenStatusActive, 5))

		Convey("high effort charges four", func() {
			So(m.Consume("sso-a", routing.EffortHigh), ShouldEqual, 4)
			row := m.Lookup("sso-a")
			So(row.Quota, ShouldEqual, 1)
			So(row.UseCount, ShouldEqual, 4)
			So(row.Status, ShouldEqual, model.TokenStatusActive)
			So(row.LastUsedAt, ShouldBeGreaterThan, 0)
		})

		Convey("cost clamps at remaining quota and zero quota parks the token", func() {
			m.Consume("sso-a", routing.EffortHigh)
			So(m.Consume("sso-a", routing.EffortHigh), ShouldEqual, 1)
			row := m.Lookup("sso-a")
			So(row.Quota, ShouldEqual, 0)
			So(row.UseCount, ShouldEqual, 5)
			So(row.Status, ShouldEqual, model.TokenStatusCooling)
		})

		Convey("failure history survives consume", func() {
			m.RecordFail("sso-a", 401, "bad cookie")
			m.Consume("sso-a", routing.EffortLow)
			So(m.Lookup("sso-a").FailCount, ShouldEqual, 1)
		})

		Convey("unknown token reports -1", func() {
			So(m.Consume("nope", routing.EffortLow), ShouldEqual, -1)
		})
	})
}

func TestRecordFail(t *testing.T) {
	Convey("auth failure tracking", t, func() {
		m := newTestManager(basicToken(1, "sso-a", model.TokenStatusActive, 80))

		Convey("non-401 statuses are not counted", func() {
			m.RecordFail("sso-a", 429, "rate limited")
			m.RecordFail("sso-a", 500, "boom")
			So(m.Lookup("sso-a").FailCount, ShouldEqual, 0)
		})

		Convey("five consecutive 401s expire the token", func() {
			for range 4 {
				m.RecordFail("sso-a", 401, "unauthorized")
			}
			So(m.Lookup("sso-a").Status, ShouldEqual, model.TokenStatusActive)

			m.RecordFail("sso-a", 401, "unauthorized")
			row := m.Lookup("sso-a")
			So(row.Status, ShouldEqual, model.TokenStatusExpired)
			So(row.FailCount, ShouldEqual, 5)
			So(row.LastFailReason, ShouldEqual, "unauthorized")
			So(row.LastFailAt, ShouldBeGreaterThan, 0)
		})

		Convey("a success in between resets the streak", func() {
			m.RecordFail("sso-a", 401, "unauthorized")
			m.RecordFail("sso-a", 401, "unauthorized")
			m.RecordSuccess("sso-a", false)
			row := m.Lookup("sso-a")
			So(row.FailCount, ShouldEqual, 0)
			So(row.LastFailReason, ShouldBeEmpty)
			So(row.LastFailAt, ShouldEqual, 0)
		})
	})
}

func TestRecordSuccess(t *testing.T) {
	Convey("success bookkeeping", t, func() {
		m := newTestManager(basicToken(1, "sso-a", model.TokenStatusActive, 80))

		Convey("usage successes bump the counters", func() {
			m.RecordSuccess("sso-a", true)
			row := m.Lookup("sso-a")
			So(row.UseCount, ShouldEqual, 1)
			So(row.LastUsedAt, ShouldBeGreaterThan, 0)
		})

		Convey("non-usage successes only clear fail tracking", func() {
			m.RecordFail("sso-a", 401, "unauthorized")
			m.RecordSuccess("sso-a", false)
			row := m.Lookup("sso-a")
			So(row.FailCount, ShouldEqual, 0)
			So(row.UseCount, ShouldEqual, 0)
			So(row.LastUsedAt, ShouldEqual, 0)
		})
	})
}

func TestRateLimitRecovery(t *testing.T) {
	Convey("rate limited tokens cool and recover on quota", t, func() {
		m := newTestManager(basicToken(1, "sso-a", model.TokenStatusActive, 80))

		m.MarkRateLimited("sso-a")
		So(m.Lookup("sso-a").Status, ShouldEqual, model.TokenStatusCooling)
		So(m.GetToken(model.PoolBasic, nil), ShouldBeNil)

		Convey("usage probe with remaining quota reactivates", func() {
			m.applyUsage("sso-a", &grok.RateLimitSnapshot{RemainingQueries: 12})
			row := m.Lookup("sso-a")
			So(row.Status, ShouldEqual, model.TokenStatusActive)
			So(row.Quota, ShouldEqual, 12)
			So(row.LastSyncAt, ShouldBeGreaterThan, 0)
		})

		Convey("usage probe with zero quota keeps it cooling", func() {
			m.applyUsage("sso-a", &grok.RateLimitSnapshot{RemainingQueries: 0})
			So(m.Lookup("sso-a").Status, ShouldEqual, model.TokenStatusCooling)
		})
	})
}

func TestExpiredStaysExpired(t *testing.T) {
	Convey("expired tokens never self-heal", t, func() {
		m := newTestManager(basicToken(1, "sso-a", model.TokenStatusExpired, 0))

		m.applyUsage("sso-a", &grok.RateLimitSnapshot{RemainingQueries: 50})
		row := m.Lookup("sso-a")
		So(row.Quota, ShouldEqual, 50)
		So(row.Status, ShouldEqual, model.TokenStatusExpired)
		So(m.GetToken(model.PoolBasic, nil), ShouldBeNil)

		m.MarkRateLimited("sso-a")
		So(m.Lookup("sso-a").Status, ShouldEqual, model.TokenStatusExpired)
	})
}

func TestGetTokenForVideo(t *testing.T) {
	Convey("video requests pick a tier by render weight", t, func() {
		m := newTestManager(
			basicToken(1, "sso-basic", model.TokenStatusActive, 80),
			superToken(2, "sso-super", model.TokenStatusActive, 140),
		)

		Convey("720p prefers the super pool", func() {
			So(m.GetTokenForVideo("720p", 6, nil).Token, ShouldEqual, "sso-super")
		})

		Convey("long renders prefer the super pool", func() {
			So(m.GetTokenForVideo("480p", 10, nil).Token, ShouldEqual, "sso-super")
		})

		Convey("light renders prefer the basic pool", func() {
			So(m.GetTokenForVideo("480p", 6, nil).Token, ShouldEqual, "sso-basic")
		})

		Convey("tier miss falls back to the other pool", func() {
			m.MarkRateLimited("sso-super")
			So(m.GetTokenForVideo("720p", 10, nil).Token, ShouldEqual, "sso-basic")
		})
	})
}

func TestNeedRefresh(t *testing.T) {
	Convey("cooling refresh eligibility", t, func() {
		now := time.Now()

		Convey("only cooling tokens qualify", func() {
			So(needRefresh(basicToken(1, "a", model.TokenStatusActive, 10), now), ShouldBeFalse)
			So(needRefresh(basicToken(1, "a", model.TokenStatusExpired, 0), now), ShouldBeFalse)
		})

		Convey("a never-probed cooling token qualifies at once", func() {
			So(needRefresh(basicToken(1, "a", model.TokenStatusCooling, 0), now), ShouldBeTrue)
		})

		Convey("basic pool waits eight hours", func() {
			row := basicToken(1, "a", model.TokenStatusCooling, 0)
			row.LastSyncAt = now.Add(-7 * time.Hour).UnixMilli()
			So(needRefresh(row, now), ShouldBeFalse)
			row.LastSyncAt = now.Add(-9 * time.Hour).UnixMilli()
			So(needRefresh(row, now), ShouldBeTrue)
		})

		Convey("super pool re-probes after two hours", func() {
			row := superToken(1, "a", model.TokenStatusCooling, 0)
			row.LastSyncAt = now.Add(-1 * time.Hour).UnixMilli()
			So(needRefresh(row, now), ShouldBeFalse)
			row.LastSyncAt = now.Add(-3 * time.Hour).UnixMilli()
			So(needRefresh(row, now), ShouldBeTrue)
		})
	})
}

func TestBookkeepingStampsAreMillis(t *testing.T) {
	Convey("runtime stamps use epoch milliseconds like the gorm columns", t, func() {
		m := newTestManager(basicToken(1, "sso-a", model.TokenStatusActive, 80))
		before := time.Now().UnixMilli()

		m.Consume("sso-a", routing.EffortLow)
		m.RecordFail("sso-a", 401, "unauthorized")
		m.applyUsage("sso-a", &grok.RateLimitSnapshot{RemainingQueries: 9})
		m.MarkAssetClear("sso-a")

		// A seconds-granularity stamp would sit three orders of magnitude
		// below `before` and fail every bound here.
		row := m.Lookup("sso-a")
		So(row.LastUsedAt, ShouldBeGreaterThanOrEqualTo, before)
		So(row.LastFailAt, ShouldBeGreaterThanOrEqualTo, before)
		So(row.LastSyncAt, ShouldBeGreaterThanOrEqualTo, before)
		So(row.LastAssetClearAt, ShouldBeGreaterThanOrEqualTo, before)
	})
}

func TestPersisterBatching(t *testing.T) {
	Convey("mutations queue one dirty row per token", t, func() {
		m := newTestManager(basicToken(1, "sso-a", model.TokenStatusActive, 80))

		m.Consume("sso-a", routing.EffortLow)
		m.Consume("sso-a", routing.EffortLow)
		m.RecordSuccess("sso-a", false)

		rows := m.persist.takeDirty()
		So(rows, ShouldHaveLength, 1)
		So(rows[0].Quota, ShouldEqual, 78)

		Convey("taking the batch clears the queue", func() {
			So(m.persist.takeDirty(), ShouldBeNil)
		})

		Convey("requeue restores failed rows from live state", func() {
			m.persist.requeue(rows)
			again := m.persist.takeDirty()
			So(again, ShouldHaveLength, 1)
			So(again[0].Token, ShouldEqual, "sso-a")
		})
	})
}

func TestAdoptRemove(t *testing.T) {
	Convey("live view maintenance", t, func() {
		m := newTestManager(basicToken(1, "sso-a", model.TokenStatusActive, 80))

		Convey("adopt adds new rows and skips duplicates", func() {
			m.Adopt(
				basicToken(2, "sso-b", model.TokenStatusActive, 80),
				basicToken(9, "sso-a", model.TokenStatusActive, 1),
			)
			So(m.All(model.PoolBasic), ShouldHaveLength, 2)
			So(m.Lookup("sso-a").Id, ShouldEqual, 1)
		})

		Convey("remove drops the row and its pending writes", func() {
			m.Consume("sso-a", routing.EffortLow)
			m.Remove("sso-a")
			So(m.Lookup("sso-a"), ShouldBeNil)
			So(m.GetToken(model.PoolBasic, nil), ShouldBeNil)
			So(m.persist.takeDirty(), ShouldBeNil)
		})
	})
}

func TestPoolStats(t *testing.T) {
	Convey("pool stats aggregate status counts", t, func() {
		m := newTestManager(
			basicToken(1, "a", model.TokenStatusActive, 10),
			basicToken(2, "b", model.TokenStatusActive, 20),
			basicToken(3, "c", model.TokenStatusCooling, 0),
			basicToken(4, "d", model.TokenStatusExpired, 0),
			basicToken(5, "e", model.TokenStatusDisabled, 7),
		)

		s := m.PoolStats(model.PoolBasic)
		So(s.Total, ShouldEqual, 5)
		So(s.Active, ShouldEqual, 2)
		So(s.Cooling, ShouldEqual, 1)
		So(s.Expired, ShouldEqual, 1)
		So(s.Disabled, ShouldEqual, 1)
		So(s.TotalQuota, ShouldEqual, 37)
	})
}

func TestDefaultQuota(t *testing.T) {
	Convey("pool boot quotas", t, func() {
		So(DefaultQuotaFor(model.PoolBasic), ShouldEqual, 80)
		So(DefaultQuotaFor(model.PoolSuper), ShouldEqual, 140)
		So(DefaultQuotaFor("anything-else"), ShouldEqual, 80)
	})
}
