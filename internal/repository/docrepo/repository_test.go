package docrepo_test

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/dokzlo13/sitelight/internal/config"
	"github.com/dokzlo13/sitelight/internal/docstore"
	"github.com/dokzlo13/sitelight/internal/light"
	"github.com/dokzlo13/sitelight/internal/light/lighttest"
	"github.com/dokzlo13/sitelight/internal/repository/docrepo"
)

func newStore(t *testing.T) (*miniredis.Miniredis, *docstore.Client) {
	t.Helper()

	m := miniredis.RunT(t)
	client := docstore.New(config.RedisConfig{
		Address:     m.Addr(),
		PoolSize:    2,
		DialTimeout: config.Duration(time.Second),
	})
	t.Cleanup(func() { _ = client.Close() })

	return m, client
}

func provisionDevice(t *testing.T, m *miniredis.Miniredis, doc map[string]any) {
	t.Helper()

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	id := doc["_id"].(string)
	require.NoError(t, m.Set("device:"+id, string(data)))
	_, err = m.SetAdd("devices", id)
	require.NoError(t, err)
}

func TestRepositoryContract(t *testing.T) {
	lighttest.RunContract(t, func(t *testing.T) light.Repository {
		m, client := newStore(t)
		provisionDevice(t, m, map[string]any{"_id": "ESP32_MCD_001", "restaurantId": "mcd_1", "legacyId": 1})
		provisionDevice(t, m, map[string]any{"_id": "ESP32_MCD_002", "restaurantId": "mcd_2", "legacyId": 2})
		return docrepo.New(client, 5*time.Second)
	}, 1, 2)
}

type RepositoryTestSuite struct {
	suite.Suite
	miniRedis *miniredis.Miniredis
	client    *docstore.Client
	repo      *docrepo.Repository
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

func (s *RepositoryTestSuite) SetupTest() {
	s.miniRedis, s.client = newStore(s.T())
	s.repo = docrepo.New(s.client, 5*time.Second)
}

func (s *RepositoryTestSuite) provision(doc map[string]any) {
	provisionDevice(s.T(), s.miniRedis, doc)
}

func (s *RepositoryTestSuite) rawDoc(key string) map[string]any {
	data, err := s.miniRedis.Get(key)
	s.Require().NoError(err)

	var doc map[string]any
	s.Require().NoError(json.Unmarshal([]byte(data), &doc))
	return doc
}

func (s *RepositoryTestSuite) keys() []string {
	keys := s.miniRedis.Keys()
	sort.Strings(keys)
	return keys
}

func (s *RepositoryTestSuite) TestResolve_ByLegacyID() {
	s.provision(map[string]any{"_id": "A", "legacyId": 2, "lightState": "on", "brightness": 30})
	s.provision(map[string]any{"_id": "B", "legacyId": 1, "lightState": "on", "brightness": 70})

	status, err := s.repo.GetOrCreate(context.Background(), 1)
	s.Require().NoError(err)
	s.Require().Equal(1, status.SiteID)
	s.Require().Equal(70, status.Brightness)
}

func (s *RepositoryTestSuite) TestResolve_ByLegacyRestaurantIDAlias() {
	s.provision(map[string]any{"_id": "A", "legacyRestaurantId": 5, "lightState": "on", "brightness": 55})

	status, err := s.repo.GetOrCreate(context.Background(), 5)
	s.Require().NoError(err)
	s.Require().Equal(light.StateOn, status.State)
	s.Require().Equal(55, status.Brightness)
}

func (s *RepositoryTestSuite) TestResolve_PositionalFallback() {
	s.provision(map[string]any{"_id": "ESP32_C", "brightness": 3})
	s.provision(map[string]any{"_id": "ESP32_A", "brightness": 1})
	s.provision(map[string]any{"_id": "ESP32_B", "brightness": 2})

	for siteID, want := range map[int]int{1: 1, 2: 2, 3: 3} {
		status, err := s.repo.GetOrCreate(context.Background(), siteID)
		s.Require().NoError(err)
		s.Require().Equal(want, status.Brightness, "site %d", siteID)
	}
}

func (s *RepositoryTestSuite) TestResolve_LegacyIDBeatsPosition() {
	s.provision(map[string]any{"_id": "A", "brightness": 10})
	s.provision(map[string]any{"_id": "B", "legacyId": 1, "brightness": 20})

	status, err := s.repo.GetOrCreate(context.Background(), 1)
	s.Require().NoError(err)
	s.Require().Equal(20, status.Brightness)

	// Site 2 has no legacy match and falls back to position 2 in _id order.
	status, err = s.repo.GetOrCreate(context.Background(), 2)
	s.Require().NoError(err)
	s.Require().Equal(20, status.Brightness)
}

func (s *RepositoryTestSuite) TestGetOrCreate_UnresolvedIsSyntheticAndNotPersisted() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1})
	before := s.keys()

	status, err := s.repo.GetOrCreate(context.Background(), 9)
	s.Require().NoError(err)
	s.Require().Equal(9, status.SiteID)
	s.Require().Equal(light.StateOff, status.State)
	s.Require().Equal(0, status.Brightness)

	s.Require().Equal(before, s.keys())
}

func (s *RepositoryTestSuite) TestUpdate_UnresolvedFailsAndWritesNothing() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1})
	before := s.keys()

	_, err := s.repo.Update(context.Background(), 9, light.StateOn, 85, nil, nil)
	s.Require().ErrorIs(err, light.ErrUnresolvedSite)

	var unresolved *light.UnresolvedSiteError
	s.Require().ErrorAs(err, &unresolved)
	s.Require().Equal(9, unresolved.SiteID)

	s.Require().Equal(before, s.keys())
}

func (s *RepositoryTestSuite) TestUpdate_ReturnsWrittenValues() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1, "lightState": "off", "brightness": 0})
	ctx := context.Background()

	updated, err := s.repo.Update(ctx, 1, light.StateOn, 85, light.StringPtr("18:00"), nil)
	s.Require().NoError(err)

	stored, err := s.repo.GetOrCreate(ctx, 1)
	s.Require().NoError(err)

	s.Require().Equal(light.StateOn, updated.State)
	s.Require().Equal(85, updated.Brightness)
	s.Require().Equal(stored.State, updated.State)
	s.Require().Equal(stored.Brightness, updated.Brightness)
	s.Require().Equal(stored.ScheduleOn, updated.ScheduleOn)
	s.Require().Equal(stored.LastUpdated, updated.LastUpdated)

	doc := s.rawDoc("device:A")
	s.Require().EqualValues(85, doc["brightness"])
}

func (s *RepositoryTestSuite) TestProjection_OversizedNumbers() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1e300, "brightness": 1e300})
	s.provision(map[string]any{"_id": "B", "legacyId": 2, "brightness": "99999999999"})

	// A legacyId out of range never matches, so site 1 falls back to position 1.
	status, err := s.repo.GetOrCreate(context.Background(), 1)
	s.Require().NoError(err)
	s.Require().Equal(100, status.Brightness)

	status, err = s.repo.GetOrCreate(context.Background(), 2)
	s.Require().NoError(err)
	s.Require().Equal(0, status.Brightness)
}

func (s *RepositoryTestSuite) TestProjection_ClampsLooseValues() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1, "lightState": "ON", "brightness": 250})
	s.provision(map[string]any{"_id": "B", "legacyId": 2, "lightState": "on", "brightness": -3})
	s.provision(map[string]any{"_id": "C", "legacyId": 3, "lightState": 1, "brightness": "55"})

	status, err := s.repo.GetOrCreate(context.Background(), 1)
	s.Require().NoError(err)
	s.Require().Equal(light.StateOff, status.State)
	s.Require().Equal(100, status.Brightness)

	status, err = s.repo.GetOrCreate(context.Background(), 2)
	s.Require().NoError(err)
	s.Require().Equal(light.StateOn, status.State)
	s.Require().Equal(0, status.Brightness)

	status, err = s.repo.GetOrCreate(context.Background(), 3)
	s.Require().NoError(err)
	s.Require().Equal(light.StateOff, status.State)
	s.Require().Equal(55, status.Brightness)
}

func (s *RepositoryTestSuite) TestProjection_ParsesLastUpdated() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1, "lastUpdated": "2026-02-01T10:00:00.123456+00:00"})
	s.provision(map[string]any{"_id": "B", "legacyId": 2, "lastUpdated": map[string]any{"$date": "2026-02-01T11:00:00Z"}})

	status, err := s.repo.GetOrCreate(context.Background(), 1)
	s.Require().NoError(err)
	s.Require().Equal(time.Date(2026, 2, 1, 10, 0, 0, 123456000, time.UTC), status.LastUpdated)

	status, err = s.repo.GetOrCreate(context.Background(), 2)
	s.Require().NoError(err)
	s.Require().Equal(time.Date(2026, 2, 1, 11, 0, 0, 0, time.UTC), status.LastUpdated)
}

func (s *RepositoryTestSuite) TestUpdate_PreservesUnknownFields() {
	s.provision(map[string]any{
		"_id":        "A",
		"legacyId":   1,
		"restaurant": "McDonald's",
		"address":    map[string]any{"city": "Darien", "state": "CT"},
		"scheduleOn": "17:00",
	})

	_, err := s.repo.Update(context.Background(), 1, light.StateOn, 85, nil, nil)
	s.Require().NoError(err)

	doc := s.rawDoc("device:A")
	s.Require().Equal("on", doc["lightState"])
	s.Require().EqualValues(85, doc["brightness"])
	s.Require().Equal("17:00", doc["scheduleOn"])
	s.Require().Equal("McDonald's", doc["restaurant"])
	s.Require().Equal(map[string]any{"city": "Darien", "state": "CT"}, doc["address"])
	s.Require().NotContains(doc, "scheduleOff")
	s.Require().NotEmpty(doc["lastUpdated"])
}

func (s *RepositoryTestSuite) TestFullSchedule_RoundTrip() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1, "restaurant": "Diner"})
	ctx := context.Background()

	rules := []light.Rule{
		{Days: []string{"MON", "TUES", "WED", "THURS", "FRI"}, StartTime: "18:30", EndTime: "06:15", Enabled: true},
		{Days: []string{"SAT", "SUN"}, StartTime: "19:00", EndTime: "07:45", Enabled: false},
		{Days: []string{"MON"}, StartTime: "18:30", EndTime: "06:15", Enabled: true},
	}

	saved, err := s.repo.SaveFullSchedule(ctx, 1, rules)
	s.Require().NoError(err)
	s.Require().True(saved.Supported)
	s.Require().Equal(rules, saved.Rules)

	got, err := s.repo.GetFullSchedule(ctx, 1)
	s.Require().NoError(err)
	s.Require().Equal(rules, got.Rules)

	scheduleID := s.miniRedis.HGet("schedules:by-device", "A")
	s.Require().NotEmpty(scheduleID)

	doc := s.rawDoc("schedule:" + scheduleID)
	s.Require().Equal("A", doc["deviceId"])
	s.Require().Equal("Diner", doc["restaurant"])
	storedRules := doc["rules"].([]any)
	s.Require().Len(storedRules, 3)
	first := storedRules[0].(map[string]any)
	s.Require().EqualValues(18, first["startHour"])
	s.Require().EqualValues(30, first["startMinute"])
	s.Require().EqualValues(6, first["endHour"])
	s.Require().EqualValues(15, first["endMinute"])
	s.Require().Equal("ON", first["action"])
	s.Require().Equal("ON", storedRules[1].(map[string]any)["action"])
}

func (s *RepositoryTestSuite) TestFullSchedule_UpsertKeepsOneSchedulePerDevice() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1})
	ctx := context.Background()

	_, err := s.repo.SaveFullSchedule(ctx, 1, []light.Rule{{Days: []string{"MON"}, StartTime: "18:00", EndTime: "23:00", Enabled: true}})
	s.Require().NoError(err)
	firstID := s.miniRedis.HGet("schedules:by-device", "A")

	replacement := []light.Rule{{Days: []string{"FRI"}, StartTime: "20:00", EndTime: "02:00", Enabled: true}}
	_, err = s.repo.SaveFullSchedule(ctx, 1, replacement)
	s.Require().NoError(err)

	s.Require().Equal(firstID, s.miniRedis.HGet("schedules:by-device", "A"))

	var schedules int
	for _, key := range s.miniRedis.Keys() {
		if strings.HasPrefix(key, "schedule:") {
			schedules++
		}
	}
	s.Require().Equal(1, schedules)

	got, err := s.repo.GetFullSchedule(ctx, 1)
	s.Require().NoError(err)
	s.Require().Equal(replacement, got.Rules)
}

func (s *RepositoryTestSuite) TestFullSchedule_UnresolvedWritesNothing() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1})
	before := s.keys()

	_, err := s.repo.SaveFullSchedule(context.Background(), 50, []light.Rule{
		{Days: []string{"MON"}, StartTime: "18:00", EndTime: "23:00", Enabled: true},
	})
	s.Require().ErrorIs(err, light.ErrUnresolvedSite)

	var unresolved *light.UnresolvedSiteError
	s.Require().ErrorAs(err, &unresolved)
	s.Require().Equal(50, unresolved.SiteID)

	s.Require().Equal(before, s.keys())
}

func (s *RepositoryTestSuite) TestFullSchedule_RejectsMalformedTimes() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1})

	_, err := s.repo.SaveFullSchedule(context.Background(), 1, []light.Rule{
		{Days: []string{"MON"}, StartTime: "6pm", EndTime: "23:00", Enabled: true},
	})
	s.Require().ErrorIs(err, light.ErrValidation)
	s.Require().False(s.miniRedis.Exists("schedules:by-device"))
}

func (s *RepositoryTestSuite) TestGetFullSchedule_EmptyWhenMissing() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1})

	got, err := s.repo.GetFullSchedule(context.Background(), 1)
	s.Require().NoError(err)
	s.Require().True(got.Supported)
	s.Require().NotNil(got.Rules)
	s.Require().Empty(got.Rules)

	got, err = s.repo.GetFullSchedule(context.Background(), 99)
	s.Require().NoError(err)
	s.Require().Empty(got.Rules)
}

func (s *RepositoryTestSuite) TestSchedule_ExplicitReferenceAndLegacyRules() {
	schedule := map[string]any{
		"_id":      "sched-ext",
		"deviceId": "A",
		"enabled":  true,
		"rules": []any{
			map[string]any{"days": []string{"MON"}, "startHour": 17, "endHour": 22, "action": "ON"},
			map[string]any{"days": []string{"TUES"}, "startHour": 5, "endHour": 8, "action": "OFF"},
		},
	}
	data, err := json.Marshal(schedule)
	s.Require().NoError(err)
	s.Require().NoError(s.miniRedis.Set("schedule:sched-ext", string(data)))
	s.provision(map[string]any{"_id": "A", "legacyId": 1, "scheduleId": "sched-ext"})

	got, err := s.repo.GetFullSchedule(context.Background(), 1)
	s.Require().NoError(err)
	s.Require().Equal([]light.Rule{
		{Days: []string{"MON"}, StartTime: "17:00", EndTime: "22:00", Enabled: true},
		{Days: []string{"TUES"}, StartTime: "05:00", EndTime: "08:00", Enabled: true},
	}, got.Rules)

	// Saving through the reference updates that document in place.
	_, err = s.repo.SaveFullSchedule(context.Background(), 1, []light.Rule{
		{Days: []string{"WED"}, StartTime: "18:00", EndTime: "23:00", Enabled: true},
	})
	s.Require().NoError(err)
	doc := s.rawDoc("schedule:sched-ext")
	s.Require().Len(doc["rules"], 1)
	s.Require().False(s.miniRedis.Exists("schedules:by-device"))
}

func (s *RepositoryTestSuite) TestStatus_DerivesSimpleScheduleFromFirstRule() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1})
	s.provision(map[string]any{"_id": "B", "legacyId": 2, "scheduleOn": "16:45"})
	ctx := context.Background()

	rules := []light.Rule{
		{Days: []string{"MON"}, StartTime: "18:30", EndTime: "06:15", Enabled: true},
		{Days: []string{"TUES"}, StartTime: "20:00", EndTime: "04:00", Enabled: true},
	}
	_, err := s.repo.SaveFullSchedule(ctx, 1, rules)
	s.Require().NoError(err)
	_, err = s.repo.SaveFullSchedule(ctx, 2, rules)
	s.Require().NoError(err)

	status, err := s.repo.GetOrCreate(ctx, 1)
	s.Require().NoError(err)
	s.Require().Equal("18:00", *status.ScheduleOn)
	s.Require().Equal("06:00", *status.ScheduleOff)

	status, err = s.repo.GetOrCreate(ctx, 2)
	s.Require().NoError(err)
	s.Require().Equal("16:45", *status.ScheduleOn)
	s.Require().Equal("06:00", *status.ScheduleOff)

	// Derived values are for display only and never written to the device.
	_, err = s.repo.Update(ctx, 1, light.StateOn, 85, nil, nil)
	s.Require().NoError(err)
	doc := s.rawDoc("device:A")
	s.Require().NotContains(doc, "scheduleOn")
	s.Require().NotContains(doc, "scheduleOff")
}

func (s *RepositoryTestSuite) TestHistory_DocumentShapeAndPageIDs() {
	s.provision(map[string]any{"_id": "ESP32_MCD_DARIEN_001", "legacyId": 1, "restaurantId": "mcd_1234"})
	ctx := context.Background()

	s.repo.AddHistory(ctx, 1, "toggle_on")
	s.repo.AddHistory(ctx, 1, "toggle_off")
	s.repo.AddHistory(ctx, 4, "toggle_on")

	entries, err := s.repo.GetHistory(ctx, nil)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	for i, e := range entries {
		s.Require().Equal(int64(i+1), e.ID)
	}
	s.Require().Equal(4, entries[0].SiteID)

	site := 1
	entries, err = s.repo.GetHistory(ctx, &site)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Require().Equal(int64(1), entries[0].ID)
	s.Require().Equal("toggle_off", entries[0].Action)

	ids, err := s.miniRedis.ZMembers("history:site:1")
	s.Require().NoError(err)
	s.Require().Len(ids, 2)
	doc := s.rawDoc("history:" + ids[0])
	s.Require().Equal("mcd_1234", doc["restaurantId"])
	s.Require().Equal("ESP32_MCD_DARIEN_001", doc["deviceId"])
	s.Require().EqualValues(1, doc["legacyId"])
}

func (s *RepositoryTestSuite) TestStoreUnavailable() {
	s.miniRedis.Close()
	ctx := context.Background()

	_, err := s.repo.GetOrCreate(ctx, 1)
	s.Require().ErrorIs(err, light.ErrStore)

	_, err = s.repo.SaveFullSchedule(ctx, 1, nil)
	s.Require().ErrorIs(err, light.ErrStore)

	_, err = s.repo.GetHistory(ctx, nil)
	s.Require().ErrorIs(err, light.ErrStore)

	s.NotPanics(func() { s.repo.AddHistory(ctx, 1, "toggle_on") })
}

func (s *RepositoryTestSuite) TestStoreTimeout() {
	s.provision(map[string]any{"_id": "A", "legacyId": 1})
	repo := docrepo.New(s.client, time.Nanosecond)

	_, err := repo.GetOrCreate(context.Background(), 1)
	s.Require().ErrorIs(err, light.ErrStore)
}
