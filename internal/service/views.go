package service

import "github.com/dokzlo13/sitelight/internal/light"

// StatusView is the caller-facing light status.
type StatusView struct {
	RestaurantID int     `json:"restaurantId"`
	State        string  `json:"state"`
	Brightness   int     `json:"brightness"`
	ScheduleOn   *string `json:"scheduleOn"`
	ScheduleOff  *string `json:"scheduleOff"`
	LastUpdated  string  `json:"lastUpdated"`
}

// HistoryView is one audit entry.
type HistoryView struct {
	ID           int64  `json:"id"`
	RestaurantID int    `json:"restaurantId"`
	Action       string `json:"action"`
	Timestamp    string `json:"timestamp"`
}

// RuleView is one weekly rule with "HH:MM" boundaries.
type RuleView struct {
	Days      []string `json:"days"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	Enabled   bool     `json:"enabled"`
}

// FullScheduleView is a site's rule list. Supported is false on backends that do not
// store full schedules.
type FullScheduleView struct {
	RestaurantID int        `json:"restaurantId"`
	Rules        []RuleView `json:"rules"`
	Supported    bool       `json:"supported"`
}

func newStatusView(s *light.Status) StatusView {
	return StatusView{
		RestaurantID: s.SiteID,
		State:        string(s.State),
		Brightness:   s.Brightness,
		ScheduleOn:   s.ScheduleOn,
		ScheduleOff:  s.ScheduleOff,
		LastUpdated:  formatTimestamp(s.LastUpdated),
	}
}

func newFullScheduleView(f *light.FullSchedule) FullScheduleView {
	rules := make([]RuleView, len(f.Rules))
	for i, r := range f.Rules {
		days := r.Days
		if days == nil {
			days = []string{}
		}
		rules[i] = RuleView{Days: days, StartTime: r.StartTime, EndTime: r.EndTime, Enabled: r.Enabled}
	}
	return FullScheduleView{RestaurantID: f.SiteID, Rules: rules, Supported: f.Supported}
}

// Rules converts request rules into the domain type.
func Rules(views []RuleView) []light.Rule {
	rules := make([]light.Rule, len(views))
	for i, v := range views {
		rules[i] = light.Rule{Days: v.Days, StartTime: v.StartTime, EndTime: v.EndTime, Enabled: v.Enabled}
	}
	return rules
}
