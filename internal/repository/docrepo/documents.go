package docrepo

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dokzlo13/sitelight/internal/light"
)

// Key layout
const (
	devicesCollection = "devices"
	deviceKeyPrefix   = "device:"

	scheduleKeyPrefix = "schedule:"
	schedulesByDevice = "schedules:by-device"

	historyKeyPrefix     = "history:"
	historyIndex         = "history"
	historySiteIndexTmpl = "history:site:%d"
	historySequence      = "history:seq"
)

// Device document fields
const (
	fieldID                 = "_id"
	fieldRestaurant         = "restaurant"
	fieldRestaurantID       = "restaurantId"
	fieldLegacyID           = "legacyId"
	fieldLegacyRestaurantID = "legacyRestaurantId"
	fieldLightState         = "lightState"
	fieldBrightness         = "brightness"
	fieldScheduleOn         = "scheduleOn"
	fieldScheduleOff        = "scheduleOff"
	fieldLastUpdated        = "lastUpdated"
	fieldScheduleID         = "scheduleId"
)

// ruleActionOn is the only action full schedules are saved with.
const ruleActionOn = "ON"

func deviceKey(id string) string   { return deviceKeyPrefix + id }
func scheduleKey(id string) string { return scheduleKeyPrefix + id }
func historyKey(id string) string  { return historyKeyPrefix + id }

func historySiteIndex(siteID int) string {
	return fmt.Sprintf(historySiteIndexTmpl, siteID)
}

// device is a Devices document. Devices are provisioned externally and only loosely
// validated, so the raw document is kept and every read coerces its fields.
// Writes go back through raw so fields this service does not know survive.
type device struct {
	raw map[string]any
	ID  string
}

func parseDevice(data []byte) (*device, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	id, ok := asString(raw[fieldID])
	if !ok || id == "" {
		return nil, fmt.Errorf("device document has no %s", fieldID)
	}
	return &device{raw: raw, ID: id}, nil
}

// LegacyID returns legacyId, falling back to its alias legacyRestaurantId.
func (d *device) LegacyID() (int, bool) {
	if id, ok := asInt(d.raw[fieldLegacyID]); ok {
		return id, true
	}
	return asInt(d.raw[fieldLegacyRestaurantID])
}

func (d *device) RestaurantID() string {
	s, _ := asString(d.raw[fieldRestaurantID])
	return s
}

func (d *device) Restaurant() string {
	s, _ := asString(d.raw[fieldRestaurant])
	return s
}

// ScheduleRef returns the explicit Schedules reference. Extended-JSON object ids
// ({"$oid": "..."}) are accepted as well as plain strings.
func (d *device) ScheduleRef() string {
	switch v := d.raw[fieldScheduleID].(type) {
	case string:
		return v
	case map[string]any:
		s, _ := asString(v["$oid"])
		return s
	}
	return ""
}

func (d *device) LightState() string {
	s, _ := asString(d.raw[fieldLightState])
	return s
}

// Brightness saturates JSON numbers to the brightness range before converting, so an
// oversized stored value still reads as full brightness.
func (d *device) Brightness() int {
	if f, ok := d.raw[fieldBrightness].(float64); ok && !math.IsNaN(f) {
		return int(math.Max(light.MinBrightness, math.Min(f, light.MaxBrightness)))
	}
	b, _ := asInt(d.raw[fieldBrightness])
	return b
}

func (d *device) ScheduleOn() *string  { return nonEmpty(d.raw[fieldScheduleOn]) }
func (d *device) ScheduleOff() *string { return nonEmpty(d.raw[fieldScheduleOff]) }

func (d *device) LastUpdated() (time.Time, bool) {
	return asTime(d.raw[fieldLastUpdated])
}

func (d *device) set(field string, value any) {
	d.raw[field] = value
}

func (d *device) marshal() ([]byte, error) {
	return json.Marshal(d.raw)
}

// storedRule is one rule of a Schedules document.
type storedRule struct {
	Days        []string `json:"days"`
	StartHour   int      `json:"startHour"`
	StartMinute int      `json:"startMinute"`
	EndHour     int      `json:"endHour"`
	EndMinute   int      `json:"endMinute"`
	Action      string   `json:"action"`
	Enabled     *bool    `json:"enabled,omitempty"` // absent means enabled
}

// scheduleDoc is a Schedules document: one per device.
type scheduleDoc struct {
	ID         string       `json:"_id"`
	DeviceID   string       `json:"deviceId"`
	Restaurant string       `json:"restaurant,omitempty"`
	Name       string       `json:"name,omitempty"`
	Enabled    bool         `json:"enabled"`
	Rules      []storedRule `json:"rules"`
	CreatedBy  string       `json:"createdBy,omitempty"`
	CreatedAt  string       `json:"createdAt,omitempty"`
	UpdatedAt  string       `json:"updatedAt,omitempty"`
}

// historyDoc is a light_history document. RestaurantID carries the device's business
// identifier; LegacyID the integer site id used for filtering.
type historyDoc struct {
	ID           string `json:"_id"`
	RestaurantID string `json:"restaurantId"`
	DeviceID     string `json:"deviceId,omitempty"`
	Action       string `json:"action"`
	Timestamp    string `json:"timestamp"`
	LegacyID     int    `json:"legacyId"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func nonEmpty(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// asInt accepts JSON numbers and numeric strings; fractional values are truncated.
// Numbers outside the int32 range are rejected.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		if math.IsNaN(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 32)
		return int(i), err == nil
	case map[string]any:
		// Extended JSON: {"$numberInt": "1"}, {"$numberLong": "1"}
		for _, k := range []string{"$numberInt", "$numberLong"} {
			if s, ok := n[k].(string); ok {
				i, err := strconv.ParseInt(s, 10, 32)
				return int(i), err == nil
			}
		}
	}
	return 0, false
}

// asTime accepts RFC3339 strings (with or without fraction) and {"$date": ...}.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999Z07:00"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), true
			}
		}
	case map[string]any:
		if inner, ok := t["$date"]; ok {
			if ms, ok := inner.(float64); ok {
				return time.UnixMilli(int64(ms)).UTC(), true
			}
			return asTime(inner)
		}
	}
	return time.Time{}, false
}
