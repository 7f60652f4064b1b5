package docrepo

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sitelight/internal/light"
)

// resolveSite maps a legacy site id to its device.
//
// A device whose legacyId (or legacyRestaurantId) equals siteID wins. Otherwise the
// device at position siteID-1 among all devices ordered by _id is used. That fallback
// is positional: adding or removing a device can remap sites. Returns nil when neither
// rule yields a device.
func (r *Repository) resolveSite(ctx context.Context, siteID int) (*device, error) {
	devices, err := r.loadDevices(ctx)
	if err != nil {
		return nil, err
	}

	for _, d := range devices {
		if legacyID, ok := d.LegacyID(); ok && legacyID == siteID {
			return d, nil
		}
	}

	if siteID >= 1 && siteID <= len(devices) {
		d := devices[siteID-1]
		log.Debug().Int("site_id", siteID).Str("device_id", d.ID).Msg("Resolved site by device position")
		return d, nil
	}

	return nil, nil
}

// loadDevices returns every device document ordered by _id ascending.
// Documents that cannot be parsed are skipped.
func (r *Repository) loadDevices(ctx context.Context) ([]*device, error) {
	ids, err := r.store.Members(ctx, devicesCollection)
	if err != nil {
		return nil, light.StoreError("list devices", err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = deviceKey(id)
	}

	docs, err := r.store.GetMany(ctx, keys)
	if err != nil {
		return nil, light.StoreError("load devices", err)
	}

	devices := make([]*device, 0, len(docs))
	for i, data := range docs {
		if data == nil {
			continue
		}
		d, err := parseDevice(data)
		if err != nil {
			log.Warn().Err(err).Str("key", keys[i]).Msg("Skipping malformed device document")
			continue
		}
		devices = append(devices, d)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}
