package router

import (
	"time"

	"github.com/technosupport/ts-hubmon/internal/data"
	"github.com/technosupport/ts-hubmon/internal/diag"
	"github.com/technosupport/ts-hubmon/internal/hub"
)

// Kind is the routing classification of an event. The payload is
// inspected exactly once, here; later stages work from the classified
// form.
type Kind string

const (
	KindConnectivity Kind = "connectivity"
	KindBattery      Kind = "battery"
	KindMotion       Kind = "motion"
	KindUnknown      Kind = "unknown"
)

type classified struct {
	kind    Kind
	status  data.ConnStatus
	battery diag.BatteryReading
	motion  bool
}

func classify(ev hub.RawEvent) classified {
	switch ev.Type {
	case "zigbee_connectivity":
		raw, _ := ev.Payload["status"].(string)
		switch raw {
		case "connected":
			return classified{kind: KindConnectivity, status: data.StatusConnected}
		case "disconnected", "connectivity_issue", "unreachable":
			return classified{kind: KindConnectivity, status: data.StatusDisconnected}
		default:
			// A connectivity envelope with a status we don't recognize
			// is stored and broadcast but drives no transition.
			return classified{kind: KindUnknown}
		}

	case "device_power":
		var reading diag.BatteryReading
		if power, ok := ev.Payload["power_state"].(map[string]any); ok {
			reading.State, _ = power["battery_state"].(string)
			if level, ok := power["battery_level"].(float64); ok {
				reading.Level = &level
			}
		}
		if reading.State == "" && reading.Level == nil {
			return classified{kind: KindUnknown}
		}
		return classified{kind: KindBattery, battery: reading}

	case "motion":
		detected := false
		if m, ok := ev.Payload["motion"].(map[string]any); ok {
			detected, _ = m["motion"].(bool)
		}
		return classified{kind: KindMotion, motion: detected}

	default:
		return classified{kind: KindUnknown}
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
