package ws

import (
	"encoding/json"

	"github.com/orbo-vision/coreflow/internal/frame"
	"github.com/orbo-vision/coreflow/internal/telemetry"
)

// encodeEvent converts one telemetry.Event into its wire JSON form,
// returning nil with no error for event kinds/payload shapes it doesn't
// recognize (so Hub.Pump simply skips them).
func encodeEvent(ev telemetry.Event) ([]byte, error) {
	switch ev.Kind {
	case telemetry.EventMotion:
		delta, ok := ev.Motion.(*frame.Delta)
		if !ok {
			return nil, nil
		}
		return json.Marshal(NewMotionMessage(ev.FrameSeq, delta.MotionPercent, len(delta.Regions)))

	case telemetry.EventTracking:
		result, ok := ev.Tracking.(*frame.Result)
		if !ok {
			return nil, nil
		}
		msg := NewTrackingMessage(ev.FrameSeq)
		msg.ActiveCount = result.ActiveCount
		msg.Entries = len(result.Entries)
		msg.Exits = len(result.Exits)
		for _, obj := range result.Active {
			msg.AddObject(obj.ID, obj.Class, []float64{obj.Box.X, obj.Box.Y, obj.Box.W, obj.Box.H}, string(obj.Direction), obj.Zone)
		}
		return json.Marshal(msg)

	case telemetry.EventAlert:
		obs, ok := ev.Alert.(*frame.Observation)
		if !ok {
			return nil, nil
		}
		return json.Marshal(NewAlertMessage(ev.FrameSeq, obs.Summary, obs.Triggered))

	default:
		return nil, nil
	}
}
