package availability

import (
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/pkg/errors"
)

// SlotLength is the fixed consultation length.
const SlotLength = 30 * time.Minute

// GenerateSlots walks from start to end in SlotLength steps. Only whole
// slots are emitted: a trailing remainder shorter than SlotLength is dropped,
// and end <= start yields no slots.
func GenerateSlots(start, end string) ([]model.Slot, error) {
	from, err := model.ParseClock(start)
	if err != nil {
		return nil, errors.BadRequest("invalid start time", err)
	}
	to, err := model.ParseClock(end)
	if err != nil {
		return nil, errors.BadRequest("invalid end time", err)
	}

	step := int(SlotLength / time.Minute)
	slots := []model.Slot{}
	for cur := from; cur+step <= to; cur += step {
		slots = append(slots, model.Slot{
			StartTime: model.FormatClock(cur),
			EndTime:   model.FormatClock(cur + step),
		})
	}
	return slots, nil
}
