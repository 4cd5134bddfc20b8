package bot

import (
	"strings"

	"github.com/arogya-clinic/whatsapp-assistant/internal/whatsapp"
)

// Slot is one bookable time of day. Value is the 24h wall-clock time in IST.
type Slot struct {
	ID    string
	Title string
	Value string
}

// timeSlots is the clinic's bookable slot table. Hours before 12 are listed
// under Morning, the rest under Afternoon.
var timeSlots = []Slot{
	{ID: "slot_0900", Title: "9:00 AM", Value: "09:00"},
	{ID: "slot_1000", Title: "10:00 AM", Value: "10:00"},
	{ID: "slot_1100", Title: "11:00 AM", Value: "11:00"},
	{ID: "slot_1200", Title: "12:00 PM", Value: "12:00"},
	{ID: "slot_1400", Title: "2:00 PM", Value: "14:00"},
	{ID: "slot_1500", Title: "3:00 PM", Value: "15:00"},
	{ID: "slot_1600", Title: "4:00 PM", Value: "16:00"},
	{ID: "slot_1700", Title: "5:00 PM", Value: "17:00"},
	{ID: "slot_1800", Title: "6:00 PM", Value: "18:00"},
}

// findSlotByID resolves an interactive list-reply id.
func findSlotByID(id string) (Slot, bool) {
	for _, s := range timeSlots {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}

// matchSlot resolves free text against a slot's display title (case and
// space insensitive) or its 24h value.
func matchSlot(text string) (Slot, bool) {
	needle := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(text)), " ", "")
	if needle == "" {
		return Slot{}, false
	}
	for _, s := range timeSlots {
		title := strings.ReplaceAll(strings.ToLower(s.Title), " ", "")
		if needle == title || needle == s.Value {
			return s, true
		}
	}
	return Slot{}, false
}

// slotSections renders the slot table as a two-section interactive list, each
// row carrying the formatted date as its description.
func slotSections(dateDescription string) []whatsapp.ListSection {
	var morning, afternoon []whatsapp.ListRow
	for _, s := range timeSlots {
		row := whatsapp.ListRow{ID: s.ID, Title: s.Title, Description: dateDescription}
		if s.Value < "12:00" {
			morning = append(morning, row)
		} else {
			afternoon = append(afternoon, row)
		}
	}
	return []whatsapp.ListSection{
		{Title: "Morning", Rows: morning},
		{Title: "Afternoon", Rows: afternoon},
	}
}
