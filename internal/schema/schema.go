package schema

// SchemaVersion is the current record schema version.
const SchemaVersion uint16 = 1

// EventType defines the category of a record stored in a market tape.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventMarketBook
	EventOrderRecord
)

func (t EventType) String() string {
	switch t {
	case EventMarketBook:
		return "MarketBook"
	case EventOrderRecord:
		return "OrderRecord"
	default:
		return "Unknown"
	}
}

// EventHeader is the common metadata attached to every tape record.
type EventHeader struct {
	Type    EventType
	Version uint16
	Flags   uint16
	Seq     uint64
	TsEvent int64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, seq uint64, tsEvent int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Version: SchemaVersion,
		Seq:     seq,
		TsEvent: tsEvent,
	}
}
