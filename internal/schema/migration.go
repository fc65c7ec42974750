package schema

import (
	"strings"
	"time"

	"github.com/loykin/lhm/internal/constants"
)

// Event is the DML event a change capture trigger fires on.
type Event string

const (
	EventInsert Event = "ins"
	EventUpdate Event = "upd"
	EventDelete Event = "del"
)

// Events lists the events entangling covers, in installation order.
var Events = []Event{EventInsert, EventUpdate, EventDelete}

// SQL returns the MySQL keyword for the event.
func (e Event) SQL() string {
	switch e {
	case EventInsert:
		return "insert"
	case EventUpdate:
		return "update"
	case EventDelete:
		return "delete"
	default:
		return string(e)
	}
}

// Trigger describes one change capture trigger.
type Trigger struct {
	Name    string
	Event   Event
	Subject string
}

// Migration is the read-only descriptor a run works from. It is built once by the
// migrator and shared by the entangler, chunker and switchers.
type Migration struct {
	Origin      *Table
	Destination *Table
	// OrderColumn is the column chunks are ranged over; defaults to the primary key.
	OrderColumn string
	// Conditions is a raw filter fragment, either "where ..." or "inner join ...".
	Conditions string
	// Renames maps origin column names to destination column names.
	Renames   map[string]string
	StartedAt time.Time
}

// NewMigration builds a descriptor. An empty orderColumn falls back to the origin
// primary key, then to "id".
func NewMigration(origin, destination *Table, orderColumn string) *Migration {
	if strings.TrimSpace(orderColumn) == "" {
		orderColumn = origin.PrimaryKey
	}
	if strings.TrimSpace(orderColumn) == "" {
		orderColumn = constants.DefaultOrderColumn
	}
	return &Migration{
		Origin:      origin,
		Destination: destination,
		OrderColumn: orderColumn,
		Renames:     map[string]string{},
		StartedAt:   time.Now(),
	}
}

// ArchiveName is the name origin is renamed to when the destination is switched in.
func (m *Migration) ArchiveName() string {
	return ArchiveName(m.Origin.Name, m.StartedAt)
}

// Intersection returns the columns copied from origin to destination.
func (m *Migration) Intersection() Intersection {
	var in Intersection
	for _, name := range m.Origin.ColumnNames() {
		dest := name
		if renamed, ok := m.Renames[name]; ok {
			dest = renamed
		}
		if m.Destination.HasColumn(dest) {
			in.Origin = append(in.Origin, name)
			in.Destination = append(in.Destination, dest)
		}
	}
	return in
}

// Triggers returns the change capture triggers for this migration.
func (m *Migration) Triggers() []Trigger {
	out := make([]Trigger, 0, len(Events))
	for _, ev := range Events {
		out = append(out, Trigger{Name: TriggerName(ev, m.Origin.Name), Event: ev, Subject: m.Origin.Name})
	}
	return out
}

// Intersection pairs origin columns with the destination columns they are copied into.
// Origin[i] is copied into Destination[i].
type Intersection struct {
	Origin      []string
	Destination []string
}
