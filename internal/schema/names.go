package schema

import (
	"fmt"
	"time"

	"github.com/loykin/lhm/internal/constants"
)

func truncate(name string) string {
	if len(name) > constants.MaxIdentifierLength {
		return name[:constants.MaxIdentifierLength]
	}
	return name
}

// DestinationName returns the lhmn_ table name for origin.
func DestinationName(origin string) string {
	return truncate(constants.DestinationPrefix + origin)
}

// ArchiveName returns the lhma_ table name the origin is renamed to at switch time.
func ArchiveName(origin string, at time.Time) string {
	stamp := fmt.Sprintf("%s_%03d", at.UTC().Format(constants.ArchiveTimestampLayout), at.Nanosecond()/int(time.Millisecond))
	return truncate(fmt.Sprintf("%s%s_%s", constants.ArchivePrefix, stamp, origin))
}

// TriggerName returns the lhmt trigger name for an event (ins, upd, del) on origin.
func TriggerName(event Event, origin string) string {
	return truncate(fmt.Sprintf("%s_%s_%s", constants.TriggerPrefix, event, origin))
}
