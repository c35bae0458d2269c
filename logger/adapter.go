package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogEventAdapter adapts a zerolog event to LogEvent. A nil zerolog event
// (level disabled) is handled by zerolog itself, so every method is safe.
type LogEventAdapter struct {
	event  *zerolog.Event
	filter *SensitiveDataFilter
}

// Msg sends the event.
func (a *LogEventAdapter) Msg(msg string) {
	a.event.Msg(msg)
}

// Msgf sends the event with a formatted message.
func (a *LogEventAdapter) Msgf(format string, args ...any) {
	a.event.Msgf(format, args...)
}

// Err attaches an error.
func (a *LogEventAdapter) Err(err error) LogEvent {
	return a.with(a.event.Err(err))
}

// Str attaches a string field, masking it when the key is sensitive.
func (a *LogEventAdapter) Str(key, value string) LogEvent {
	if a.filter != nil {
		value = a.filter.FilterString(key, value)
	}
	return a.with(a.event.Str(key, value))
}

// Int attaches an int field.
func (a *LogEventAdapter) Int(key string, value int) LogEvent {
	return a.with(a.event.Int(key, value))
}

// Int64 attaches an int64 field.
func (a *LogEventAdapter) Int64(key string, value int64) LogEvent {
	return a.with(a.event.Int64(key, value))
}

// Bool attaches a bool field.
func (a *LogEventAdapter) Bool(key string, value bool) LogEvent {
	return a.with(a.event.Bool(key, value))
}

// Dur attaches a duration field.
func (a *LogEventAdapter) Dur(key string, d time.Duration) LogEvent {
	return a.with(a.event.Dur(key, d))
}

// Interface attaches an arbitrary value, masking sensitive keys.
func (a *LogEventAdapter) Interface(key string, i any) LogEvent {
	if a.filter != nil {
		i = a.filter.FilterValue(key, i)
	}
	return a.with(a.event.Interface(key, i))
}

func (a *LogEventAdapter) with(e *zerolog.Event) LogEvent {
	return &LogEventAdapter{event: e, filter: a.filter}
}
