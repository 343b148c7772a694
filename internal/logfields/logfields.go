package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyEntity     = "entity"
	KeyIdentity   = "identity"
	KeyAction     = "action"
	KeyAnomaly    = "anomaly"
	KeyEventID    = "event_id"
	KeySource     = "source"
	KeySubject    = "subject"
	KeyRoutingKey = "routing_key"
	KeyInFlight   = "in_flight"
	KeyDurationMS = "duration_ms"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyRequestID  = "request_id"
	KeyURL        = "url"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Entity(kind string) slog.Attr     { return slog.String(KeyEntity, kind) }
func Identity(id string) slog.Attr     { return slog.String(KeyIdentity, id) }
func Action(a string) slog.Attr        { return slog.String(KeyAction, a) }
func Anomaly(kind string) slog.Attr    { return slog.String(KeyAnomaly, kind) }
func EventID(id string) slog.Attr      { return slog.String(KeyEventID, id) }
func Source(name string) slog.Attr     { return slog.String(KeySource, name) }
func Subject(s string) slog.Attr       { return slog.String(KeySubject, s) }
func RoutingKey(k string) slog.Attr    { return slog.String(KeyRoutingKey, k) }
func InFlight(n int) slog.Attr         { return slog.Int(KeyInFlight, n) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr    { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(addr string) slog.Attr { return slog.String(KeyRemoteAddr, addr) }
func RequestID(id string) slog.Attr    { return slog.String(KeyRequestID, id) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
