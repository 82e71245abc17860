// Package config parses the Host options map (spec §6.6) into a typed
// Options struct. Unknown keys are ignored, matching the teacher's own
// map-to-struct config pattern.
package config

import "sync"

// RabbitOptions configures one AMQP listener (spec §6.4).
type RabbitOptions struct {
	URL          string
	Queue        string
	Exchange     string
	ExchangeType string
	RoutingKey   string
	Durable      bool
	Exclusive    bool
	AutoDelete   bool
	Passive      bool
	RetryDelaySeconds int
}

// SSLOptions configures TLS for an HTTP/WebSocket listener (spec §6.2).
// Exactly one of {CertFile+KeyFile} or {PKCS12File+Passphrase} is set.
type SSLOptions struct {
	CertFile   string
	KeyFile    string
	PKCS12File string
	Passphrase string
}

// Options is the parsed form of the Host options map.
type Options struct {
	HTTPAddrs   []string
	TCPAddrs    []string
	Rabbit      []RabbitOptions
	SSL         *SSLOptions
	Router      any // string (single context type) or map[string][]string (glob map)
	Cache       string
	LoggerName  string
	LogRequest  bool
	LogError    bool
	Connections map[string]map[string]string // settings.connections.<kind>.<name>
}

// Default returns an Options with the documented defaults applied.
func Default() *Options {
	return &Options{
		LogRequest: true,
		LogError:   true,
	}
}

// FromMap builds Options from a raw host options map (spec §6.6). Unknown
// keys are ignored, mirroring coreengine/config's CoreConfigFromMap
// permissive-conversion idiom (the float64-from-JSON fallback is reused
// for any numeric value, since embedding code may hand this map in from
// decoded JSON/YAML just as the teacher's bootstrap does).
func FromMap(raw map[string]any) *Options {
	o := Default()

	if v, ok := raw["server"]; ok {
		o.HTTPAddrs = toStringList(v)
	} else if v, ok := raw["http"]; ok {
		o.HTTPAddrs = toStringList(v)
	}
	if v, ok := raw["tcp"]; ok {
		o.TCPAddrs = toStringList(v)
	}
	if v, ok := raw["rabbit"]; ok {
		o.Rabbit = toRabbitList(v)
	}
	if v, ok := raw["ssl"].(map[string]any); ok {
		ssl := &SSLOptions{
			CertFile:   stringField(v, "cert_file"),
			KeyFile:    stringField(v, "key_file"),
			PKCS12File: stringField(v, "pkcs12_file"),
			Passphrase: stringField(v, "passphrase"),
		}
		o.SSL = ssl
	}
	if v, ok := raw["router"]; ok {
		o.Router = v
	}
	if v, ok := raw["cache"].(string); ok {
		o.Cache = v
	}
	if v, ok := raw["logger"].(string); ok {
		o.LoggerName = v
	}
	if v, ok := raw["log_request"].(bool); ok {
		o.LogRequest = v
	}
	if v, ok := raw["log_error"].(bool); ok {
		o.LogError = v
	}
	if v, ok := raw["settings"].(map[string]any); ok {
		if conns, ok := v["connections"].(map[string]any); ok {
			o.Connections = make(map[string]map[string]string, len(conns))
			for kind, byName := range conns {
				m, ok := byName.(map[string]any)
				if !ok {
					continue
				}
				entry := make(map[string]string, len(m))
				for name, val := range m {
					if s, ok := val.(string); ok {
						entry[name] = s
					}
				}
				o.Connections[kind] = entry
			}
		}
	}

	return o
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func toStringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toRabbitList(v any) []RabbitOptions {
	switch t := v.(type) {
	case map[string]any:
		return []RabbitOptions{rabbitFromMap(t)}
	case []any:
		out := make([]RabbitOptions, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, rabbitFromMap(m))
			}
		}
		return out
	default:
		return nil
	}
}

func rabbitFromMap(m map[string]any) RabbitOptions {
	r := RabbitOptions{
		URL:               stringField(m, "url"),
		Queue:             stringField(m, "queue"),
		Exchange:          stringField(m, "exchange"),
		ExchangeType:      stringField(m, "exchange_type"),
		RoutingKey:        stringField(m, "routing_key"),
		RetryDelaySeconds: 10,
	}
	if r.ExchangeType == "" {
		r.ExchangeType = "topic"
	}
	if v, ok := m["durable"].(bool); ok {
		r.Durable = v
	}
	if v, ok := m["exclusive"].(bool); ok {
		r.Exclusive = v
	}
	if v, ok := m["auto_delete"].(bool); ok {
		r.AutoDelete = v
	}
	if v, ok := m["passive"].(bool); ok {
		r.Passive = v
	}
	if v, ok := m["retry_delay"].(int); ok {
		r.RetryDelaySeconds = v
	} else if v, ok := m["retry_delay"].(float64); ok {
		r.RetryDelaySeconds = int(v)
	}
	return r
}

// =============================================================================
// Global accessor (mirrors coreengine/config's Get/Set/Reset singleton)
// =============================================================================

var (
	global   *Options
	globalMu sync.RWMutex
)

// Get returns the process-wide Options, or defaults if none was set.
func Get() *Options {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return Default()
	}
	return global
}

// Set installs the process-wide Options, called once by the Host at
// startup after parsing the options map.
func Set(o *Options) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = o
}

// Reset clears the process-wide Options; useful for tests.
func Reset() {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = nil
}
