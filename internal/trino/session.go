// Package trino implements the client side of the Trino REST statement
// protocol: submit a query, follow nextUri page by page, cancel on close.
package trino

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"trino-ingest/internal/config"
	"trino-ingest/internal/domain"
)

// Session holds the endpoint and the per-statement session settings.
// It is immutable after NewSession.
type Session struct {
	server     *url.URL
	catalog    string
	schema     string
	user       string
	password   string
	source     string
	locale     language.Tag
	timeZone   *time.Location
	clientTags []string
	properties map[string]string
}

// NewSession validates cfg and builds a Session. Nothing is sent over the network.
func NewSession(cfg config.ServerConfig) (*Session, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, domain.ErrValidation("trino: host must not be empty")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, domain.ErrValidation("trino: port %d out of range", cfg.Port)
	}
	if cfg.User == "" {
		return nil, domain.ErrValidation("trino: user must not be empty")
	}

	scheme := "http"
	if cfg.HTTPS {
		scheme = "https"
	}
	s := &Session{
		server:     &url.URL{Scheme: scheme, Host: net.JoinHostPort(host, strconv.Itoa(cfg.Port))},
		catalog:    cfg.Catalog,
		schema:     cfg.Schema,
		user:       cfg.User,
		password:   cfg.Password,
		source:     cfg.Source,
		locale:     localLocale(),
		timeZone:   localTimeZone(),
		clientTags: append([]string(nil), cfg.ClientTags...),
		properties: make(map[string]string, len(cfg.SessionProperties)),
	}

	if cfg.Locale != "" {
		tag, err := language.Parse(cfg.Locale)
		if err != nil {
			return nil, domain.ErrValidation("trino: invalid locale %q: %v", cfg.Locale, err)
		}
		s.locale = tag
	}
	if cfg.TimeZone != "" {
		loc, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, domain.ErrValidation("trino: invalid time zone %q: %v", cfg.TimeZone, err)
		}
		s.timeZone = loc
	}
	for k, v := range cfg.SessionProperties {
		if k == "" || strings.ContainsAny(k, "=,") {
			return nil, domain.ErrValidation("trino: invalid session property name %q", k)
		}
		s.properties[k] = v
	}
	return s, nil
}

// Server returns the coordinator base URL.
func (s *Session) Server() *url.URL {
	u := *s.server
	return &u
}

// User returns the session user.
func (s *Session) User() string { return s.user }

// TimeZone returns the session time zone.
func (s *Session) TimeZone() *time.Location { return s.timeZone }

// statementURL returns the absolute URL of the statement endpoint.
func (s *Session) statementURL() string {
	return s.server.JoinPath(statementEndpoint).String()
}

// headers returns the session headers sent with the initial POST.
func (s *Session) headers() map[string]string {
	h := map[string]string{HeaderUser: s.user}
	if s.source != "" {
		h[HeaderSource] = s.source
	}
	if s.catalog != "" {
		h[HeaderCatalog] = s.catalog
	}
	if s.schema != "" {
		h[HeaderSchema] = s.schema
	}
	h[HeaderTimeZone] = s.timeZone.String()
	h[HeaderLanguage] = s.locale.String()
	if len(s.clientTags) > 0 {
		h[HeaderClientTags] = strings.Join(s.clientTags, ",")
	}
	if len(s.properties) > 0 {
		keys := make([]string, 0, len(s.properties))
		for k := range s.properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + url.QueryEscape(s.properties[k])
		}
		h[HeaderSession] = strings.Join(pairs, ",")
	}
	return h
}

var localtimePath = "/etc/localtime"

// localTimeZone resolves the process time zone to a name the coordinator
// understands: $TZ, then the /etc/localtime link target, then the current
// UTC offset.
func localTimeZone() *time.Location {
	if tz, ok := os.LookupEnv("TZ"); ok {
		tz = strings.TrimPrefix(tz, ":")
		if tz == "" {
			return time.UTC
		}
		if loc, ok := zoneFromPath(tz); ok {
			return loc
		}
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	if target, err := os.Readlink(localtimePath); err == nil {
		if loc, ok := zoneFromPath(target); ok {
			return loc
		}
	}
	_, offset := time.Now().Zone()
	if offset == 0 {
		return time.UTC
	}
	return time.FixedZone(formatOffset(offset), offset)
}

// zoneFromPath loads the zone named by a path under a zoneinfo directory.
func zoneFromPath(path string) (*time.Location, bool) {
	const marker = "zoneinfo/"
	i := strings.LastIndex(path, marker)
	if i < 0 {
		return nil, false
	}
	loc, err := time.LoadLocation(path[i+len(marker):])
	if err != nil {
		return nil, false
	}
	return loc, true
}

func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("%c%02d:%02d", sign, seconds/3600, seconds%3600/60)
}

// localLocale derives the language tag from the first set of LC_ALL,
// LC_MESSAGES and LANG. The C and POSIX locales map to en-US.
func localLocale() language.Tag {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			if tag, ok := posixLocaleTag(v); ok {
				return tag
			}
			break
		}
	}
	return language.AmericanEnglish
}

// posixLocaleTag converts "de_DE.UTF-8@euro" into de-DE.
func posixLocaleTag(v string) (language.Tag, bool) {
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	if v == "" || v == "C" || v == "POSIX" {
		return language.Tag{}, false
	}
	tag, err := language.Parse(strings.ReplaceAll(v, "_", "-"))
	if err != nil {
		return language.Tag{}, false
	}
	return tag, true
}
