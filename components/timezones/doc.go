// Package timezones is an option list of IANA time zone identifiers. A
// Source answers option requests for the "timezones" options id, filtering
// the embedded list by a search parameter, so dropdowns can offer time zones
// without an application backend providing them.
package timezones
