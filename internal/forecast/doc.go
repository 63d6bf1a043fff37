// Package forecast fetches outside weather conditions for proactive
// control decisions.
//
// The provider is OpenWeatherMap's free-tier API (current conditions
// plus the 5 day / 3 hour forecast). Responses are normalized into a
// small Snapshot and cached with a TTL; a provider outage serves the
// stale cache up to a maximum age, after which the control loop simply
// runs without a forecast.
package forecast
